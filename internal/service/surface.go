package service

import "sync"

// Surface is the confirmation dialog shown while a removal is pending.
// The picker is the only caller of Show and Hide.
type Surface interface {
	Show()
	Hide()
}

// VisibilityFlag is a Surface whose state is rendered by the API as
// dialog_open.
type VisibilityFlag struct {
	mu      sync.Mutex
	visible bool
}

func (f *VisibilityFlag) Show() {
	f.mu.Lock()
	f.visible = true
	f.mu.Unlock()
}

func (f *VisibilityFlag) Hide() {
	f.mu.Lock()
	f.visible = false
	f.mu.Unlock()
}

func (f *VisibilityFlag) Visible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}
