// ABOUTME: Keeps one mounted widget per container name
// ABOUTME: Mounting into an occupied container unmounts the previous widget first

package widget

import (
	"context"
	"sync"

	"github.com/2389/chatwidget/internal/config"
)

// DefaultContainer is the container used by the auto-init path.
const DefaultContainer = "hermine-chat-root"

// Registry tracks mounted widgets by container.
type Registry struct {
	mu      sync.Mutex
	widgets map[string]*Widget
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{widgets: make(map[string]*Widget)}
}

// Mount unmounts any widget in container and mounts a new one there. On
// failure the container is left empty.
func (r *Registry) Mount(ctx context.Context, container string, cfg config.Config, opts ...Option) (*Widget, error) {
	r.mu.Lock()
	prev := r.widgets[container]
	delete(r.widgets, container)
	r.mu.Unlock()

	if prev != nil {
		prev.Unmount()
	}

	w, err := Mount(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if other := r.widgets[container]; other != nil {
		// A concurrent Mount won the container; last writer wins.
		other.Unmount()
	}
	r.widgets[container] = w
	return w, nil
}

// Get returns the widget mounted in container.
func (r *Registry) Get(container string) (*Widget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[container]
	return w, ok
}

// Unmount removes and unmounts the widget in container. Returns false when
// the container was empty.
func (r *Registry) Unmount(container string) bool {
	r.mu.Lock()
	w := r.widgets[container]
	delete(r.widgets, container)
	r.mu.Unlock()

	if w == nil {
		return false
	}
	w.Unmount()
	return true
}

// UnmountAll unmounts every widget.
func (r *Registry) UnmountAll() {
	r.mu.Lock()
	widgets := r.widgets
	r.widgets = make(map[string]*Widget)
	r.mu.Unlock()

	for _, w := range widgets {
		w.Unmount()
	}
}

// Len returns the number of mounted widgets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.widgets)
}
