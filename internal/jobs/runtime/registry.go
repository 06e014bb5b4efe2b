package runtime

import (
	"fmt"
	"sort"
	"sync"
)

// Handler executes one job kind. Run owns the job's terminal transition: it
// calls Succeed/Fail/Requeue on the Context (usually via the orchestrator)
// and returns an error only for faults the worker should absorb with its own
// retry policy.
type Handler interface {
	Kind() string
	Run(jc *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	kind := h.Kind()
	if kind == "" {
		return fmt.Errorf("handler Kind() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for kind=%s", kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds lists the registered kinds in stable order, for startup logging.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
