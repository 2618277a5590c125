package queue

import (
	"sync"

	"github.com/garethmul/newsmill/pkg/models"
)

// Registry maps job types to their handlers. Registration happens at wiring
// time, before the pool starts; lookups happen on every claim.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.JobType]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]HandlerFunc)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Registry) Register(jobType models.JobType, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Handler returns the handler for the job type, or nil when none is bound.
func (r *Registry) Handler(jobType models.JobType) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

// Types lists the registered job types.
func (r *Registry) Types() []models.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.JobType, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	return types
}
