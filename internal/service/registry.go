package service

import (
	"sort"

	"github.com/omnisense/dispatch/internal/models"
)

const defaultHistoryLimit = 500

// Registry owns every live Call by id, plus a bounded buffer of terminated
// and archived calls kept for pattern continuity.
type Registry struct {
	calls        map[string]*models.Call
	nextNumber   int
	history      []models.Call
	historyLimit int
}

func NewRegistry(historyLimit int) *Registry {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Registry{
		calls:        map[string]*models.Call{},
		historyLimit: historyLimit,
	}
}

// Add stores c and allocates its display number.
func (r *Registry) Add(c *models.Call) {
	r.nextNumber++
	c.CallNumber = r.nextNumber
	r.calls[c.ID] = c
}

func (r *Registry) Get(id string) (*models.Call, bool) {
	c, ok := r.calls[id]
	return c, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.calls[id]
	return ok
}

func (r *Registry) Delete(id string) {
	delete(r.calls, id)
}

func (r *Registry) Len() int {
	return len(r.calls)
}

// Created is the number of calls ever added.
func (r *Registry) Created() int {
	return r.nextNumber
}

// All returns the live calls ordered by call number.
func (r *Registry) All() []*models.Call {
	out := make([]*models.Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CallNumber < out[j].CallNumber
	})
	return out
}

// Remember appends a copy of c to the history buffer, replacing an older
// entry for the same id and evicting the oldest past the limit.
func (r *Registry) Remember(c models.Call) {
	for i := range r.history {
		if r.history[i].ID == c.ID {
			r.history = append(r.history[:i], r.history[i+1:]...)
			break
		}
	}
	r.history = append(r.history, c.Clone())
	if over := len(r.history) - r.historyLimit; over > 0 {
		r.history = append([]models.Call(nil), r.history[over:]...)
	}
}

func (r *Registry) History() []models.Call {
	return r.history
}

// Archive soft-deletes a live call: it leaves the registry and is kept only
// in the history buffer.
func (r *Registry) Archive(id string) (models.Call, bool) {
	c, ok := r.calls[id]
	if !ok {
		return models.Call{}, false
	}
	c.Archived = true
	c.Status = models.StatusArchived
	delete(r.calls, id)
	r.Remember(*c)
	return c.Clone(), true
}

// Archived returns archived calls from the history buffer, newest first.
func (r *Registry) Archived() []models.Call {
	out := []models.Call{}
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Archived {
			out = append(out, r.history[i].Clone())
		}
	}
	return out
}
