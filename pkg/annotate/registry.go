package annotate

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/multierr"
)

// Registry errors.
var (
	ErrDuplicate = errors.New("annotate: annotator already registered")
	ErrUnknown   = errors.New("annotate: no such annotator")
)

type entry struct {
	name    string
	a       Annotator
	enabled bool
}

// Info describes a registered annotator.
type Info struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Registry is an ordered, named set of annotators. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) index(name string) int {
	for i, e := range r.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

// Add appends an enabled annotator under name.
func (r *Registry) Add(name string, a Annotator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.entries = append(r.entries, entry{name: name, a: a, enabled: true})
	return nil
}

// Remove deletes the named annotator.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return nil
}

// SetEnabled turns the named annotator on or off without losing its place.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	r.entries[i].enabled = enabled
	return nil
}

// Names returns the registered names in render order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// List returns name and enabled state in render order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, len(r.entries))
	for i, e := range r.entries {
		out[i] = Info{Name: e.name, Enabled: e.enabled}
	}
	return out
}

// Render applies every enabled annotator in order. A failing annotator does
// not stop the others; their errors are combined.
func (r *Registry) Render(img *image.RGBA, scale float64, c Context) error {
	r.mu.RLock()
	entries := append([]entry(nil), r.entries...)
	r.mu.RUnlock()

	var err error
	for _, e := range entries {
		if !e.enabled {
			continue
		}
		if aerr := e.a.Apply(img, scale, c); aerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", e.name, aerr))
		}
	}
	return err
}
