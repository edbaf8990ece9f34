package auction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/metrics"
)

// Registry maps auction ids to their live coordinators. At most one
// coordinator exists per auction id at any time.
type Registry struct {
	store Store
	opts  Options

	mu     sync.RWMutex
	coords map[string]*Coordinator
	loads  singleflight.Group
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store, opts Options) *Registry {
	return &Registry{
		store:  store,
		opts:   opts.withDefaults(),
		coords: make(map[string]*Coordinator),
	}
}

// Options returns the effective coordinator options.
func (r *Registry) Options() Options { return r.opts }

// Store returns the backing record store.
func (r *Registry) Store() Store { return r.store }

// GetOrCreate returns the coordinator for id, loading the record on first
// access. It fails with ErrNotFound when no record exists. Concurrent calls
// for the same id share one load and one coordinator; the map lock is not
// held while the store is read.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Coordinator, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if c := r.Get(id); c != nil {
		return c, nil
	}
	v, err, _ := r.loads.Do(id, func() (any, error) {
		if c := r.Get(id); c != nil {
			return c, nil
		}
		a, err := r.store.Load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load auction %s: %w", id, err)
		}
		c := newCoordinator(a, r.store, r.opts)

		r.mu.Lock()
		r.coords[id] = c
		n := len(r.coords)
		r.mu.Unlock()

		metrics.Coordinators.Inc()
		log.Infow("coordinator loaded", "auction", id, "status", a.Status, "live", n)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Coordinator), nil
}

// Get returns the live coordinator for id without loading it.
func (r *Registry) Get(id string) *Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coords[id]
}

// Release retires the coordinator for id if its auction is closed. It
// returns false when there is no coordinator or the auction is still open.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	c, ok := r.coords[id]
	if !ok || c.Status() != StatusClosed {
		r.mu.Unlock()
		return false
	}
	delete(r.coords, id)
	r.mu.Unlock()

	c.retire()
	metrics.Coordinators.Dec()
	log.Infow("coordinator released", "auction", id)
	return true
}

// Coordinators returns the live coordinators ordered by auction id.
func (r *Registry) Coordinators() []*Coordinator {
	r.mu.RLock()
	out := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of live coordinators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.coords)
}
