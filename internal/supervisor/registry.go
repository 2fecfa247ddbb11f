// internal/supervisor/registry.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tamzrod/baywatch/internal/classify"
	"github.com/tamzrod/baywatch/internal/occupancy"
	"github.com/tamzrod/baywatch/internal/stream"
	"github.com/tamzrod/baywatch/internal/writer"
)

// ErrUnknownBay is returned for ids not present in the registry.
var ErrUnknownBay = errors.New("supervisor: unknown bay")

// Feed is the part of a stream connection the supervisor drives.
// *stream.Connection satisfies it.
type Feed interface {
	Start(ctx context.Context)
	Stop(timeout time.Duration) error
	State() stream.ConnectionState
	ResetQuality()
}

// Bay is one monitored slot and everything owned on its behalf.
type Bay struct {
	ID   int
	Name string

	Feed       Feed
	Tracker    *occupancy.Tracker
	Classifier classify.Classifier // nil => no detection
	Status     writer.StatusWriter // nil => export disabled
}

// Registry is the fixed set of bays, built once at startup.
// It is read-only after construction.
type Registry struct {
	bays []*Bay
	byID map[int]*Bay
}

// NewRegistry orders bays by id and rejects duplicates.
func NewRegistry(bays []*Bay) (*Registry, error) {
	r := &Registry{
		bays: make([]*Bay, 0, len(bays)),
		byID: make(map[int]*Bay, len(bays)),
	}
	for _, b := range bays {
		if b == nil || b.Feed == nil || b.Tracker == nil {
			return nil, errors.New("supervisor: bay requires feed and tracker")
		}
		if _, dup := r.byID[b.ID]; dup {
			return nil, fmt.Errorf("supervisor: duplicate bay id %d", b.ID)
		}
		r.byID[b.ID] = b
		r.bays = append(r.bays, b)
	}
	sort.Slice(r.bays, func(i, j int) bool { return r.bays[i].ID < r.bays[j].ID })
	return r, nil
}

// Bays returns the bays in ascending id order.
func (r *Registry) Bays() []*Bay {
	out := make([]*Bay, len(r.bays))
	copy(out, r.bays)
	return out
}

func (r *Registry) Len() int { return len(r.bays) }

// IDs returns the bay ids in ascending order.
func (r *Registry) IDs() []int {
	out := make([]int, len(r.bays))
	for i, b := range r.bays {
		out[i] = b.ID
	}
	return out
}

// Get looks a bay up by id.
func (r *Registry) Get(id int) (*Bay, error) {
	b, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBay, id)
	}
	return b, nil
}

// States returns a point-in-time copy of every bay, in id order.
func (r *Registry) States() []occupancy.BayState {
	out := make([]occupancy.BayState, 0, len(r.bays))
	for _, b := range r.bays {
		out = append(out, b.Tracker.State())
	}
	return out
}

// StartAll launches every feed worker.
func (r *Registry) StartAll(ctx context.Context) {
	for _, b := range r.bays {
		b.Feed.Start(ctx)
	}
}

// StopAll stops every feed, each bounded by timeout.
func (r *Registry) StopAll(timeout time.Duration) error {
	var errs []error
	for _, b := range r.bays {
		if err := b.Feed.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("bay %d: %w", b.ID, err))
		}
	}
	return errors.Join(errs...)
}
