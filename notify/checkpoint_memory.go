package notify

import (
	"context"
	"errors"
	"time"

	"github.com/r3e-network/objectstore/infrastructure/state"
)

// MemoryCheckpoints is an in-process CheckpointStore, used in tests and by
// any deployment that accepts at-most-once-per-process delivery instead of
// cross-restart durability. Backed by infrastructure/state.PersistentState
// over a state.MemoryBackend rather than a second hand-rolled
// mutex-guarded map, storing each subscriber's checkpoint as the binary
// encoding of its time.Time (time.Time.MarshalBinary).
type MemoryCheckpoints struct {
	state *state.PersistentState
}

// NewMemoryCheckpoints returns an empty MemoryCheckpoints.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	ps, err := state.NewPersistentState(state.Config{
		Backend:   state.NewMemoryBackend(0),
		KeyPrefix: "checkpoint:",
	})
	if err != nil {
		// NewPersistentState only errors when Backend is nil, which it
		// never is here.
		panic(err)
	}
	return &MemoryCheckpoints{state: ps}
}

func (c *MemoryCheckpoints) LoadCheckpoint(ctx context.Context, subscriberID string) (time.Time, bool, error) {
	data, err := c.state.Load(ctx, subscriberID)
	if errors.Is(err, state.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var t time.Time
	if err := t.UnmarshalBinary(data); err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (c *MemoryCheckpoints) SaveCheckpoint(ctx context.Context, subscriberID string, txTime time.Time) error {
	data, err := txTime.MarshalBinary()
	if err != nil {
		return err
	}
	return c.state.Save(ctx, subscriberID, data)
}
