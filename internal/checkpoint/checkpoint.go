package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/model"
)

var (
	// ErrCorrupt is returned by Load after an undecodable snapshot was discarded.
	ErrCorrupt = errors.New("checkpoint: corrupted snapshot discarded")
	// ErrSealed is returned by Save once Clear has run.
	ErrSealed = errors.New("checkpoint: session already submitted")
)

// Checkpoint is the persistence adapter for one session's snapshot key.
type Checkpoint struct {
	store Store
	key   string
	log   zerolog.Logger
	now   func() time.Time

	// mu serializes Save against Clear so a late save never resurrects a cleared snapshot.
	mu      sync.Mutex
	sealed  bool
	lastRev uint64
}

// New creates a Checkpoint for key.
func New(store Store, key string, log zerolog.Logger) *Checkpoint {
	return &Checkpoint{
		store: store,
		key:   key,
		log:   log.With().Str("component", "checkpoint").Str("key", key).Logger(),
		now:   time.Now,
	}
}

// Load reads the snapshot. It returns (nil, nil) when none exists.
func (c *Checkpoint) Load(ctx context.Context) (*model.Snapshot, error) {
	data, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Warn().Err(err).Msg("Discarding corrupted snapshot")
		if delErr := c.store.Delete(ctx, c.key); delErr != nil {
			c.log.Error().Err(delErr).Msg("Delete corrupted snapshot failed")
		}
		return nil, ErrCorrupt
	}
	if snap.Answers == nil {
		snap.Answers = map[string]model.Answer{}
	}
	if snap.MarkedForReview == nil {
		snap.MarkedForReview = map[string]bool{}
	}
	return &snap, nil
}

// Save writes snap unless the checkpoint is sealed or snap is older than
// the last written revision.
func (c *Checkpoint) Save(ctx context.Context, snap *model.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}
	if snap.Revision != 0 && snap.Revision <= c.lastRev {
		return nil
	}

	snap.LastUpdated = c.now().UnixMilli()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if snap.Revision != 0 {
		c.lastRev = snap.Revision
	}
	return nil
}

// Clear seals the checkpoint and deletes the snapshot.
func (c *Checkpoint) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sealed = true
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Discard deletes the snapshot without sealing, e.g. when it belongs to another event.
func (c *Checkpoint) Discard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Delete(ctx, c.key)
}
