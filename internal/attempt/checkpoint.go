package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

// SnapshotPrefix is the key prefix under which attempt snapshots are stored.
const SnapshotPrefix = "attempts/"

func SnapshotKey(attemptID string) string { return SnapshotPrefix + attemptID + ".json" }

// AttemptIDFromKey is the inverse of SnapshotKey.
func AttemptIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, SnapshotPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".json")
	return id, ok && id != ""
}

// Checkpointer writes snapshots in the background. Save never blocks on I/O:
// it records the latest serialized state per attempt and a writer goroutine
// persists whatever is newest when it gets to it.
type Checkpointer struct {
	store storage.BlobStore

	mu      sync.Mutex
	pending map[string][]byte
	wake    chan struct{}

	writeMu sync.Mutex // held while writing or deleting
}

func NewCheckpointer(store storage.BlobStore) *Checkpointer {
	return &Checkpointer{
		store:   store,
		pending: map[string][]byte{},
		wake:    make(chan struct{}, 1),
	}
}

// Save queues the current state. Attempts that already have a persisted
// result are not snapshotted.
func (c *Checkpointer) Save(st *State) {
	snap := st.Snapshot()
	if snap.Status.Final() {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("checkpoint %s: %v", st.ID(), err)
		return
	}
	c.mu.Lock()
	c.pending[st.ID()] = data
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is done, then flushes once more.
func (c *Checkpointer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Flush(fctx); err != nil {
				log.Printf("checkpoint final flush: %v", err)
			}
			cancel()
			return
		case <-c.wake:
			if err := c.Flush(ctx); err != nil {
				log.Printf("checkpoint flush: %v", err)
			}
		}
	}
}

// Flush writes every queued snapshot. Failed writes are re-queued unless a
// newer state arrived meanwhile.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	batch := c.pending
	c.pending = map[string][]byte{}
	c.mu.Unlock()

	var errs []error
	for id, data := range batch {
		if err := c.store.Put(ctx, SnapshotKey(id), data); err != nil {
			errs = append(errs, err)
			c.mu.Lock()
			if _, newer := c.pending[id]; !newer {
				c.pending[id] = data
			}
			c.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// Forget drops any queued snapshot for attemptID and deletes the stored one.
func (c *Checkpointer) Forget(ctx context.Context, attemptID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	delete(c.pending, attemptID)
	c.mu.Unlock()
	return c.store.Delete(ctx, SnapshotKey(attemptID))
}

// Load reads the stored snapshot of attemptID. Pending writes are not consulted.
func (c *Checkpointer) Load(ctx context.Context, attemptID string) (Snapshot, error) {
	data, err := c.store.Get(ctx, SnapshotKey(attemptID))
	if err != nil {
		return Snapshot{}, err
	}
	return unmarshalSnapshot(data)
}

// Stored lists the attempt ids that currently have a stored snapshot.
func (c *Checkpointer) Stored(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, SnapshotPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := AttemptIDFromKey(k); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
