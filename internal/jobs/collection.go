package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrRecordNotFound is returned when a record id is not in the collection.
var ErrRecordNotFound = errors.New("job record not found")

// Collection serializes read-modify-write cycles on one kind's records. The
// lock is held only around mirror access, never across network calls.
type Collection struct {
	kind   Kind
	mirror Mirror
	now    func() time.Time

	mu sync.Mutex
}

// NewCollection creates a collection for kind backed by mirror.
func NewCollection(kind Kind, mirror Mirror) *Collection {
	return &Collection{kind: kind, mirror: mirror, now: time.Now}
}

// Kind returns the collection's job kind.
func (c *Collection) Kind() Kind {
	return c.kind
}

// All returns every record, oldest first.
func (c *Collection) All(ctx context.Context) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.mirror.Load(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records, nil
}

// Get returns the record with id.
func (c *Collection) Get(ctx context.Context, id string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.mirror.Load(ctx, c.kind)
	if err != nil {
		return Record{}, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// Put inserts rec, replacing any record with the same id.
func (c *Collection) Put(ctx context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.mirror.Load(ctx, c.kind)
	if err != nil {
		return err
	}
	rec.Kind = c.kind
	rec.UpdatedAt = c.now()
	if i := indexOf(records, rec.ID); i >= 0 {
		records[i] = rec
	} else {
		records = append(records, rec)
	}
	return c.mirror.Save(ctx, c.kind, records)
}

// Update applies fn to the record with id and saves when fn reports a change.
// It returns the record as left by fn.
func (c *Collection) Update(ctx context.Context, id string, fn func(r *Record) bool) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.mirror.Load(ctx, c.kind)
	if err != nil {
		return Record{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if !fn(&records[i]) {
		return records[i], nil
	}
	records[i].UpdatedAt = c.now()
	if err := c.mirror.Save(ctx, c.kind, records); err != nil {
		return records[i], err
	}
	return records[i], nil
}

// Delete removes the record with id. Deleting a missing id is not an error.
func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.mirror.Load(ctx, c.kind)
	if err != nil {
		return false, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return false, nil
	}
	records = slices.Delete(records, i, i+1)
	return true, c.mirror.Save(ctx, c.kind, records)
}

// Replace rewrites the collection with the result of fn.
func (c *Collection) Replace(ctx context.Context, fn func(records []Record) []Record) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, err := c.mirror.Load(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	out := fn(records)
	if err := c.mirror.Save(ctx, c.kind, out); err != nil {
		return nil, err
	}
	return out, nil
}

func indexOf(records []Record, id string) int {
	return slices.IndexFunc(records, func(r Record) bool { return r.ID == id })
}
