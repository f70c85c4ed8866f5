package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

type dayKey struct {
	doctorID uuid.UUID
	date     string
}

func dayKeyOf(doctorID uuid.UUID, date time.Time) dayKey {
	return dayKey{doctorID: doctorID, date: DateOf(date).Format(DateLayout)}
}

// CachedStore keeps each doctor's booked day in an LRU so slot grids do not hit
// the database on every render. Entries are dropped after every write that
// touches the day. The cache is per process, so deployments running several
// replicas against one database should leave it disabled.
//
// A load that overlaps a write is returned to its caller but never stored:
// every eviction bumps gen, and a fill only lands if gen is unchanged since
// the load began.
type CachedStore struct {
	ReservationStore
	days *lru.Cache[dayKey, []*Appointment]

	mu  sync.Mutex
	gen uint64
}

func NewCachedStore(inner ReservationStore, size int) (*CachedStore, error) {
	days, err := lru.New[dayKey, []*Appointment](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{ReservationStore: inner, days: days}, nil
}

func (c *CachedStore) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	key := dayKeyOf(doctorID, date)
	if items, ok := c.days.Get(key); ok {
		return cloneAppointments(items), nil
	}

	c.mu.Lock()
	start := c.gen
	c.mu.Unlock()

	items, err := c.ReservationStore.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == start {
		c.days.Add(key, cloneAppointments(items))
	}
	c.mu.Unlock()
	return items, nil
}

// evict drops the given days and invalidates any fill still in flight.
func (c *CachedStore) evict(keys ...dayKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, k := range keys {
		c.days.Remove(k)
	}
}

func (c *CachedStore) Insert(ctx context.Context, a *Appointment) error {
	err := c.ReservationStore.Insert(ctx, a)
	c.evict(dayKeyOf(a.DoctorID, a.Date))
	return err
}

func (c *CachedStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if a, err := c.ReservationStore.GetByID(ctx, id); err == nil {
		defer c.evict(dayKeyOf(a.DoctorID, a.Date))
	}
	return c.ReservationStore.Delete(ctx, id)
}

// WithTx records the days written inside the transaction and evicts them
// once it finishes, committed or not.
func (c *CachedStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ReservationStore) error) error {
	var touched []dayKey
	defer func() { c.evict(touched...) }()
	return c.ReservationStore.WithTx(ctx, func(ctx context.Context, tx ReservationStore) error {
		return fn(ctx, &touchRecorder{ReservationStore: tx, touched: &touched})
	})
}

// Len reports the number of cached days.
func (c *CachedStore) Len() int { return c.days.Len() }

type touchRecorder struct {
	ReservationStore
	touched *[]dayKey
}

func (t *touchRecorder) Insert(ctx context.Context, a *Appointment) error {
	err := t.ReservationStore.Insert(ctx, a)
	*t.touched = append(*t.touched, dayKeyOf(a.DoctorID, a.Date))
	return err
}

func (t *touchRecorder) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if a, err := t.ReservationStore.GetByID(ctx, id); err == nil {
		*t.touched = append(*t.touched, dayKeyOf(a.DoctorID, a.Date))
	}
	return t.ReservationStore.Delete(ctx, id)
}

func cloneAppointments(items []*Appointment) []*Appointment {
	out := make([]*Appointment, len(items))
	for i, a := range items {
		cp := *a
		out[i] = &cp
	}
	return out
}
