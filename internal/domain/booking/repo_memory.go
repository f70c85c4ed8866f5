package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	doctorID uuid.UUID
	date     time.Time
	time     TimeOfDay
}

func keyOf(a *Appointment) slotKey {
	return slotKey{doctorID: a.DoctorID, date: DateOf(a.Date), time: a.Time}
}

// MemoryStore is an in-process ReservationStore. The slot index enforces the
// same doctor/date/time uniqueness the database index does.
type MemoryStore struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	patients     map[uuid.UUID]*Patient
	slots        map[slotKey]uuid.UUID
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[uuid.UUID]*Appointment),
		patients:     make(map[uuid.UUID]*Patient),
		slots:        make(map[slotKey]uuid.UUID),
		now:          time.Now,
	}
}

func (m *MemoryStore) FindByDoctorDateTime(_ context.Context, doctorID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slots[slotKey{doctorID: doctorID, date: DateOf(date), time: t}]
	if !ok {
		return nil, ErrNotFound
	}
	a := *m.appointments[id]
	return &a, nil
}

func (m *MemoryStore) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := DateOf(date)
	var result []*Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && DateOf(a.Date).Equal(day) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetPatient is used by tests and the management views.
func (m *MemoryStore) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Insert(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(a)
}

func (m *MemoryStore) insertLocked(a *Appointment) error {
	a.Date = DateOf(a.Date)
	k := keyOf(a)
	if _, taken := m.slots[k]; taken {
		return ErrDuplicateSlot
	}
	a.ID = uuid.New()
	a.CreatedAt = m.now()
	cp := *a
	m.appointments[a.ID] = &cp
	m.slots[k] = a.ID
	return nil
}

func (m *MemoryStore) InsertPatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = m.now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return false, nil
	}
	delete(m.slots, keyOf(a))
	delete(m.appointments, id)
	return true, nil
}

// WithTx stages writes in a memTx and applies them under the write lock only
// when fn succeeds.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ReservationStore) error) error {
	tx := &memTx{parent: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range tx.appointments {
		if _, taken := m.slots[keyOf(a)]; taken {
			return ErrDuplicateSlot
		}
	}
	for _, p := range tx.patients {
		cp := *p
		m.patients[p.ID] = &cp
	}
	for _, a := range tx.appointments {
		cp := *a
		m.appointments[a.ID] = &cp
		m.slots[keyOf(a)] = a.ID
	}
	for _, id := range tx.deleted {
		if a, ok := m.appointments[id]; ok {
			delete(m.slots, keyOf(a))
			delete(m.appointments, id)
		}
	}
	return nil
}

// memTx reads through to the parent store and buffers writes.
type memTx struct {
	parent       *MemoryStore
	patients     []*Patient
	appointments []*Appointment
	deleted      []uuid.UUID
}

func (t *memTx) FindByDoctorDateTime(ctx context.Context, doctorID uuid.UUID, date time.Time, tod TimeOfDay) (*Appointment, error) {
	k := slotKey{doctorID: doctorID, date: DateOf(date), time: tod}
	for _, a := range t.appointments {
		if keyOf(a) == k {
			cp := *a
			return &cp, nil
		}
	}
	return t.parent.FindByDoctorDateTime(ctx, doctorID, date, tod)
}

func (t *memTx) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	result, err := t.parent.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	day := DateOf(date)
	for _, a := range t.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(day) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result, nil
}

func (t *memTx) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	for _, a := range t.appointments {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return t.parent.GetByID(ctx, id)
}

func (t *memTx) Insert(ctx context.Context, a *Appointment) error {
	a.Date = DateOf(a.Date)
	if _, err := t.FindByDoctorDateTime(ctx, a.DoctorID, a.Date, a.Time); err == nil {
		return ErrDuplicateSlot
	}
	a.ID = uuid.New()
	a.CreatedAt = t.parent.now()
	cp := *a
	t.appointments = append(t.appointments, &cp)
	return nil
}

func (t *memTx) InsertPatient(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = t.parent.now()
	cp := *p
	t.patients = append(t.patients, &cp)
	return nil
}

func (t *memTx) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := t.GetByID(ctx, id); err != nil {
		return false, nil
	}
	t.deleted = append(t.deleted, id)
	return true, nil
}

func (t *memTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx ReservationStore) error) error {
	return fn(ctx, t)
}
