package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type reservationRepoPG struct {
	pool *pgxpool.Pool
	q    queryable
}

// NewReservationRepoPG returns a ReservationStore backed by the appointment
// and patient tables.
func NewReservationRepoPG(pool *pgxpool.Pool) ReservationStore {
	return &reservationRepoPG{pool: pool, q: pool}
}

const apptCols = `id, doctor_id, patient_id, appointment_date, appointment_time, created_at`

func (r *reservationRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var minutes int
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &minutes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Date = DateOf(a.Date)
	a.Time = TimeOfDay(minutes)
	return &a, nil
}

func (r *reservationRepoPG) FindByDoctorDateTime(ctx context.Context, doctorID uuid.UUID, date time.Time, t TimeOfDay) (*Appointment, error) {
	return r.scanAppt(r.q.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3`,
		doctorID, DateOf(date), int(t)))
}

func (r *reservationRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	rows, err := r.q.Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2 ORDER BY appointment_time`,
		doctorID, DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *reservationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.q.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *reservationRepoPG) Insert(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Date = DateOf(a.Date)
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, appointment_date, appointment_time)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		a.ID, a.DoctorID, a.PatientID, a.Date, int(a.Time)).Scan(&a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w (%s)", ErrDuplicateSlot, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}

func (r *reservationRepoPG) InsertPatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.q.QueryRow(ctx, `
		INSERT INTO patient (id, name, age, gender, address, phone)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		p.ID, p.Name, p.Age, p.Gender, p.Address, p.Phone).Scan(&p.CreatedAt)
}

func (r *reservationRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *reservationRepoPG) WithTx(ctx context.Context, fn func(ctx context.Context, tx ReservationStore) error) error {
	if r.pool == nil {
		// Already inside a transaction.
		return fn(ctx, r)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &reservationRepoPG{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
