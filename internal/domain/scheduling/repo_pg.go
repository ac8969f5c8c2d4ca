package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dental/clinic/internal/platform/db"
)

type scheduleRepoPG struct{ db db.Querier }

// NewRepoPG returns a Repository over a pool, or any other Querier. Calls
// made with a context carrying a transaction from db.WithTx join it.
func NewRepoPG(q db.Querier) Repository { return &scheduleRepoPG{db: q} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.ConnFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

const scheduleCols = `id, doctor_id, doctor_name, specialty, date::text, day, status,
	is_active, time_slots, version_id, created_at, updated_at`

func (r *scheduleRepoPG) scanSchedule(row pgx.Row) (*DoctorSchedule, error) {
	var (
		s      DoctorSchedule
		status string
		slots  []byte
	)
	err := row.Scan(&s.ID, &s.DoctorID, &s.DoctorName, &s.Specialty, &s.Date, &s.Day, &status,
		&s.IsActive, &slots, &s.VersionID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = Status(status)
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &s.TimeSlots); err != nil {
			return nil, fmt.Errorf("decode time slots of %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

func encodeSlots(slots []TimeSlot) ([]byte, error) {
	if slots == nil {
		slots = []TimeSlot{}
	}
	return json.Marshal(stripKeys(slots))
}

func (r *scheduleRepoPG) Create(ctx context.Context, s *DoctorSchedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	slots, err := encodeSlots(s.TimeSlots)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedule (id, doctor_id, doctor_name, specialty, date, day, status, is_active, time_slots)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING version_id, created_at, updated_at`,
		s.ID, s.DoctorID, s.DoctorName, s.Specialty, s.Date, s.Day, string(s.Status), s.IsActive, slots,
	).Scan(&s.VersionID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error) {
	query := `SELECT ` + scheduleCols + ` FROM doctor_schedule WHERE id = $1`
	if db.ConnFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	return r.scanSchedule(r.conn(ctx).QueryRow(ctx, query, id))
}

func (r *scheduleRepoPG) Update(ctx context.Context, s *DoctorSchedule) error {
	slots, err := encodeSlots(s.TimeSlots)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_schedule SET date=$2, day=$3, status=$4, is_active=$5, time_slots=$6,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version_id, updated_at`,
		s.ID, s.Date, s.Day, string(s.Status), s.IsActive, slots,
	).Scan(&s.VersionID, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrScheduleNotFound
	}
	return err
}

func (r *scheduleRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_schedule SET status = $2, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *scheduleRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*DoctorSchedule, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Date != "" {
		where += fmt.Sprintf(` AND date = $%d`, idx)
		args = append(args, f.Date)
		idx++
	}
	if f.From != "" {
		where += fmt.Sprintf(` AND date >= $%d`, idx)
		args = append(args, f.From)
		idx++
	}
	if f.To != "" {
		where += fmt.Sprintf(` AND date <= $%d`, idx)
		args = append(args, f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor_schedule`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + scheduleCols + ` FROM doctor_schedule` + where +
		fmt.Sprintf(` ORDER BY date ASC, doctor_name ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *scheduleRepoPG) ListRange(ctx context.Context, from, to string) ([]*DoctorSchedule, error) {
	return r.query(ctx, `SELECT `+scheduleCols+` FROM doctor_schedule
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, doctor_name ASC`, from, to)
}

func (r *scheduleRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*DoctorSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DoctorSchedule
	for rows.Next() {
		s, err := r.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
