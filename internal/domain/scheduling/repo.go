package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *DoctorSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error)
	Update(ctx context.Context, s *DoctorSchedule) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*DoctorSchedule, int, error)
	// ListRange returns every schedule dated between from and to inclusive.
	ListRange(ctx context.Context, from, to string) ([]*DoctorSchedule, error)
}
