package interfaces

import (
	"context"
	"time"

	"medibook/internal/models"
	"medibook/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AppointmentRepository interface {
	// Create reserves the doctor's slot and inserts in one step. A taken
	// slot yields *apperrors.SlotUnavailableError.
	Create(ctx context.Context, appointment *models.Appointment) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error)
	// FindConflicting returns the active appointment holding the slot, or
	// nil when the slot is free.
	FindConflicting(ctx context.Context, doctorID primitive.ObjectID, at time.Time) (*models.Appointment, error)

	// Update replaces the appointment if its stored version still equals
	// appointment.Version, then bumps the version. Losing the race yields
	// *apperrors.ConcurrentModificationError.
	Update(ctx context.Context, appointment *models.Appointment) error

	// CountReferralUsage counts a patient's non-cancelled appointments that
	// carry code.
	CountReferralUsage(ctx context.Context, patientID primitive.ObjectID, code string) (int, error)
	ListByDoctor(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time) ([]*models.Appointment, error)
	ListByPatient(ctx context.Context, patientID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Appointment, int64, error)
}
