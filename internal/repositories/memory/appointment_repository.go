package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type appointmentRepository struct {
	mu           sync.RWMutex
	appointments map[primitive.ObjectID]models.Appointment
	// slots maps an active slot key to the appointment holding it.
	slots map[string]primitive.ObjectID
}

func NewAppointmentRepository() interfaces.AppointmentRepository {
	return &appointmentRepository{
		appointments: make(map[primitive.ObjectID]models.Appointment),
		slots:        make(map[string]primitive.ObjectID),
	}
}

func cloneAppointment(a models.Appointment) *models.Appointment {
	if a.Consultation != nil {
		c := *a.Consultation
		a.Consultation = &c
	}
	if a.ActiveSlot != nil {
		s := *a.ActiveSlot
		a.ActiveSlot = &s
	}
	return &a
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appointment.ID.IsZero() {
		appointment.ID = primitive.NewObjectID()
	}
	models.SyncSlot(appointment)
	if appointment.ActiveSlot != nil {
		if _, taken := r.slots[*appointment.ActiveSlot]; taken {
			return &apperrors.SlotUnavailableError{
				DoctorID: appointment.DoctorID.Hex(),
				Slot:     appointment.AppointmentDate.UTC().Format(time.RFC3339),
			}
		}
		r.slots[*appointment.ActiveSlot] = appointment.ID
	}

	now := time.Now()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	appointment.Version = 1
	r.appointments[appointment.ID] = *cloneAppointment(*appointment)
	return nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return cloneAppointment(appt), nil
}

func (r *appointmentRepository) FindConflicting(ctx context.Context, doctorID primitive.ObjectID, at time.Time) (*models.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.slots[models.SlotKey(doctorID, at)]
	if !ok {
		return nil, nil
	}
	return cloneAppointment(r.appointments[id]), nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.appointments[appointment.ID]
	if !ok {
		return fmt.Errorf("appointment %s: %w", appointment.ID.Hex(), apperrors.ErrNotFound)
	}
	if stored.Version != appointment.Version {
		return &apperrors.ConcurrentModificationError{Resource: "appointment", ID: appointment.ID.Hex()}
	}

	models.SyncSlot(appointment)
	if appointment.ActiveSlot != nil {
		if holder, taken := r.slots[*appointment.ActiveSlot]; taken && holder != appointment.ID {
			return &apperrors.SlotUnavailableError{
				DoctorID: appointment.DoctorID.Hex(),
				Slot:     appointment.AppointmentDate.UTC().Format(time.RFC3339),
			}
		}
	}
	if stored.ActiveSlot != nil {
		delete(r.slots, *stored.ActiveSlot)
	}
	if appointment.ActiveSlot != nil {
		r.slots[*appointment.ActiveSlot] = appointment.ID
	}

	appointment.Version++
	r.appointments[appointment.ID] = *cloneAppointment(*appointment)
	return nil
}

func (r *appointmentRepository) CountReferralUsage(ctx context.Context, patientID primitive.ObjectID, code string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, a := range r.appointments {
		if a.PatientID == patientID && a.ReferralCode == code && a.Status != models.AppointmentStatusCancelled {
			count++
		}
	}
	return count, nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time) ([]*models.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*models.Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if a.AppointmentDate.Before(from) || a.AppointmentDate.After(to) {
			continue
		}
		list = append(list, cloneAppointment(a))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AppointmentDate.Before(list[j].AppointmentDate) })
	return list, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Appointment, int64, error) {
	r.mu.RLock()
	var list []*models.Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			list = append(list, cloneAppointment(a))
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].AppointmentDate.After(list[j].AppointmentDate) })
	return paginate(list, params), int64(len(list)), nil
}
