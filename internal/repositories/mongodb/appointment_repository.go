package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type appointmentRepository struct {
	collection *mongo.Collection
}

func NewAppointmentRepository(db *mongo.Database) interfaces.AppointmentRepository {
	return &appointmentRepository{
		collection: db.Collection(database.AppointmentsCollection),
	}
}

// Create relies on the unique partial index over active_slot: the conflict
// check and the insert are the same write.
func (r *appointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	appointment.ID = primitive.NewObjectID()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt
	appointment.Version = 1
	models.SyncSlot(appointment)

	if _, err := r.collection.InsertOne(ctx, appointment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return slotTaken(appointment)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Appointment, error) {
	var appt models.Appointment
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&appt); err != nil {
		return nil, notFound("appointment", id.Hex(), err)
	}
	return &appt, nil
}

func (r *appointmentRepository) FindConflicting(ctx context.Context, doctorID primitive.ObjectID, at time.Time) (*models.Appointment, error) {
	var appt models.Appointment
	err := r.collection.FindOne(ctx, bson.M{"active_slot": models.SlotKey(doctorID, at)}).Decode(&appt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check appointment conflict: %w", err)
	}
	return &appt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *models.Appointment) error {
	expected := appointment.Version
	models.SyncSlot(appointment)
	appointment.Version = expected + 1

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": appointment.ID, "version": expected}, appointment)
	if err != nil {
		appointment.Version = expected
		if mongo.IsDuplicateKeyError(err) {
			return slotTaken(appointment)
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if res.MatchedCount == 0 {
		appointment.Version = expected
		if _, err := r.GetByID(ctx, appointment.ID); err != nil {
			return err
		}
		return &apperrors.ConcurrentModificationError{Resource: "appointment", ID: appointment.ID.Hex()}
	}
	return nil
}

func (r *appointmentRepository) CountReferralUsage(ctx context.Context, patientID primitive.ObjectID, code string) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"patient_id":    patientID,
		"referral_code": code,
		"status":        bson.M{"$ne": models.AppointmentStatusCancelled},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count referral usage: %w", err)
	}
	return int(count), nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID primitive.ObjectID, from, to time.Time) ([]*models.Appointment, error) {
	filter := bson.M{
		"doctor_id":        doctorID,
		"appointment_date": bson.M{"$gte": from, "$lte": to},
	}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "appointment_date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list doctor appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var list []*models.Appointment
	if err := cursor.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return list, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Appointment, int64, error) {
	filter := bson.M{"patient_id": patientID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count patient appointments: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patient appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var list []*models.Appointment
	if err := cursor.All(ctx, &list); err != nil {
		return nil, 0, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return list, total, nil
}

func slotTaken(appointment *models.Appointment) error {
	return &apperrors.SlotUnavailableError{
		DoctorID: appointment.DoctorID.Hex(),
		Slot:     appointment.AppointmentDate.UTC().Format(time.RFC3339),
	}
}
