package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type paymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) interfaces.PaymentRepository {
	return &paymentRepository{
		collection: db.Collection(database.PaymentsCollection),
	}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = primitive.NewObjectID()
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	payment.Version = 1
	if payment.Status != models.PaymentStatusFailed {
		id := payment.AppointmentID
		payment.ActiveAppointmentID = &id
	}

	if _, err := r.collection.InsertOne(ctx, payment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			dup := &apperrors.DuplicatePaymentError{AppointmentID: payment.AppointmentID.Hex()}
			if existing, getErr := r.GetActiveForAppointment(ctx, payment.AppointmentID); getErr == nil && existing != nil {
				dup.ExistingID = existing.ID.Hex()
			}
			return dup
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&payment); err != nil {
		return nil, notFound("payment", id.Hex(), err)
	}
	return &payment, nil
}

func (r *paymentRepository) GetByGatewayOrderID(ctx context.Context, method models.PaymentMethod, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, bson.M{"payment_method": method, "gateway_order_id": orderID}).Decode(&payment)
	if err != nil {
		return nil, notFound("payment for order", orderID, err)
	}
	return &payment, nil
}

func (r *paymentRepository) GetActiveForAppointment(ctx context.Context, appointmentID primitive.ObjectID) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, bson.M{"active_appointment_id": appointmentID}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) ListByAppointment(ctx context.Context, appointmentID primitive.ObjectID) ([]*models.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"appointment_id": appointmentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var list []*models.Payment
	if err := cursor.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return list, nil
}

// Settle filters on status pending, so a replayed callback matches nothing
// and gets the stored payment back.
func (r *paymentRepository) Settle(ctx context.Context, id primitive.ObjectID, settlement interfaces.PaymentSettlement) (*models.Payment, bool, error) {
	set := bson.M{
		"status":     settlement.Status,
		"updated_at": settlement.At,
	}
	if settlement.GatewayPaymentID != "" {
		set["gateway_payment_id"] = settlement.GatewayPaymentID
	}
	if settlement.CollectedBy != nil {
		set["collected_by"] = *settlement.CollectedBy
	}

	update := bson.M{"$inc": bson.M{"version": 1}}
	if settlement.Status == models.PaymentStatusCompleted {
		set["completed_at"] = settlement.At
	} else {
		set["failed_at"] = settlement.At
		set["failure_reason"] = settlement.FailureReason
		update["$unset"] = bson.M{"active_appointment_id": ""}
	}
	update["$set"] = set

	var settled models.Payment
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.PaymentStatusPending},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&settled)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to settle payment: %w", err)
	}
	return &settled, true, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	expected := payment.Version
	payment.Version = expected + 1
	payment.UpdatedAt = time.Now()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": payment.ID, "version": expected}, payment)
	if err != nil {
		payment.Version = expected
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		payment.Version = expected
		if _, err := r.GetByID(ctx, payment.ID); err != nil {
			return err
		}
		return &apperrors.ConcurrentModificationError{Resource: "payment", ID: payment.ID.Hex()}
	}
	return nil
}
