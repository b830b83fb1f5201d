package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/lifecycle"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/repositories/memory"
	"medibook/pkg/logger"
	"medibook/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testRazorpaySecret = "rzp_test_secret"

// fakeGateway records calls and answers callbacks with verify.
type fakeGateway struct {
	mu      sync.Mutex
	name    string
	orders  int
	refunds []payment.RefundRequest
	verify  payment.VerificationResult
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateOrder(ctx context.Context, request *payment.OrderRequest) (*payment.OrderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders++
	return &payment.OrderResponse{
		GatewayOrderID: fmt.Sprintf("%s_order_%d", g.name, g.orders),
		AmountSubunits: request.AmountSubunits,
		ClientSecret:   "secret",
	}, nil
}

func (g *fakeGateway) VerifyCallback(ctx context.Context, callback *payment.Callback) (*payment.VerificationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := g.verify
	result.GatewayOrderID = callback.Fields["order_id"]
	result.ExternalPaymentID = "ext_" + callback.Fields["order_id"]
	return &result, nil
}

func (g *fakeGateway) Refund(ctx context.Context, request *payment.RefundRequest) (*payment.RefundResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, *request)
	return &payment.RefundResponse{
		RefundID:       fmt.Sprintf("rfnd_%d", len(g.refunds)),
		Status:         "processed",
		AmountSubunits: request.AmountSubunits,
	}, nil
}

type fixture struct {
	ctx context.Context
	now time.Time

	userRepo        interfaces.UserRepository
	referralRepo    interfaces.ReferralCodeRepository
	appointmentRepo interfaces.AppointmentRepository
	paymentRepo     interfaces.PaymentRepository
	queue           NotificationQueue

	referrals     *referralService
	booking       *bookingService
	payments      *paymentService
	refunds       *refundService
	notifications *notificationService

	stripe   *fakeGateway
	razorpay *payment.RazorpayGateway

	doctor *models.User
	agent  *models.User
	admin  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:             context.Background(),
		now:             time.Now().UTC().Truncate(time.Second),
		userRepo:        memory.NewUserRepository(),
		referralRepo:    memory.NewReferralCodeRepository(),
		appointmentRepo: memory.NewAppointmentRepository(),
		paymentRepo:     memory.NewPaymentRepository(),
		queue:           NewMemoryNotificationQueue(),
		stripe:          &fakeGateway{name: "stripe", verify: payment.VerificationResult{Verified: true, Success: true, RawStatus: "succeeded"}},
		razorpay:        payment.NewRazorpayGateway("rzp_test_key", testRazorpaySecret),
	}
	fixed := func() time.Time { return f.now }
	log := logger.NewNop()
	gateways := map[models.PaymentMethod]payment.Gateway{
		models.PaymentMethodRazorpay: f.razorpay,
		models.PaymentMethodStripe:   f.stripe,
	}

	f.notifications = NewNotificationService(f.queue, f.userRepo, log, 24*time.Hour).(*notificationService)
	f.notifications.now = fixed
	f.referrals = NewReferralService(f.referralRepo, f.appointmentRepo, f.userRepo, log, 3, 1).(*referralService)
	f.referrals.now = fixed
	f.booking = NewBookingService(f.appointmentRepo, f.userRepo, f.referrals, log, lifecycle.DefaultPolicy(), 3).(*bookingService)
	f.booking.now = fixed
	f.payments = NewPaymentService(f.paymentRepo, f.appointmentRepo, f.userRepo, f.referrals, f.notifications, gateways, log,
		PaymentServiceConfig{Currency: "INR", CashTolerance: 1.0, MaxRetries: 3}).(*paymentService)
	f.payments.now = fixed
	f.refunds = NewRefundService(f.paymentRepo, f.appointmentRepo, f.referrals, gateways, log, 3).(*refundService)
	f.refunds.now = fixed

	f.doctor = f.addUser(t, &models.User{Name: "Dr. Rao", Email: "rao@example.com", Role: models.UserRoleDoctor,
		IsApproved: true, ConsultationFee: 1000})
	f.agent = f.addUser(t, &models.User{Name: "Agent Mia", Email: "mia@example.com", Role: models.UserRoleAgent,
		IsApproved: true, AgentCode: "AG-MIA"})
	f.admin = f.addUser(t, &models.User{Name: "Admin", Email: "admin@example.com", Role: models.UserRoleAdmin, IsApproved: true})
	return f
}

func (f *fixture) addUser(t *testing.T, user *models.User) *models.User {
	t.Helper()
	user.ID = primitive.NewObjectID()
	user.IsActive = true
	if err := f.userRepo.Create(f.ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (f *fixture) newPatient(t *testing.T) *models.User {
	t.Helper()
	id := primitive.NewObjectID()
	return f.addUser(t, &models.User{
		ID:         id,
		Name:       "Patient " + id.Hex()[18:],
		Email:      id.Hex() + "@example.com",
		Role:       models.UserRolePatient,
		IsApproved: true,
	})
}

func actorOf(u *models.User) models.Actor {
	return models.Actor{ID: u.ID, Role: u.Role}
}

// createCode makes an active code owned by the fixture agent. Defaults:
// 20% discount, 10% commission, no caps.
func (f *fixture) createCode(t *testing.T, code string, mutate func(*ReferralCodeConfig)) *models.ReferralCode {
	t.Helper()
	config := ReferralCodeConfig{
		DiscountType:    models.DiscountTypePercentage,
		DiscountValue:   20,
		CommissionType:  models.CommissionTypePercentage,
		CommissionValue: 10,
		MaxUsagePerUser: 1,
		StartDate:       f.now.Add(-24 * time.Hour),
		ExpirationDate:  f.now.Add(30 * 24 * time.Hour),
	}
	if mutate != nil {
		mutate(&config)
	}
	created, err := f.referrals.CreateCode(f.ctx, actorOf(f.admin), &CreateReferralCodeInput{
		Code:               code,
		AgentID:            f.agent.ID,
		ReferralCodeConfig: config,
	})
	if err != nil {
		t.Fatalf("CreateCode(%s): %v", code, err)
	}
	return created
}

func (f *fixture) code(t *testing.T, id primitive.ObjectID) *models.ReferralCode {
	t.Helper()
	c, err := f.referralRepo.GetByID(f.ctx, id)
	if err != nil {
		t.Fatalf("get code: %v", err)
	}
	return c
}

func (f *fixture) appointment(t *testing.T, id primitive.ObjectID) *models.Appointment {
	t.Helper()
	a, err := f.appointmentRepo.GetByID(f.ctx, id)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	return a
}

func (f *fixture) book(t *testing.T, patient *models.User, at time.Time, code string) *models.Appointment {
	t.Helper()
	appt, err := f.booking.BookAppointment(f.ctx, &BookAppointmentInput{
		PatientID:       patient.ID,
		DoctorID:        f.doctor.ID,
		AppointmentDate: at,
		ReferralCode:    code,
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	return appt
}

// pendingRazorpay stores a pending Razorpay payment for appt and returns a
// correctly signed success callback for it.
func (f *fixture) pendingRazorpay(t *testing.T, appt *models.Appointment) (*models.Payment, *payment.Callback) {
	t.Helper()
	orderID := "order_" + appt.ID.Hex()
	pay := &models.Payment{
		AppointmentID:   appt.ID,
		PatientID:       appt.PatientID,
		PaymentMethod:   models.PaymentMethodRazorpay,
		GatewayOrderID:  orderID,
		Status:          models.PaymentStatusPending,
		Currency:        "INR",
		Amount:          appt.FinalAmount,
		Discount:        appt.Discount,
		AgentCommission: appt.AgentCommission,
	}
	if err := f.paymentRepo.Create(f.ctx, pay); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	paymentID := "pay_" + appt.ID.Hex()
	return pay, &payment.Callback{Fields: map[string]string{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  f.razorpay.Signature(orderID, paymentID),
	}}
}

func (f *fixture) payRazorpay(t *testing.T, appt *models.Appointment) *models.ReconcileResult {
	t.Helper()
	_, callback := f.pendingRazorpay(t, appt)
	result, err := f.payments.ReconcilePayment(f.ctx, models.PaymentMethodRazorpay, callback)
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	return result
}

// payStripe runs a checkout through the fake card gateway.
func (f *fixture) payStripe(t *testing.T, appt *models.Appointment) *models.Payment {
	t.Helper()
	checkout, err := f.payments.InitiatePayment(f.ctx, appt.ID, models.Actor{ID: appt.PatientID, Role: models.UserRolePatient}, models.PaymentMethodStripe)
	if err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if _, err := f.payments.ReconcilePayment(f.ctx, models.PaymentMethodStripe,
		&payment.Callback{Fields: map[string]string{"order_id": checkout.GatewayOrderID}}); err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	pay, err := f.paymentRepo.GetByID(f.ctx, checkout.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	return pay
}

func (f *fixture) drainNotifications(t *testing.T) []models.Notification {
	t.Helper()
	var out []models.Notification
	for {
		n, err := f.queue.Dequeue(f.ctx, time.Millisecond)
		if errors.Is(err, ErrQueueEmpty) {
			return out
		}
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		out = append(out, *n)
	}
}

func assertReferralRejection(t *testing.T, err error, want apperrors.ReferralRejection) {
	t.Helper()
	var invalid *apperrors.InvalidReferralError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidReferralError(%s), got %v", want, err)
	}
	if invalid.Reason != want {
		t.Fatalf("rejection reason = %s, want %s", invalid.Reason, want)
	}
}

func assertInvalidTransition(t *testing.T, err error) {
	t.Helper()
	var ist *apperrors.InvalidStateTransitionError
	if !errors.As(err, &ist) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
}
