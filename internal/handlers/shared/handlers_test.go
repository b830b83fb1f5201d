package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	handlers "medibook/internal/handlers/shared"
	"medibook/internal/lifecycle"
	"medibook/internal/middleware"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/repositories/memory"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/pkg/logger"
	"medibook/pkg/payment"
	"medibook/routes"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testJWTSecret = "test-jwt-secret"

type testApp struct {
	router *gin.Engine

	users     interfaces.UserRepository
	payments  interfaces.PaymentRepository
	referrals services.ReferralService
	razorpay  *payment.RazorpayGateway

	doctor *models.User
	agent  *models.User
	admin  *models.User
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	users := memory.NewUserRepository()
	codes := memory.NewReferralCodeRepository()
	appointments := memory.NewAppointmentRepository()
	payments := memory.NewPaymentRepository()
	razorpay := payment.NewRazorpayGateway("rzp_test_key", "rzp_test_secret")
	gateways := map[models.PaymentMethod]payment.Gateway{models.PaymentMethodRazorpay: razorpay}

	referralService := services.NewReferralService(codes, appointments, users, log, 3, 1)
	notificationService := services.NewNotificationService(services.NewMemoryNotificationQueue(), users, log, 24*time.Hour)
	bookingService := services.NewBookingService(appointments, users, referralService, log, lifecycle.DefaultPolicy(), 3)
	paymentService := services.NewPaymentService(payments, appointments, users, referralService, notificationService, gateways, log,
		services.PaymentServiceConfig{Currency: "INR", CashTolerance: 1.0, MaxRetries: 3})
	refundService := services.NewRefundService(payments, appointments, referralService, gateways, log, 3)
	userService := services.NewUserService(users, log)

	appointmentHandler := handlers.NewAppointmentHandler(bookingService, referralService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, refundService, bookingService)
	webhookHandler := handlers.NewWebhookHandler(paymentService)
	referralHandler := handlers.NewReferralHandler(referralService)
	userHandler := handlers.NewUserHandler(userService)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	auth := middleware.AuthRequired(testJWTSecret)
	limit := middleware.RateLimit(middleware.PerMinute(1000))

	v1 := router.Group("/api/v1")
	routes.SetupPaymentRoutes(v1, auth, limit, paymentHandler, webhookHandler)
	routes.SetupAppointmentRoutes(v1, auth, appointmentHandler, paymentHandler)
	routes.SetupUserRoutes(v1, auth, userHandler, referralHandler)
	routes.SetupAdminRoutes(v1, auth, userHandler, referralHandler, appointmentHandler, paymentHandler)

	app := &testApp{
		router:    router,
		users:     users,
		payments:  payments,
		referrals: referralService,
		razorpay:  razorpay,
	}
	app.doctor = app.addUser(t, &models.User{Name: "Dr. Rao", Email: "rao@example.com", Role: models.UserRoleDoctor, IsApproved: true, ConsultationFee: 1000})
	app.agent = app.addUser(t, &models.User{Name: "Agent Mia", Email: "mia@example.com", Role: models.UserRoleAgent, IsApproved: true, AgentCode: "AG-MIA"})
	app.admin = app.addUser(t, &models.User{Name: "Admin", Email: "admin@example.com", Role: models.UserRoleAdmin, IsApproved: true})
	return app
}

func (a *testApp) addUser(t *testing.T, user *models.User) *models.User {
	t.Helper()
	user.ID = primitive.NewObjectID()
	user.IsActive = true
	if err := a.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (a *testApp) newPatient(t *testing.T) *models.User {
	t.Helper()
	id := primitive.NewObjectID()
	return a.addUser(t, &models.User{Name: "Patient", Email: id.Hex() + "@example.com", Role: models.UserRolePatient, IsApproved: true})
}

func (a *testApp) createCode(t *testing.T, code string) *models.ReferralCode {
	t.Helper()
	now := time.Now()
	created, err := a.referrals.CreateCode(context.Background(), models.Actor{ID: a.admin.ID, Role: models.UserRoleAdmin}, &services.CreateReferralCodeInput{
		Code:    code,
		AgentID: a.agent.ID,
		ReferralCodeConfig: services.ReferralCodeConfig{
			DiscountType:    models.DiscountTypePercentage,
			DiscountValue:   20,
			CommissionType:  models.CommissionTypePercentage,
			CommissionValue: 10,
			MaxUsagePerUser: 1,
			StartDate:       now.Add(-time.Hour),
			ExpirationDate:  now.Add(30 * 24 * time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("CreateCode: %v", err)
	}
	return created
}

func (a *testApp) do(t *testing.T, method, path string, user *models.User, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		token, err := utils.GenerateAccessToken(user.ID, string(user.Role), testJWTSecret, time.Hour)
		if err != nil {
			t.Fatalf("GenerateAccessToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, data interface{}) envelope {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d: %s", w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v: %s", err, w.Body.String())
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func (a *testApp) book(t *testing.T, patient *models.User, at time.Time, code string) *models.Appointment {
	t.Helper()
	body := fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q,"referral_code":%q}`, a.doctor.ID.Hex(), at.Format(time.RFC3339), code)
	var appt models.Appointment
	decode(t, a.do(t, http.MethodPost, "/api/v1/appointments", patient, body), http.StatusCreated, &appt)
	return &appt
}

func slot(hours int) time.Time {
	return time.Now().UTC().Truncate(time.Hour).Add(time.Duration(hours) * time.Hour)
}

func TestBookAppointmentEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.createCode(t, "SAVE20")
	patient := app.newPatient(t)

	appt := app.book(t, patient, slot(48), "save20")
	if appt.Discount != 200 || appt.FinalAmount != 800 || appt.AgentCommission != 80 {
		t.Fatalf("pricing = %v/%v/%v, want 200/800/80", appt.Discount, appt.FinalAmount, appt.AgentCommission)
	}
	if appt.Status != models.AppointmentStatusScheduled {
		t.Fatalf("status = %s", appt.Status)
	}
}

func TestBookAppointmentErrors(t *testing.T) {
	app := newTestApp(t)
	app.createCode(t, "SAVE20")
	patient := app.newPatient(t)
	other := app.newPatient(t)
	taken := slot(72)
	app.book(t, other, taken, "")

	tests := []struct {
		name       string
		user       *models.User
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no token",
			body:       fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q}`, app.doctor.ID.Hex(), slot(48).Format(time.RFC3339)),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "doctor cannot book",
			user:       app.doctor,
			body:       fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q}`, app.doctor.ID.Hex(), slot(48).Format(time.RFC3339)),
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "unknown field",
			user:       patient,
			body:       fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q,"discount":500}`, app.doctor.ID.Hex(), slot(48).Format(time.RFC3339)),
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "past date",
			user:       patient,
			body:       fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q}`, app.doctor.ID.Hex(), slot(-2).Format(time.RFC3339)),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown referral code",
			user:       patient,
			body:       fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q,"referral_code":"NOPE99"}`, app.doctor.ID.Hex(), slot(48).Format(time.RFC3339)),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_REFERRAL",
		},
		{
			name:       "slot taken",
			user:       patient,
			body:       fmt.Sprintf(`{"doctor_id":%q,"appointment_date":%q}`, app.doctor.ID.Hex(), taken.Format(time.RFC3339)),
			wantStatus: http.StatusConflict,
			wantCode:   "SLOT_UNAVAILABLE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := decode(t, app.do(t, http.MethodPost, "/api/v1/appointments", tt.user, tt.body), tt.wantStatus, nil)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestInvalidReferralCarriesReason(t *testing.T) {
	app := newTestApp(t)
	patient := app.newPatient(t)

	body := `{"code":"MISSING","order_amount":1000}`
	env := decode(t, app.do(t, http.MethodPost, "/api/v1/referrals/validate", patient, body), http.StatusUnprocessableEntity, nil)
	if env.Error.Details["reason"] != "NotFound" {
		t.Fatalf("reason = %q, want NotFound", env.Error.Details["reason"])
	}
}

func TestGetAppointmentVisibility(t *testing.T) {
	app := newTestApp(t)
	patient := app.newPatient(t)
	stranger := app.newPatient(t)
	appt := app.book(t, patient, slot(48), "")
	path := "/api/v1/appointments/" + appt.ID.Hex()

	var view models.AppointmentView
	decode(t, app.do(t, http.MethodGet, path, patient, ""), http.StatusOK, &view)
	if view.Doctor == nil || view.Doctor.ID != app.doctor.ID {
		t.Fatalf("view doctor = %+v", view.Doctor)
	}
	decode(t, app.do(t, http.MethodGet, path, app.doctor, ""), http.StatusOK, nil)
	decode(t, app.do(t, http.MethodGet, path, stranger, ""), http.StatusForbidden, nil)
	decode(t, app.do(t, http.MethodGet, "/api/v1/appointments/not-an-id", patient, ""), http.StatusBadRequest, nil)
	decode(t, app.do(t, http.MethodGet, "/api/v1/appointments/"+primitive.NewObjectID().Hex(), patient, ""), http.StatusNotFound, nil)
}

func TestLifecycleEndpoints(t *testing.T) {
	app := newTestApp(t)
	patient := app.newPatient(t)
	appt := app.book(t, patient, slot(48), "")
	base := "/api/v1/appointments/" + appt.ID.Hex()

	var confirmed models.Appointment
	decode(t, app.do(t, http.MethodPut, base+"/confirm", app.doctor, ""), http.StatusOK, &confirmed)
	if confirmed.Status != models.AppointmentStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}

	// Confirming twice is an invalid transition.
	env := decode(t, app.do(t, http.MethodPut, base+"/confirm", app.doctor, ""), http.StatusConflict, nil)
	if env.Error.Code != "INVALID_STATE_TRANSITION" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	var cancelled models.Appointment
	decode(t, app.do(t, http.MethodPut, base+"/cancel", patient, `{"reason":"feeling better"}`), http.StatusOK, &cancelled)
	if cancelled.Status != models.AppointmentStatusCancelled || cancelled.CancellationReason != "feeling better" {
		t.Fatalf("cancelled = %s %q", cancelled.Status, cancelled.CancellationReason)
	}
}

func TestDoctorSchedule(t *testing.T) {
	app := newTestApp(t)
	patient := app.newPatient(t)
	app.book(t, patient, slot(48), "")

	query := url.Values{}
	query.Set("from", slot(0).Format(time.RFC3339))
	query.Set("to", slot(24*7).Format(time.RFC3339))

	var appointments []models.Appointment
	decode(t, app.do(t, http.MethodGet, "/api/v1/appointments/schedule?"+query.Encode(), app.doctor, ""), http.StatusOK, &appointments)
	if len(appointments) != 1 {
		t.Fatalf("schedule has %d appointments, want 1", len(appointments))
	}

	query.Set("to", slot(24*200).Format(time.RFC3339))
	decode(t, app.do(t, http.MethodGet, "/api/v1/appointments/schedule?"+query.Encode(), app.doctor, ""), http.StatusBadRequest, nil)
}

func TestRazorpayWebhook(t *testing.T) {
	app := newTestApp(t)
	app.createCode(t, "SAVE20")
	patient := app.newPatient(t)
	appt := app.book(t, patient, slot(48), "SAVE20")

	orderID := "order_" + appt.ID.Hex()
	if err := app.payments.Create(context.Background(), &models.Payment{
		AppointmentID:   appt.ID,
		PatientID:       patient.ID,
		PaymentMethod:   models.PaymentMethodRazorpay,
		GatewayOrderID:  orderID,
		Status:          models.PaymentStatusPending,
		Currency:        "INR",
		Amount:          appt.FinalAmount,
		Discount:        appt.Discount,
		AgentCommission: appt.AgentCommission,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	form := url.Values{}
	form.Set("razorpay_order_id", orderID)
	form.Set("razorpay_payment_id", "pay_1")
	form.Set("razorpay_signature", "deadbeef")

	env := decode(t, app.postForm("/api/v1/webhooks/razorpay", form), http.StatusBadRequest, nil)
	if env.Error.Code != "SIGNATURE_VERIFICATION_FAILED" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	// The failed attempt leaves the appointment payable again.
	if err := app.payments.Create(context.Background(), &models.Payment{
		AppointmentID:  appt.ID,
		PatientID:      patient.ID,
		PaymentMethod:  models.PaymentMethodRazorpay,
		GatewayOrderID: orderID + "_2",
		Status:         models.PaymentStatusPending,
		Currency:       "INR",
		Amount:         appt.FinalAmount,
	}); err != nil {
		t.Fatalf("create second payment: %v", err)
	}
	form.Set("razorpay_order_id", orderID+"_2")
	form.Set("razorpay_signature", app.razorpay.Signature(orderID+"_2", "pay_1"))

	var result models.ReconcileResult
	decode(t, app.postForm("/api/v1/webhooks/razorpay", form), http.StatusOK, &result)
	if result.PaymentStatus != models.PaymentStatusCompleted || result.Replayed {
		t.Fatalf("result = %+v", result)
	}

	decode(t, app.postForm("/api/v1/webhooks/razorpay", form), http.StatusOK, &result)
	if !result.Replayed {
		t.Fatal("second delivery should be reported as a replay")
	}

	var payments []models.Payment
	decode(t, app.do(t, http.MethodGet, "/api/v1/appointments/"+appt.ID.Hex()+"/payments", patient, ""), http.StatusOK, &payments)
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
}

func TestWebhookRejectsUnknownGateway(t *testing.T) {
	app := newTestApp(t)
	for _, gateway := range []string{"cash", "paypal"} {
		t.Run(gateway, func(t *testing.T) {
			env := decode(t, app.postForm("/api/v1/webhooks/"+gateway, url.Values{}), http.StatusBadRequest, nil)
			if env.Error.Code != "BAD_REQUEST" {
				t.Fatalf("code = %s", env.Error.Code)
			}
		})
	}
}

func TestCashCollectionAndRefund(t *testing.T) {
	app := newTestApp(t)
	patient := app.newPatient(t)
	appt := app.book(t, patient, slot(48), "")

	short := fmt.Sprintf(`{"appointment_id":%q,"agent_code":"AG-MIA","amount":500}`, appt.ID.Hex())
	env := decode(t, app.do(t, http.MethodPost, "/api/v1/payments/cash", app.agent, short), http.StatusUnprocessableEntity, nil)
	if env.Error.Code != "CASH_AMOUNT_MISMATCH" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	decode(t, app.do(t, http.MethodPost, "/api/v1/payments/cash", patient, short), http.StatusForbidden, nil)

	full := fmt.Sprintf(`{"appointment_id":%q,"agent_code":"AG-MIA","amount":1000}`, appt.ID.Hex())
	var result models.ReconcileResult
	decode(t, app.do(t, http.MethodPost, "/api/v1/payments/cash", app.agent, full), http.StatusOK, &result)
	if result.PaymentStatus != models.PaymentStatusCompleted {
		t.Fatalf("payment status = %s", result.PaymentStatus)
	}

	refundPath := "/api/v1/admin/payments/" + result.PaymentID.Hex() + "/refund"
	decode(t, app.do(t, http.MethodPost, refundPath, patient, `{"amount":100,"reason":"x"}`), http.StatusForbidden, nil)

	var refund models.RefundResult
	decode(t, app.do(t, http.MethodPost, refundPath, app.admin, `{"amount":300,"reason":"partial"}`), http.StatusOK, &refund)
	if refund.RefundedAmount != 300 || refund.Status != models.PaymentStatusPartiallyRefunded {
		t.Fatalf("refund = %+v", refund)
	}

	env = decode(t, app.do(t, http.MethodPost, refundPath, app.admin, `{"amount":800,"reason":"too much"}`), http.StatusUnprocessableEntity, nil)
	if env.Error.Code != "REFUND_EXCEEDS_AVAILABLE" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	decode(t, app.do(t, http.MethodPost, refundPath, app.admin, `{"amount":0,"reason":"zero"}`), http.StatusBadRequest, nil)

	var pay models.Payment
	decode(t, app.do(t, http.MethodGet, "/api/v1/payments/"+result.PaymentID.Hex(), patient, ""), http.StatusOK, &pay)
	if pay.RefundedAmount != 300 {
		t.Fatalf("refunded amount = %v", pay.RefundedAmount)
	}
}

func TestReferralCodeAdministration(t *testing.T) {
	app := newTestApp(t)
	start := time.Now().UTC().Truncate(time.Second)

	body := fmt.Sprintf(`{
		"code": "welcome10",
		"agent_id": %q,
		"discount_type": "percentage",
		"discount_value": 10,
		"commission_type": "fixed",
		"commission_value": 50,
		"max_usage_per_user": 1,
		"start_date": %q,
		"expiration_date": %q,
		"target_roles": ["patient"]
	}`, app.agent.ID.Hex(), start.Format(time.RFC3339), start.Add(24*time.Hour).Format(time.RFC3339))

	var code models.ReferralCode
	decode(t, app.do(t, http.MethodPost, "/api/v1/admin/referral-codes", app.admin, body), http.StatusCreated, &code)
	if code.Code != "WELCOME10" {
		t.Fatalf("code = %q, want WELCOME10", code.Code)
	}

	env := decode(t, app.do(t, http.MethodPost, "/api/v1/admin/referral-codes", app.admin, body), http.StatusConflict, nil)
	if env.Error.Code != "ALREADY_EXISTS" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	decode(t, app.do(t, http.MethodPost, "/api/v1/admin/referral-codes", app.agent, body), http.StatusForbidden, nil)

	overHundred := strings.Replace(body, `"discount_value": 10`, `"discount_value": 150`, 1)
	env = decode(t, app.do(t, http.MethodPost, "/api/v1/admin/referral-codes", app.admin, overHundred), http.StatusBadRequest, nil)
	if _, ok := env.Error.Details["discount_value"]; !ok {
		t.Fatalf("details = %v", env.Error.Details)
	}

	var deactivated models.ReferralCode
	decode(t, app.do(t, http.MethodPut, "/api/v1/admin/referral-codes/"+code.ID.Hex()+"/active", app.admin, `{"value":false}`), http.StatusOK, &deactivated)
	if deactivated.IsActive {
		t.Fatal("code should be inactive")
	}

	var mine []models.ReferralCode
	decode(t, app.do(t, http.MethodGet, "/api/v1/agent/referral-codes", app.agent, ""), http.StatusOK, &mine)
	if len(mine) != 1 {
		t.Fatalf("agent codes = %d, want 1", len(mine))
	}

	var summary models.AgentReferralSummary
	decode(t, app.do(t, http.MethodGet, "/api/v1/admin/agents/"+app.agent.ID.Hex()+"/referral-summary", app.admin, ""), http.StatusOK, &summary)
}

func TestUserAdministration(t *testing.T) {
	app := newTestApp(t)

	body := `{"name":"Dr. Iyer","email":"iyer@example.com","role":"doctor","consultation_fee":800,"specialization":"Dermatology"}`
	var doctor models.User
	decode(t, app.do(t, http.MethodPost, "/api/v1/admin/users", app.admin, body), http.StatusCreated, &doctor)
	if doctor.IsApproved {
		t.Fatal("new doctors start unapproved")
	}

	var approved models.User
	decode(t, app.do(t, http.MethodPut, "/api/v1/admin/doctors/"+doctor.ID.Hex()+"/approval", app.admin, `{"value":true}`), http.StatusOK, &approved)
	if !approved.IsApproved {
		t.Fatal("doctor should be approved")
	}

	decode(t, app.do(t, http.MethodPut, "/api/v1/admin/doctors/"+doctor.ID.Hex()+"/approval", app.admin, `{}`), http.StatusBadRequest, nil)

	var doctors []models.User
	env := decode(t, app.do(t, http.MethodGet, "/api/v1/admin/users?role=doctor", app.admin, ""), http.StatusOK, &doctors)
	if env.Status != "success" || len(doctors) != 2 {
		t.Fatalf("doctors = %d, want 2", len(doctors))
	}

	var me models.User
	decode(t, app.do(t, http.MethodGet, "/api/v1/me", app.agent, ""), http.StatusOK, &me)
	if me.ID != app.agent.ID {
		t.Fatalf("profile = %s", me.ID.Hex())
	}
}
