package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/database"
	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/payhere"
	"github.com/edimy/tutoring-backend/internal/session"
)

const (
	testMerchantID     = "1221149"
	testMerchantSecret = "test-merchant-secret"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ----------------------------------------------------------------------------
// holds
// ----------------------------------------------------------------------------

type memoryHolds struct {
	mu      sync.Mutex
	holds   map[uuid.UUID]*models.SlotHold
	created   int
	getErr    error
	createErr error
}

func newMemoryHolds() *memoryHolds {
	return &memoryHolds{holds: make(map[uuid.UUID]*models.SlotHold)}
}

func (m *memoryHolds) CreateHold(ctx context.Context, hold *models.SlotHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, h := range m.holds {
		if h.UserID == hold.UserID && h.Status == models.HoldStatusHeld {
			h.Status = models.HoldStatusReleased
		}
	}
	cp := *hold
	m.holds[hold.ID] = &cp
	m.created++
	return nil
}

func (m *memoryHolds) GetHoldByID(ctx context.Context, id uuid.UUID) (*models.SlotHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	h, ok := m.holds[id]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (m *memoryHolds) ConfirmHold(ctx context.Context, id uuid.UUID) error {
	return m.transition(id, models.HoldStatusConfirmed, true)
}

func (m *memoryHolds) ReleaseHold(ctx context.Context, id uuid.UUID) error {
	return m.transition(id, models.HoldStatusReleased, false)
}

func (m *memoryHolds) transition(id uuid.UUID, to models.SlotHoldStatus, requireUnexpired bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[id]
	if !ok || h.Status != models.HoldStatusHeld || (requireUnexpired && h.IsExpired()) {
		return database.ErrHoldNotActive
	}
	h.Status = to
	return nil
}

func (m *memoryHolds) status(id uuid.UUID) models.SlotHoldStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[id].Status
}

func (m *memoryHolds) only(t *testing.T) *models.SlotHold {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.holds {
		if h.Status == models.HoldStatusHeld || h.Status == models.HoldStatusConfirmed {
			cp := *h
			return &cp
		}
	}
	t.Fatal("no live hold")
	return nil
}

// expire moves the hold's deadline into the past, as if the server window ran out
func (m *memoryHolds) expire(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds[id].ExpiresAt = time.Now().Add(-time.Second)
}

// ----------------------------------------------------------------------------
// orders and bookings
// ----------------------------------------------------------------------------

type memoryOrders struct {
	mu     sync.Mutex
	orders map[string]*models.PaymentOrder
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{orders: make(map[string]*models.PaymentOrder)}
}

func (m *memoryOrders) CreateOrder(ctx context.Context, order *models.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *memoryOrders) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memoryOrders) FinalizeOrder(ctx context.Context, orderID string, status models.PaymentOrderStatus, paymentID, message *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != models.OrderStatusPending {
		return database.ErrOrderFinalized
	}
	o.Status = status
	o.PaymentID = paymentID
	o.StatusMessage = message
	return nil
}

func (m *memoryOrders) get(orderID string) models.PaymentOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[orderID]
}

type memoryBookings struct {
	mu       sync.Mutex
	bookings []*models.TutorBooking
}

func (m *memoryBookings) CreateBooking(ctx context.Context, booking *models.TutorBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, booking)
	return nil
}

func (m *memoryBookings) all() []*models.TutorBooking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.TutorBooking(nil), m.bookings...)
}

type memoryAudits struct {
	mu     sync.Mutex
	events []models.PaymentEventType
}

func (m *memoryAudits) Log(ctx context.Context, audit *models.PaymentAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, audit.EventType)
	return nil
}

func (m *memoryAudits) has(event models.PaymentEventType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == event {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// payhere collaborators
// ----------------------------------------------------------------------------

type fakeScript struct {
	ready bool
	err   error
}

func (f *fakeScript) EnsureLoaded(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://sandbox.payhere.lk/lib/payhere.js", nil
}

func (f *fakeScript) Ready() bool { return f.ready }

// spyGateway is the real bridge with StartPayment calls counted
type spyGateway struct {
	*payhere.Bridge
	starts int32
}

func (g *spyGateway) StartPayment(ctx context.Context, payment *payhere.PaymentObject) (<-chan models.PaymentOutcome, error) {
	atomic.AddInt32(&g.starts, 1)
	return g.Bridge.StartPayment(ctx, payment)
}

func (g *spyGateway) startCount() int {
	return int(atomic.LoadInt32(&g.starts))
}

type mintFunc func(ctx context.Context, req payhere.HashRequest) (*payhere.HashResult, error)

type fakeMinter struct {
	mu       sync.Mutex
	fn       mintFunc
	requests []payhere.HashRequest
}

func (m *fakeMinter) MintHash(ctx context.Context, req payhere.HashRequest) (*payhere.HashResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.fn
	m.mu.Unlock()
	return fn(ctx, req)
}

type fakeSender struct {
	sent chan string
}

func (s *fakeSender) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	s.sent <- phone + "|" + message
	return 1, nil
}

func (s *fakeSender) GetName() string { return "fake" }

// signedNotification builds a notify form the way PayHere signs it
func signedNotification(orderID, amount, statusCode string) *payhere.Notification {
	upper := func(s string) string {
		sum := md5.Sum([]byte(s))
		return strings.ToUpper(hex.EncodeToString(sum[:]))
	}
	sig := upper(testMerchantID + orderID + amount + "LKR" + statusCode + upper(testMerchantSecret))

	n, err := payhere.ParseNotification(url.Values{
		"merchant_id":      {testMerchantID},
		"order_id":         {orderID},
		"payment_id":       {"320025071278"},
		"payhere_amount":   {amount},
		"payhere_currency": {"LKR"},
		"status_code":      {statusCode},
		"status_message":   {"Successfully completed the payment."},
		"md5sig":           {sig},
	})
	if err != nil {
		panic(err)
	}
	return n
}

// ----------------------------------------------------------------------------
// fixture
// ----------------------------------------------------------------------------

type checkoutFixture struct {
	svc      *CheckoutService
	store    *session.RedisStore
	redis    *miniredis.Miniredis
	holds    *memoryHolds
	orders   *memoryOrders
	bookings *memoryBookings
	audits   *memoryAudits
	minter   *fakeMinter
	gateway  *spyGateway
	script   *fakeScript
	sender   *fakeSender
	userID   uuid.UUID
}

type fixtureOption func(cfg *CheckoutConfig, script *fakeScript)

func newCheckoutFixture(t *testing.T, opts ...fixtureOption) *checkoutFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultCheckoutConfig()
	cfg.TickInterval = time.Hour // countdown frozen unless a test wants it to move
	script := &fakeScript{ready: true}
	for _, opt := range opts {
		opt(&cfg, script)
	}

	logger := testLogger()
	signer := payhere.NewSigner(testMerchantID, testMerchantSecret)

	f := &checkoutFixture{
		store:    session.NewRedisStore(client, time.Hour),
		redis:    mr,
		holds:    newMemoryHolds(),
		orders:   newMemoryOrders(),
		bookings: &memoryBookings{},
		audits:   &memoryAudits{},
		minter:   &fakeMinter{fn: signer.MintHash},
		script:   script,
		sender:   &fakeSender{sent: make(chan string, 4)},
		userID:   uuid.New(),
	}
	f.gateway = &spyGateway{Bridge: payhere.NewBridge(payhere.BridgeConfig{
		Sandbox:   true,
		ReturnURL: "https://edimy.lk/student/dashboard",
		CancelURL: "https://edimy.lk/booking/payment",
		NotifyURL: "https://api.edimy.lk/api/v1/payments/payhere/notify",
	}, script, logger)}

	f.svc = NewCheckoutService(
		CheckoutStores{Sessions: f.store, Holds: f.holds, Orders: f.orders, Bookings: f.bookings},
		PaymentProviders{Minter: f.minter, Verifier: signer, Gateway: f.gateway, Script: script},
		NewAuditService(f.audits, logger),
		f.sender,
		cfg,
		logger,
	)
	t.Cleanup(f.svc.Close)

	return f
}

// saveCompleteSession stores a wizard session ready for payment: 09:00-10:30 at LKR 67.50
func (f *checkoutFixture) saveCompleteSession(t *testing.T) *models.BookingSession {
	t.Helper()
	price := 67.50
	sess := models.NewBookingSession(f.userID)
	sess.Identity = &models.BookingIdentity{TutorID: "tutor-42", TutorFirstName: "Amaya", TutorLastName: "Fernando"}
	sess.SelectedDate = "2026-11-02"
	sess.Slot = &models.SelectedSlot{SlotID: "slot-7", StartTime: "09:00", EndTime: "10:30", Price: 67.50}
	sess.Preferences = &models.BookingPreferences{
		SelectedSubject:   &models.SubjectOption{ID: "math", Name: "Mathematics", HourlyRate: 45},
		SelectedLanguage:  &models.NamedOption{ID: "si", Name: "Sinhala"},
		SelectedClassType: &models.ClassTypeOption{ID: "individual", Name: "Individual", PriceMultiplier: 1},
		FinalPrice:        &price,
	}
	sess.Step = models.StepPreferences
	if err := f.store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	return sess
}

func testCustomer() payhere.Customer {
	return payhere.Customer{
		FirstName: "Nimali",
		LastName:  "Perera",
		Email:     "nimali@example.lk",
		Phone:     "+94 77 123 4567",
		Address:   "12 Galle Road",
		City:      "Colombo",
		Country:   "Sri Lanka",
	}
}

var errBackendDown = errors.New("backend down")
