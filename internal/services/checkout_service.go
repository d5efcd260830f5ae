package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/database"
	"github.com/edimy/tutoring-backend/internal/metrics"
	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/payhere"
	"github.com/edimy/tutoring-backend/internal/reservation"
	"github.com/edimy/tutoring-backend/internal/session"
	"github.com/edimy/tutoring-backend/pkg/sms"
	"github.com/edimy/tutoring-backend/pkg/validator"
)

var (
	ErrCheckoutNotMounted  = errors.New("checkout page is not open")
	ErrCheckoutClosed      = errors.New("checkout page was closed during payment")
	ErrCheckoutCompleted   = errors.New("checkout already completed")
	ErrReservationExpired  = errors.New("reservation has expired")
	ErrPaymentInProgress   = errors.New("a payment is already in progress")
	ErrGatewayNotReady     = errors.New("payment gateway is not ready")
	ErrHashMintFailed      = errors.New("failed to mint payment hash")
	ErrOrderNotFound       = errors.New("payment order not found")
	ErrOrderNotPending     = errors.New("payment order is not awaiting a result")
	ErrInvalidNotification = errors.New("payment notification rejected")
)

// SlotUnavailableError means another student holds or booked the slot.
// The client goes back to the tutor's slot picker.
type SlotUnavailableError struct {
	SlotID     string `json:"slot_id"`
	RedirectTo string `json:"redirect_to"`
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s is no longer available", e.SlotID)
}

func (e *SlotUnavailableError) Unwrap() error {
	return database.ErrSlotUnavailable
}

const gatewayUnavailableBanner = "Payment gateway could not be loaded. Please reload the page."

// failureBanner is what the payment page shows after a failed attempt
func failureBanner(message string) string {
	return "Payment failed: " + message
}

// HoldStore persists slot holds
type HoldStore interface {
	CreateHold(ctx context.Context, hold *models.SlotHold) error
	GetHoldByID(ctx context.Context, id uuid.UUID) (*models.SlotHold, error)
	ConfirmHold(ctx context.Context, id uuid.UUID) error
	ReleaseHold(ctx context.Context, id uuid.UUID) error
}

// OrderStore persists payment attempts
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.PaymentOrder) error
	GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	FinalizeOrder(ctx context.Context, orderID string, status models.PaymentOrderStatus, paymentID, message *string) error
}

// BookingStore persists paid bookings
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.TutorBooking) error
}

// PaymentGateway is the PayHere bridge as the checkout sees it
type PaymentGateway interface {
	payhere.Gateway
	NewPaymentObject(order *models.PaymentOrder, customer payhere.Customer, items string) *payhere.PaymentObject
	Resolve(outcome models.PaymentOutcome) error
}

// NotificationVerifier checks PayHere server notifications
type NotificationVerifier interface {
	MerchantID() string
	VerifyNotification(n *payhere.Notification) bool
}

// CheckoutStores groups the persistence the checkout reads and writes
type CheckoutStores struct {
	Sessions session.Store
	Holds    HoldStore
	Orders   OrderStore
	Bookings BookingStore
}

// PaymentProviders groups the PayHere collaborators
type PaymentProviders struct {
	Minter   payhere.HashMinter
	Verifier NotificationVerifier
	Gateway  PaymentGateway
	Script   payhere.ScriptSource
}

// CheckoutConfig holds configuration for the checkout
type CheckoutConfig struct {
	HoldDuration  time.Duration // Reservation window (default 15 min)
	TickInterval  time.Duration // Countdown tick (default 1s)
	ResultTimeout time.Duration // How long to wait for a gateway outcome (default 30 min)
	Currency      string
	SuccessRoute  string
}

// DefaultCheckoutConfig returns default configuration
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		HoldDuration:  reservation.DefaultHoldSeconds * time.Second,
		TickInterval:  time.Second,
		ResultTimeout: 30 * time.Minute,
		Currency:      "LKR",
		SuccessRoute:  "/student/dashboard?payment=success",
	}
}

// CheckoutState is what the payment page renders
type CheckoutState struct {
	Phase         models.CheckoutPhase     `json:"phase"`
	IsProcessing  bool                     `json:"is_processing"`
	GatewayReady  bool                     `json:"gateway_ready"`
	GatewayFailed bool                     `json:"gateway_failed"`
	Reservation   models.ReservationWindow `json:"reservation"`
	CanPay        bool                     `json:"can_pay"`
	ErrorBanner   string                   `json:"error_banner,omitempty"`
	Tutor         models.BookingIdentity   `json:"tutor"`
	SelectedDate  string                   `json:"selected_date"`
	Slot          models.SelectedSlot      `json:"slot"`
	Amount        string                   `json:"amount"`
	Total         string                   `json:"total"`
	OrderID       string                   `json:"order_id,omitempty"`
	BookingID     *uuid.UUID               `json:"booking_id,omitempty"`
	RedirectTo    string                   `json:"redirect_to,omitempty"`
}

// PaymentStart is returned by Pay: the object the client passes to payhere.startPayment
type PaymentStart struct {
	Payment *payhere.PaymentObject `json:"payment"`
	State   *CheckoutState         `json:"state"`
}

// checkoutPage is one mounted payment page. A remount replaces it with a new generation.
type checkoutPage struct {
	generation    uint64
	session       *models.BookingSession
	hold          *models.SlotHold
	timer         *reservation.Timer
	phase         models.CheckoutPhase
	banner        string
	gatewayFailed bool
	orderID       string
	bookingID     *uuid.UUID
	redirectTo    string
}

// paymentAttempt carries everything needed to finish an attempt after the page is gone
type paymentAttempt struct {
	userID     uuid.UUID
	generation uint64
	session    *models.BookingSession
	hold       *models.SlotHold
	order      *models.PaymentOrder
	phone      string
}

// CheckoutService drives the payment page: Idle → AwaitingHash → AwaitingGatewayResult →
// Completed, or back to Idle on dismissal or failure
type CheckoutService struct {
	stores    CheckoutStores
	providers PaymentProviders
	audit     *AuditService
	sender    sms.Sender
	orderIDs  *OrderIDGenerator
	config    CheckoutConfig
	logger    *logrus.Logger

	mu      sync.Mutex
	pages   map[uuid.UUID]*checkoutPage
	nextGen uint64

	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	stores CheckoutStores,
	providers PaymentProviders,
	audit *AuditService,
	sender sms.Sender,
	config CheckoutConfig,
	logger *logrus.Logger,
) *CheckoutService {
	return &CheckoutService{
		stores:    stores,
		providers: providers,
		audit:     audit,
		sender:    sender,
		orderIDs:  NewOrderIDGenerator(),
		config:    config,
		logger:    logger,
		pages:     make(map[uuid.UUID]*checkoutPage),
		closing:   make(chan struct{}),
	}
}

// ============================================================================
// MOUNT / STATE / UNMOUNT
// ============================================================================

// Mount opens the payment page. A missing tutor, date, slot or price returns a
// *models.PrerequisiteError and no page is created. Otherwise the slot is held,
// the countdown starts and the gateway script begins loading.
func (s *CheckoutService) Mount(ctx context.Context, userID uuid.UUID) (*CheckoutState, error) {
	sess, err := s.stores.Sessions.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking session: %w", err)
	}
	if err := sess.CheckPrerequisites(); err != nil {
		return nil, err
	}

	hold := models.NewSlotHold(sess, s.config.HoldDuration)
	if err := s.stores.Holds.CreateHold(ctx, hold); err != nil {
		if errors.Is(err, database.ErrSlotUnavailable) {
			return nil, &SlotUnavailableError{
				SlotID:     hold.SlotID,
				RedirectTo: fmt.Sprintf("/booking/%s/slots", sess.Identity.TutorID),
			}
		}
		return nil, fmt.Errorf("failed to hold slot: %w", err)
	}

	sess.Step = models.StepPayment
	sess.UpdatedAt = time.Now()
	if err := s.stores.Sessions.Save(ctx, sess); err != nil {
		if relErr := s.stores.Holds.ReleaseHold(ctx, hold.ID); relErr != nil {
			s.logger.WithError(relErr).WithField("hold_id", hold.ID).Warn("Failed to release hold")
		}
		return nil, fmt.Errorf("failed to save booking session: %w", err)
	}

	timer := reservation.NewTimer(s.config.TickInterval)
	timer.Start(context.Background(), int(s.config.HoldDuration/time.Second), func() {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"hold_id": hold.ID,
		}).Info("Reservation window expired")
	})

	page := &checkoutPage{
		session: sess,
		hold:    hold,
		timer:   timer,
		phase:   models.PhaseIdle,
	}

	s.mu.Lock()
	s.nextGen++
	page.generation = s.nextGen
	previous := s.pages[userID]
	s.pages[userID] = page
	state := s.stateLocked(page)
	s.mu.Unlock()

	if previous != nil {
		previous.timer.Stop()
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"hold_id":  hold.ID,
		"tutor_id": hold.TutorID,
		"slot_id":  hold.SlotID,
	}).Info("Checkout mounted")

	s.wg.Add(1)
	go s.loadGateway(userID, page.generation)

	return state, nil
}

// loadGateway marks the page's gateway as failed when neither script URL loads.
// The failure sticks to this page; a remount tries again.
func (s *CheckoutService) loadGateway(userID uuid.UUID, generation uint64) {
	defer s.wg.Done()

	if _, err := s.providers.Script.EnsureLoaded(context.Background()); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Payment gateway script unavailable")

		s.mu.Lock()
		if page := s.pages[userID]; page != nil && page.generation == generation {
			page.gatewayFailed = true
			page.banner = gatewayUnavailableBanner
		}
		s.mu.Unlock()
	}
}

// State returns the payment page as it should render now
func (s *CheckoutService) State(userID uuid.UUID) (*CheckoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.pages[userID]
	if page == nil {
		return nil, ErrCheckoutNotMounted
	}
	return s.stateLocked(page), nil
}

func (s *CheckoutService) stateLocked(page *checkoutPage) *CheckoutState {
	window := page.timer.Window()
	ready := !page.gatewayFailed && s.providers.Gateway.Ready()
	processing := page.phase.IsProcessing()
	total := page.session.Total()

	state := &CheckoutState{
		Phase:         page.phase,
		IsProcessing:  processing,
		GatewayReady:  ready,
		GatewayFailed: page.gatewayFailed,
		Reservation:   window,
		CanPay:        ready && !processing && page.phase != models.PhaseCompleted && !window.Expired && window.RemainingSeconds > 0,
		ErrorBanner:   page.banner,
		SelectedDate:  page.session.SelectedDate,
		Amount:        models.FormatAmount(total),
		Total:         models.FormatMoney(s.config.Currency, total),
		OrderID:       page.orderID,
		BookingID:     page.bookingID,
		RedirectTo:    page.redirectTo,
	}
	if page.session.Identity != nil {
		state.Tutor = *page.session.Identity
	}
	if page.session.Slot != nil {
		state.Slot = *page.session.Slot
	}
	return state
}

// payableLocked explains why the pay action is disabled, or returns nil
func (s *CheckoutService) payableLocked(page *checkoutPage) error {
	switch {
	case page.phase == models.PhaseCompleted:
		return ErrCheckoutCompleted
	case page.phase.IsProcessing():
		return ErrPaymentInProgress
	case page.timer.Expired() || page.timer.Remaining() == 0:
		return ErrReservationExpired
	case page.gatewayFailed || !s.providers.Gateway.Ready():
		return ErrGatewayNotReady
	}
	return nil
}

// Unmount tears the page down. An idle page gives its hold back; a page with a
// payment in flight keeps it so the outcome can still confirm the booking.
func (s *CheckoutService) Unmount(ctx context.Context, userID uuid.UUID) {
	s.mu.Lock()
	page := s.pages[userID]
	delete(s.pages, userID)
	release := page != nil && page.phase == models.PhaseIdle
	s.mu.Unlock()

	s.teardown(ctx, page, release)
}

// UnmountBooking tears the page down only if it is the one the booking was paid on.
// A page opened afterwards for another booking is left alone.
func (s *CheckoutService) UnmountBooking(ctx context.Context, userID uuid.UUID, booking *models.TutorBooking) bool {
	s.mu.Lock()
	page := s.pages[userID]
	if page == nil || !page.belongsTo(booking) {
		s.mu.Unlock()
		return false
	}
	delete(s.pages, userID)
	release := page.phase == models.PhaseIdle
	s.mu.Unlock()

	s.teardown(ctx, page, release)
	return true
}

func (p *checkoutPage) belongsTo(booking *models.TutorBooking) bool {
	if p.bookingID != nil && *p.bookingID == booking.ID {
		return true
	}
	if p.hold != nil && p.hold.ID == booking.HoldID {
		return true
	}
	return p.orderID != "" && p.orderID == booking.OrderID
}

// teardown stops a page already removed from s.pages. An idle page gives its hold back.
func (s *CheckoutService) teardown(ctx context.Context, page *checkoutPage, release bool) {
	if page == nil {
		return
	}

	page.timer.Stop()

	if release {
		if err := s.stores.Holds.ReleaseHold(ctx, page.hold.ID); err != nil && !errors.Is(err, database.ErrHoldNotActive) {
			s.logger.WithError(err).WithField("hold_id", page.hold.ID).Warn("Failed to release hold on unmount")
		}
	}
}

// ============================================================================
// PAY
// ============================================================================

// Pay runs one payment attempt: re-check the hold, mint a hash for a fresh order
// id and start the gateway. The outcome is applied in the background.
func (s *CheckoutService) Pay(ctx context.Context, userID uuid.UUID, customer payhere.Customer, meta *ClientMeta) (*PaymentStart, error) {
	details, err := validator.ValidateCustomer(validator.CustomerDetails{
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Email:     customer.Email,
		Phone:     customer.Phone,
		Address:   customer.Address,
		City:      customer.City,
		Country:   customer.Country,
	})
	if err != nil {
		return nil, err
	}
	customer = payhere.Customer{
		FirstName: details.FirstName,
		LastName:  details.LastName,
		Email:     details.Email,
		Phone:     details.Phone,
		Address:   details.Address,
		City:      details.City,
		Country:   details.Country,
	}

	s.mu.Lock()
	page := s.pages[userID]
	if page == nil {
		s.mu.Unlock()
		return nil, ErrCheckoutNotMounted
	}
	if err := s.payableLocked(page); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	page.phase = models.PhaseAwaitingHash
	page.banner = ""
	generation := page.generation
	sess, hold, timer := page.session, page.hold, page.timer
	s.mu.Unlock()

	// The database hold is the source of truth, not the countdown
	current, err := s.stores.Holds.GetHoldByID(ctx, hold.ID)
	if err != nil {
		s.failAttempt(userID, generation, "", "could not verify your reservation")
		return nil, fmt.Errorf("failed to verify hold: %w", err)
	}
	if current == nil || !current.IsActive() {
		timer.Expire()
		s.failAttempt(userID, generation, "", "")
		return nil, ErrReservationExpired
	}

	orderID := s.orderIDs.Next(hold.SlotID)
	req := payhere.HashRequest{
		OrderID:  orderID,
		Amount:   models.FormatAmount(sess.Total()),
		Currency: s.config.Currency,
	}

	minted, err := s.providers.Minter.MintHash(ctx, req)
	if err == nil && (minted == nil || minted.Hash == "" || minted.MerchantID == "") {
		err = errors.New("payment service returned no hash")
	}
	if err != nil {
		metrics.IncHashMintFailure()
		audit := models.NewPaymentAudit(models.PaymentEventHashFailed, models.PaymentSourceBackend).
			SetOrderID(orderID).
			SetError(err.Error())
		audit.UserID = &userID
		audit.HoldID = &hold.ID
		s.audit.Record(ctx, audit, meta)

		s.failAttempt(userID, generation, "", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrHashMintFailed, err)
	}

	now := time.Now()
	order := &models.PaymentOrder{
		OrderID:    orderID,
		UserID:     userID,
		HoldID:     hold.ID,
		TutorID:    hold.TutorID,
		SlotID:     hold.SlotID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		MerchantID: minted.MerchantID,
		Hash:       minted.Hash,
		Status:     models.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// An unmounted page ignores the hash it asked for
	s.mu.Lock()
	page = s.pages[userID]
	if page == nil || page.generation != generation {
		s.mu.Unlock()
		return nil, ErrCheckoutClosed
	}
	page.phase = models.PhaseAwaitingGatewayResult
	page.orderID = orderID
	s.mu.Unlock()

	if err := s.stores.Orders.CreateOrder(ctx, order); err != nil {
		s.failAttempt(userID, generation, orderID, "could not record the payment order")
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}
	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventHashMinted, models.PaymentSourceBackend).SetOrder(order), meta)

	payment := s.providers.Gateway.NewPaymentObject(order, customer, itemsDescription(sess))

	waitCtx, cancel := context.WithTimeout(context.Background(), s.config.ResultTimeout)
	outcomes, err := s.providers.Gateway.StartPayment(waitCtx, payment)
	if err != nil {
		cancel()
		message := err.Error()
		s.finalizeOrder(ctx, orderID, models.OrderStatusFailed, nil, &message)
		s.failAttempt(userID, generation, orderID, message)
		return nil, fmt.Errorf("failed to start payment: %w", err)
	}

	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventGatewayStarted, models.PaymentSourceBackend).SetOrder(order), meta)

	attempt := &paymentAttempt{
		userID:     userID,
		generation: generation,
		session:    sess,
		hold:       hold,
		order:      order,
		phone:      customer.Phone,
	}
	s.wg.Add(1)
	go s.awaitOutcome(cancel, outcomes, attempt)

	start := &PaymentStart{Payment: payment}
	if state, err := s.State(userID); err == nil {
		start.State = state
	}
	return start, nil
}

func itemsDescription(sess *models.BookingSession) string {
	items := "Tutoring session"
	if sess.Preferences != nil && sess.Preferences.SelectedSubject != nil {
		items = sess.Preferences.SelectedSubject.Name + " session"
	}
	if sess.Identity != nil {
		items += " with " + sess.Identity.FullName()
	}
	return items
}

// failAttempt returns the page to Idle with the failure banner, if the page
// still belongs to this attempt. An empty message leaves no banner.
func (s *CheckoutService) failAttempt(userID uuid.UUID, generation uint64, orderID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.pages[userID]
	if page == nil || page.generation != generation || page.orderID != orderID {
		return
	}
	page.phase = models.PhaseIdle
	page.orderID = ""
	page.banner = ""
	if message != "" {
		page.banner = failureBanner(message)
	}
}

// ============================================================================
// OUTCOMES
// ============================================================================

func (s *CheckoutService) awaitOutcome(cancel context.CancelFunc, outcomes <-chan models.PaymentOutcome, attempt *paymentAttempt) {
	defer s.wg.Done()
	defer cancel()

	select {
	case outcome := <-outcomes:
		s.applyOutcome(context.Background(), attempt, outcome)
	case <-s.closing:
		// The order stays pending; the PayHere notify settles it
	}
}

func (s *CheckoutService) applyOutcome(ctx context.Context, attempt *paymentAttempt, outcome models.PaymentOutcome) {
	metrics.IncPaymentOutcome(string(outcome.Kind))

	s.logger.WithFields(logrus.Fields{
		"user_id":  attempt.userID,
		"order_id": attempt.order.OrderID,
		"outcome":  outcome.Kind,
	}).Info("Applying payment outcome")

	switch outcome.Kind {
	case models.OutcomeCompleted:
		s.completeBooking(ctx, attempt)

	case models.OutcomeDismissed:
		s.finalizeOrder(ctx, attempt.order.OrderID, models.OrderStatusDismissed, nil, nil)
		s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventDismissed, models.PaymentSourceSystem).SetOrder(attempt.order), nil)
		s.failAttempt(attempt.userID, attempt.generation, attempt.order.OrderID, "")

	default:
		message := outcome.Message
		s.finalizeOrder(ctx, attempt.order.OrderID, models.OrderStatusFailed, nil, &message)
		s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventFailed, models.PaymentSourceSystem).
			SetOrder(attempt.order).
			SetError(message), nil)
		s.failAttempt(attempt.userID, attempt.generation, attempt.order.OrderID, message)
	}
}

// completeBooking confirms the hold, records the booking and clears the wizard.
// It runs even if the page was unmounted while the gateway was open.
func (s *CheckoutService) completeBooking(ctx context.Context, attempt *paymentAttempt) {
	logger := s.logger.WithFields(logrus.Fields{
		"user_id":  attempt.userID,
		"order_id": attempt.order.OrderID,
		"hold_id":  attempt.hold.ID,
	})

	status := models.TutorBookingConfirmed
	if err := s.stores.Holds.ConfirmHold(ctx, attempt.hold.ID); err != nil {
		logger.WithError(err).Warn("Payment completed for an inactive hold, booking needs review")
		status = models.TutorBookingNeedsReview
	}

	booking := models.NewTutorBooking(attempt.session, attempt.hold, attempt.order)
	booking.Status = status

	var bookingID *uuid.UUID
	if err := s.stores.Bookings.CreateBooking(ctx, booking); err != nil {
		logger.WithError(err).Error("Failed to record paid booking")
		s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmFailed, models.PaymentSourceSystem).
			SetOrder(attempt.order).
			SetError(err.Error()), nil)
	} else {
		id := booking.ID
		bookingID = &id
		s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmed, models.PaymentSourceSystem).
			SetOrder(attempt.order).
			SetPayload(map[string]interface{}{"booking_id": id.String(), "status": string(status)}), nil)
	}

	s.finalizeOrder(ctx, attempt.order.OrderID, models.OrderStatusCompleted, nil, nil)
	s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventCompleted, models.PaymentSourceSystem).SetOrder(attempt.order), nil)

	if err := s.stores.Sessions.Clear(ctx, attempt.userID); err != nil {
		logger.WithError(err).Warn("Failed to clear booking session")
	}

	var timer *reservation.Timer
	s.mu.Lock()
	if page := s.pages[attempt.userID]; page != nil && page.generation == attempt.generation && page.orderID == attempt.order.OrderID {
		page.phase = models.PhaseCompleted
		page.banner = ""
		page.bookingID = bookingID
		page.redirectTo = s.config.SuccessRoute
		timer = page.timer
	}
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	logger.WithField("booking_status", status).Info("Booking paid")

	if bookingID != nil && attempt.phone != "" {
		s.notifyStudent(attempt, booking)
	}
}

func (s *CheckoutService) notifyStudent(attempt *paymentAttempt, booking *models.TutorBooking) {
	if s.sender == nil {
		return
	}

	message := fmt.Sprintf("Your session with %s on %s at %s is confirmed. Ref: %s",
		booking.Snapshot.Identity.FullName(),
		booking.SessionDate,
		booking.Snapshot.Slot.StartTime,
		booking.ID.String()[:8],
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.sender.SendMessage(ctx, attempt.phone, message); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"gateway":    s.sender.GetName(),
			}).Warn("Failed to send booking confirmation SMS")
		}
	}()
}

func (s *CheckoutService) finalizeOrder(ctx context.Context, orderID string, status models.PaymentOrderStatus, paymentID, message *string) {
	err := s.stores.Orders.FinalizeOrder(ctx, orderID, status, paymentID, message)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrOrderFinalized):
		s.logger.WithField("order_id", orderID).Debug("Order already finalized")
	default:
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to finalize payment order")
	}
}

// ============================================================================
// GATEWAY CALLBACKS
// ============================================================================

// ReportDismissed is the client's onDismissed callback for an order it owns
func (s *CheckoutService) ReportDismissed(ctx context.Context, userID uuid.UUID, orderID string) error {
	return s.reportOutcome(ctx, userID, models.DismissedOutcome(orderID))
}

// ReportError is the client's onError callback for an order it owns
func (s *CheckoutService) ReportError(ctx context.Context, userID uuid.UUID, orderID, message string) error {
	if message == "" {
		message = "payment error"
	}
	return s.reportOutcome(ctx, userID, models.FailedOutcome(orderID, message))
}

func (s *CheckoutService) reportOutcome(ctx context.Context, userID uuid.UUID, outcome models.PaymentOutcome) error {
	order, err := s.stores.Orders.GetOrder(ctx, outcome.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil || order.UserID != userID {
		return ErrOrderNotFound
	}

	if err := s.providers.Gateway.Resolve(outcome); err != nil {
		if errors.Is(err, payhere.ErrUnknownOrder) {
			return ErrOrderNotPending
		}
		return err
	}
	return nil
}

// HandleNotification applies a PayHere server notification. Only a notification
// with a valid signature, a known order and the expected amount can complete a payment.
func (s *CheckoutService) HandleNotification(ctx context.Context, n *payhere.Notification, meta *ClientMeta) error {
	audit := models.NewPaymentAudit(models.PaymentEventNotifyReceived, models.PaymentSourcePayHereNotify).
		SetOrderID(n.OrderID).
		SetPaymentID(n.PaymentID).
		SetGatewayStatus(n.StatusCode, n.StatusMessage).
		SetPayload(n.AuditPayload())

	reject := func(reason, message string) error {
		metrics.IncNotifyRejected(reason)
		audit.EventType = models.PaymentEventNotifyRejected
		audit.SetError(message)
		s.audit.Record(ctx, audit, meta)
		s.logger.WithFields(logrus.Fields{"order_id": n.OrderID, "reason": reason}).Warn("PayHere notification rejected")
		return fmt.Errorf("%w: %s", ErrInvalidNotification, message)
	}

	if n.MerchantID != s.providers.Verifier.MerchantID() || !s.providers.Verifier.VerifyNotification(n) {
		return reject("signature", "invalid signature")
	}

	order, err := s.stores.Orders.GetOrder(ctx, n.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return reject("unknown_order", "unknown order")
	}
	audit.SetOrder(order)

	outcome, final := n.Outcome()
	if final && outcome.Kind == models.OutcomeCompleted {
		expected, _ := strconv.ParseFloat(order.Amount, 64)
		received, amountErr := n.AmountValue()
		if amountErr != nil || !audit.SetAmounts(expected, received, n.Currency) || n.Currency != order.Currency {
			metrics.IncNotifyRejected("amount")
			audit.EventType = models.PaymentEventReconciliationMismatch
			audit.SetError("amount or currency mismatch")
			outcome = models.FailedOutcome(order.OrderID, "payment amount mismatch")
		}
	}
	s.audit.Record(ctx, audit, meta)

	if !final {
		return nil
	}

	var paymentID, message *string
	if n.PaymentID != "" {
		paymentID = &n.PaymentID
	}
	if outcome.Message != "" {
		message = &outcome.Message
	}

	if err := s.stores.Orders.FinalizeOrder(ctx, order.OrderID, outcome.OrderStatus(), paymentID, message); err != nil {
		if !errors.Is(err, database.ErrOrderFinalized) {
			return fmt.Errorf("failed to finalize order: %w", err)
		}
		if outcome.Kind == models.OutcomeCompleted && order.Status != models.OrderStatusCompleted {
			s.audit.Record(ctx, models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, models.PaymentSourcePayHereNotify).
				SetOrder(order).
				SetPaymentID(n.PaymentID).
				SetError("payment completed after order was closed as "+string(order.Status)), meta)
			s.logger.WithFields(logrus.Fields{
				"order_id":     order.OrderID,
				"order_status": order.Status,
			}).Error("Payment completed after order was closed")
		}
		return nil
	}

	err = s.providers.Gateway.Resolve(outcome)
	if err == nil {
		return nil
	}
	if !errors.Is(err, payhere.ErrUnknownOrder) {
		return err
	}

	// Nobody is waiting on this order, e.g. after a restart
	if outcome.Kind == models.OutcomeCompleted {
		s.completeOrphan(ctx, order)
	}
	return nil
}

// completeOrphan finishes a completed order that has no waiting checkout, using
// the wizard state still in the session store
func (s *CheckoutService) completeOrphan(ctx context.Context, order *models.PaymentOrder) {
	logger := s.logger.WithField("order_id", order.OrderID)

	sess, err := s.stores.Sessions.Load(ctx, order.UserID)
	if err != nil || sess == nil || sess.CheckPrerequisites() != nil {
		logger.WithError(err).Error("Paid order has no booking session, needs manual reconciliation")
		return
	}
	hold, err := s.stores.Holds.GetHoldByID(ctx, order.HoldID)
	if err != nil || hold == nil {
		logger.WithError(err).Error("Paid order has no hold, needs manual reconciliation")
		return
	}

	s.completeBooking(ctx, &paymentAttempt{
		userID:  order.UserID,
		session: sess,
		hold:    hold,
		order:   order,
	})
}

// Close stops waiting for gateway outcomes and waits for background work to end
func (s *CheckoutService) Close() {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	pages := s.pages
	s.pages = make(map[uuid.UUID]*checkoutPage)
	s.mu.Unlock()

	for _, page := range pages {
		page.timer.Stop()
	}
	s.wg.Wait()
}
