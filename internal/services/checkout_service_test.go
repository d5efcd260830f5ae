package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edimy/tutoring-backend/internal/database"
	"github.com/edimy/tutoring-backend/internal/models"
	"github.com/edimy/tutoring-backend/internal/payhere"
	"github.com/edimy/tutoring-backend/pkg/validator"
)

const waitFor = 2 * time.Second
const pollEvery = 5 * time.Millisecond

func mountReady(t *testing.T, f *checkoutFixture) *CheckoutState {
	t.Helper()
	f.saveCompleteSession(t)
	state, err := f.svc.Mount(context.Background(), f.userID)
	require.NoError(t, err)
	return state
}

func currentState(t *testing.T, f *checkoutFixture) *CheckoutState {
	t.Helper()
	state, err := f.svc.State(f.userID)
	require.NoError(t, err)
	return state
}

func TestMount_MissingPrerequisites(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(s *models.BookingSession)
		missing  string
		redirect string
	}{
		{"No tutor", func(s *models.BookingSession) { s.Identity = nil }, "tutor", "/tutors"},
		{"No date", func(s *models.BookingSession) { s.SelectedDate = "" }, "date", "/booking/tutor-42/slots"},
		{"No slot", func(s *models.BookingSession) { s.Slot = nil }, "slot", "/booking/tutor-42/slots"},
		{"No final price", func(s *models.BookingSession) { s.Preferences.FinalPrice = nil }, "final_price", "/booking/tutor-42/slots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			sess := f.saveCompleteSession(t)
			tt.mutate(sess)
			require.NoError(t, f.store.Save(ctx, sess))

			state, err := f.svc.Mount(ctx, f.userID)
			assert.Nil(t, state)

			var prereq *models.PrerequisiteError
			require.True(t, errors.As(err, &prereq))
			assert.Equal(t, tt.missing, prereq.Missing)
			assert.Equal(t, tt.redirect, prereq.RedirectTo)

			// No payment controls exist for this student
			_, err = f.svc.State(f.userID)
			assert.ErrorIs(t, err, ErrCheckoutNotMounted)
			assert.Zero(t, f.holds.created)
		})
	}

	t.Run("No session at all", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_, err := f.svc.Mount(ctx, f.userID)

		var prereq *models.PrerequisiteError
		require.True(t, errors.As(err, &prereq))
		assert.Equal(t, "/tutors", prereq.RedirectTo)
	})
}

func TestMount_SlotTaken(t *testing.T) {
	f := newCheckoutFixture(t)
	f.saveCompleteSession(t)
	f.holds.createErr = database.ErrSlotUnavailable

	state, err := f.svc.Mount(context.Background(), f.userID)
	assert.Nil(t, state)

	var taken *SlotUnavailableError
	require.True(t, errors.As(err, &taken))
	assert.Equal(t, "slot-7", taken.SlotID)
	assert.Equal(t, "/booking/tutor-42/slots", taken.RedirectTo)
	assert.ErrorIs(t, err, database.ErrSlotUnavailable)

	_, err = f.svc.State(f.userID)
	assert.ErrorIs(t, err, ErrCheckoutNotMounted)
}

func TestMount_OpensPayablePage(t *testing.T) {
	f := newCheckoutFixture(t)
	state := mountReady(t, f)

	assert.Equal(t, models.PhaseIdle, state.Phase)
	assert.False(t, state.IsProcessing)
	assert.Equal(t, 900, state.Reservation.TotalSeconds)
	assert.Equal(t, 900, state.Reservation.RemainingSeconds)
	assert.False(t, state.Reservation.Expired)
	assert.Equal(t, "67.50", state.Amount)
	assert.Equal(t, "LKR 67.50", state.Total)
	assert.Equal(t, "Amaya", state.Tutor.TutorFirstName)
	assert.True(t, state.CanPay)

	hold := f.holds.only(t)
	assert.Equal(t, "slot-7", hold.SlotID)
	assert.Equal(t, models.HoldStatusHeld, hold.Status)

	// Identity is now locked in the stored session
	stored, err := f.store.Load(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StepPayment, stored.Step)
}

func TestMount_RemountReplacesPage(t *testing.T) {
	f := newCheckoutFixture(t)
	first := mountReady(t, f)
	firstHold := f.holds.only(t)

	second, err := f.svc.Mount(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, first.Reservation.TotalSeconds, second.Reservation.RemainingSeconds)
	assert.Equal(t, models.HoldStatusReleased, f.holds.status(firstHold.ID))
}

func TestCountdown_ExpiryDisablesPay(t *testing.T) {
	f := newCheckoutFixture(t, func(cfg *CheckoutConfig, _ *fakeScript) {
		cfg.HoldDuration = 3 * time.Second
		cfg.TickInterval = 5 * time.Millisecond
	})
	mountReady(t, f)

	assert.Eventually(t, func() bool {
		s := currentState(t, f)
		return s.Reservation.Expired && s.Reservation.RemainingSeconds == 0
	}, waitFor, pollEvery)

	state := currentState(t, f)
	assert.True(t, state.GatewayReady)
	assert.False(t, state.CanPay, "expired window disables pay regardless of gateway readiness")

	_, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Zero(t, f.gateway.startCount())
}

func TestPay_GatewayNotReady(t *testing.T) {
	f := newCheckoutFixture(t, func(_ *CheckoutConfig, script *fakeScript) {
		script.ready = false
	})
	state := mountReady(t, f)

	assert.False(t, state.GatewayReady)
	assert.False(t, state.CanPay)

	_, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	assert.ErrorIs(t, err, ErrGatewayNotReady)
}

func TestPay_ScriptLoadFailureIsSticky(t *testing.T) {
	f := newCheckoutFixture(t, func(_ *CheckoutConfig, script *fakeScript) {
		script.ready = false
		script.err = payhere.ErrGatewayUnavailable
	})
	mountReady(t, f)

	assert.Eventually(t, func() bool {
		return currentState(t, f).GatewayFailed
	}, waitFor, pollEvery)

	assert.Never(t, func() bool {
		s := currentState(t, f)
		return s.CanPay || s.GatewayReady
	}, 50*time.Millisecond, pollEvery)

	assert.Equal(t, gatewayUnavailableBanner, currentState(t, f).ErrorBanner)
}

func TestPay_HashFailureNeverStartsGateway(t *testing.T) {
	tests := []struct {
		name   string
		mint   mintFunc
		banner string
	}{
		{
			name: "Backend error",
			mint: func(ctx context.Context, req payhere.HashRequest) (*payhere.HashResult, error) {
				return nil, errBackendDown
			},
			banner: "Payment failed: backend down",
		},
		{
			name: "Empty hash",
			mint: func(ctx context.Context, req payhere.HashRequest) (*payhere.HashResult, error) {
				return &payhere.HashResult{MerchantID: testMerchantID}, nil
			},
			banner: "Payment failed: payment service returned no hash",
		},
		{
			name: "Missing merchant",
			mint: func(ctx context.Context, req payhere.HashRequest) (*payhere.HashResult, error) {
				return &payhere.HashResult{Hash: "ABC"}, nil
			},
			banner: "Payment failed: payment service returned no hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			f.minter.fn = tt.mint
			mountReady(t, f)

			start, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
			assert.Nil(t, start)
			assert.ErrorIs(t, err, ErrHashMintFailed)
			assert.Zero(t, f.gateway.startCount())

			state := currentState(t, f)
			assert.Equal(t, tt.banner, state.ErrorBanner)
			assert.Equal(t, models.PhaseIdle, state.Phase)
			assert.False(t, state.IsProcessing)
			assert.True(t, state.CanPay, "recoverable: pay is re-enabled")
			assert.True(t, f.audits.has(models.PaymentEventHashFailed))
		})
	}
}

func TestPay_StartsGatewayWithSignedOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)

	start, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	require.NoError(t, err)

	payment := start.Payment
	assert.Equal(t, "67.50", payment.Amount)
	assert.Equal(t, "LKR", payment.Currency)
	assert.Equal(t, testMerchantID, payment.MerchantID)
	assert.NotEmpty(t, payment.Hash)
	assert.Regexp(t, `^\d{13}-slot-7$`, payment.OrderID)
	assert.Equal(t, "0771234567", payment.Phone)
	assert.Equal(t, "Mathematics session with Amaya Fernando", payment.Items)
	assert.True(t, payment.Sandbox)

	assert.Equal(t, 1, f.gateway.startCount())
	require.Len(t, f.minter.requests, 1)
	assert.Equal(t, payhere.HashRequest{OrderID: payment.OrderID, Amount: "67.50", Currency: "LKR"}, f.minter.requests[0])

	state := start.State
	assert.Equal(t, models.PhaseAwaitingGatewayResult, state.Phase)
	assert.True(t, state.IsProcessing)
	assert.False(t, state.CanPay)
	assert.Equal(t, payment.OrderID, state.OrderID)

	// A second click while processing is refused
	_, err = f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.Equal(t, 1, f.gateway.startCount())

	order := f.orders.get(payment.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, f.audits.has(models.PaymentEventGatewayStarted))
}

func TestPay_InvalidCustomer(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)

	cases := []struct {
		field  string
		mutate func(c *payhere.Customer)
	}{
		{"first_name", func(c *payhere.Customer) { c.FirstName = "" }},
		{"last_name", func(c *payhere.Customer) { c.LastName = "" }},
		{"email", func(c *payhere.Customer) { c.Email = "not-an-email" }},
		{"phone", func(c *payhere.Customer) { c.Phone = "12345" }},
		{"address", func(c *payhere.Customer) { c.Address = "" }},
		{"city", func(c *payhere.Customer) { c.City = "" }},
		{"country", func(c *payhere.Customer) { c.Country = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			customer := testCustomer()
			tc.mutate(&customer)

			_, err := f.svc.Pay(context.Background(), f.userID, customer, nil)

			var fieldErr *validator.FieldError
			require.True(t, errors.As(err, &fieldErr))
			assert.Equal(t, tc.field, fieldErr.Field)
			assert.Equal(t, models.PhaseIdle, currentState(t, f).Phase)
		})
	}

	assert.Empty(t, f.minter.requests)
	assert.Equal(t, 0, f.gateway.startCount())
}

func TestPay_ServerHoldIsSourceOfTruth(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)

	// The countdown still shows time left but the server hold is gone
	f.holds.expire(f.holds.only(t).ID)

	_, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Empty(t, f.minter.requests)

	state := currentState(t, f)
	assert.True(t, state.Reservation.Expired)
	assert.Equal(t, 0, state.Reservation.RemainingSeconds)
	assert.False(t, state.CanPay)
}

func TestPay_DismissedReturnsToIdle(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)

	start, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.ReportDismissed(context.Background(), f.userID, start.Payment.OrderID))

	assert.Eventually(t, func() bool {
		return currentState(t, f).Phase == models.PhaseIdle
	}, waitFor, pollEvery)

	state := currentState(t, f)
	assert.False(t, state.IsProcessing)
	assert.Empty(t, state.ErrorBanner)
	assert.True(t, state.CanPay)
	assert.Equal(t, models.OrderStatusDismissed, f.orders.get(start.Payment.OrderID).Status)

	// The callback resolves the order once
	err = f.svc.ReportDismissed(context.Background(), f.userID, start.Payment.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestPay_ErrorShowsPrefixedBanner(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)

	start, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.ReportError(context.Background(), f.userID, start.Payment.OrderID, "Card declined"))

	assert.Eventually(t, func() bool {
		return currentState(t, f).ErrorBanner == "Payment failed: Card declined"
	}, waitFor, pollEvery)

	state := currentState(t, f)
	assert.False(t, state.IsProcessing)
	assert.Equal(t, models.PhaseIdle, state.Phase)
	order := f.orders.get(start.Payment.OrderID)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	require.NotNil(t, order.StatusMessage)
	assert.Equal(t, "Card declined", *order.StatusMessage)
}

func TestPay_RetryUsesNewOrderID(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
		require.NoError(t, err)
		assert.False(t, seen[start.Payment.OrderID], "order id reused")
		seen[start.Payment.OrderID] = true

		require.NoError(t, f.svc.ReportDismissed(ctx, f.userID, start.Payment.OrderID))
		assert.Eventually(t, func() bool {
			return currentState(t, f).CanPay
		}, waitFor, pollEvery)
	}
	assert.Len(t, f.minter.requests, 3)
}

func TestReportOutcome_OtherStudentsOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)

	start, err := f.svc.Pay(context.Background(), f.userID, testCustomer(), nil)
	require.NoError(t, err)

	other := newCheckoutFixture(t).userID
	err = f.svc.ReportError(context.Background(), other, start.Payment.OrderID, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	err = f.svc.ReportDismissed(context.Background(), f.userID, "missing-order")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPay_CompletedClearsWizard(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)
	ctx := context.Background()
	hold := f.holds.only(t)

	start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
	require.NoError(t, err)
	orderID := start.Payment.OrderID

	require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(orderID, "67.50", "2"), nil))

	assert.Eventually(t, func() bool {
		return currentState(t, f).Phase == models.PhaseCompleted
	}, waitFor, pollEvery)

	state := currentState(t, f)
	assert.Equal(t, "/student/dashboard?payment=success", state.RedirectTo)
	assert.False(t, state.IsProcessing)
	assert.False(t, state.CanPay)
	require.NotNil(t, state.BookingID)

	// Wizard state is gone
	stored, err := f.store.Load(ctx, f.userID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	bookings := f.bookings.all()
	require.Len(t, bookings, 1)
	booking := bookings[0]
	assert.Equal(t, *state.BookingID, booking.ID)
	assert.Equal(t, models.TutorBookingConfirmed, booking.Status)
	assert.Equal(t, 67.50, booking.TotalAmount)
	assert.Equal(t, "LKR 67.50", booking.Receipt().Total)
	assert.Equal(t, "1h 30m", booking.Receipt().Duration)
	assert.Equal(t, models.HoldStatusConfirmed, f.holds.status(hold.ID))

	order := f.orders.get(orderID)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	require.NotNil(t, order.PaymentID)
	assert.Equal(t, "320025071278", *order.PaymentID)

	select {
	case msg := <-f.sender.sent:
		assert.Contains(t, msg, "0771234567|Your session with Amaya Fernando on 2026-11-02 at 09:00 is confirmed")
	case <-time.After(waitFor):
		t.Fatal("confirmation SMS not sent")
	}

	_, err = f.svc.Pay(ctx, f.userID, testCustomer(), nil)
	assert.ErrorIs(t, err, ErrCheckoutCompleted)
}

func TestUnmountBooking(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)
	ctx := context.Background()
	hold := f.holds.only(t)

	start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(start.Payment.OrderID, "67.50", "2"), nil))
	require.Eventually(t, func() bool {
		return currentState(t, f).Phase == models.PhaseCompleted
	}, waitFor, pollEvery)
	booking := f.bookings.all()[0]

	other := &models.TutorBooking{ID: uuid.New(), HoldID: uuid.New(), OrderID: "1760000000000-slot-9"}
	assert.False(t, f.svc.UnmountBooking(ctx, f.userID, other))
	assert.Equal(t, models.PhaseCompleted, currentState(t, f).Phase)

	assert.True(t, f.svc.UnmountBooking(ctx, f.userID, booking))
	_, err = f.svc.State(f.userID)
	assert.ErrorIs(t, err, ErrCheckoutNotMounted)
	assert.Equal(t, models.HoldStatusConfirmed, f.holds.status(hold.ID))

	assert.False(t, f.svc.UnmountBooking(ctx, f.userID, booking))
}

func TestPay_CompletionSurvivesUnmount(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)
	ctx := context.Background()
	hold := f.holds.only(t)

	start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
	require.NoError(t, err)

	f.svc.Unmount(ctx, f.userID)
	assert.Equal(t, models.HoldStatusHeld, f.holds.status(hold.ID), "in-flight payment keeps its hold")

	require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(start.Payment.OrderID, "67.50", "2"), nil))

	assert.Eventually(t, func() bool {
		return len(f.bookings.all()) == 1
	}, waitFor, pollEvery)

	assert.Eventually(t, func() bool {
		stored, err := f.store.Load(ctx, f.userID)
		return err == nil && stored == nil
	}, waitFor, pollEvery)
}

func TestPay_CompletedAfterHoldLapsedNeedsReview(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)
	ctx := context.Background()

	start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
	require.NoError(t, err)

	f.holds.expire(f.holds.only(t).ID)
	require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(start.Payment.OrderID, "67.50", "2"), nil))

	assert.Eventually(t, func() bool {
		return len(f.bookings.all()) == 1
	}, waitFor, pollEvery)
	assert.Equal(t, models.TutorBookingNeedsReview, f.bookings.all()[0].Status)
}

func TestUnmount_IdleReleasesHold(t *testing.T) {
	f := newCheckoutFixture(t)
	mountReady(t, f)
	hold := f.holds.only(t)

	f.svc.Unmount(context.Background(), f.userID)

	assert.Equal(t, models.HoldStatusReleased, f.holds.status(hold.ID))
	_, err := f.svc.State(f.userID)
	assert.ErrorIs(t, err, ErrCheckoutNotMounted)

	// Unmounting twice is harmless
	f.svc.Unmount(context.Background(), f.userID)
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("Bad signature", func(t *testing.T) {
		f := newCheckoutFixture(t)
		mountReady(t, f)
		start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
		require.NoError(t, err)

		n := signedNotification(start.Payment.OrderID, "67.50", "2")
		n.MD5Sig = "00000000000000000000000000000000"

		err = f.svc.HandleNotification(ctx, n, nil)
		assert.ErrorIs(t, err, ErrInvalidNotification)
		assert.True(t, f.audits.has(models.PaymentEventNotifyRejected))
		assert.True(t, f.gateway.IsPending(start.Payment.OrderID))
	})

	t.Run("Unknown order", func(t *testing.T) {
		f := newCheckoutFixture(t)
		err := f.svc.HandleNotification(ctx, signedNotification("123-slot-x", "67.50", "2"), nil)
		assert.ErrorIs(t, err, ErrInvalidNotification)
	})

	t.Run("Amount mismatch fails the payment", func(t *testing.T) {
		f := newCheckoutFixture(t)
		mountReady(t, f)
		start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
		require.NoError(t, err)

		require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(start.Payment.OrderID, "1.00", "2"), nil))

		assert.Eventually(t, func() bool {
			return currentState(t, f).ErrorBanner == "Payment failed: payment amount mismatch"
		}, waitFor, pollEvery)
		assert.Empty(t, f.bookings.all())
		assert.True(t, f.audits.has(models.PaymentEventReconciliationMismatch))
	})

	t.Run("Pending is recorded only", func(t *testing.T) {
		f := newCheckoutFixture(t)
		mountReady(t, f)
		start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
		require.NoError(t, err)

		require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(start.Payment.OrderID, "67.50", "0"), nil))
		assert.True(t, f.gateway.IsPending(start.Payment.OrderID))
		assert.Equal(t, models.OrderStatusPending, f.orders.get(start.Payment.OrderID).Status)
	})

	t.Run("Canceled maps to dismissed", func(t *testing.T) {
		f := newCheckoutFixture(t)
		mountReady(t, f)
		start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
		require.NoError(t, err)

		require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(start.Payment.OrderID, "67.50", "-1"), nil))

		assert.Eventually(t, func() bool {
			s := currentState(t, f)
			return s.Phase == models.PhaseIdle && s.ErrorBanner == ""
		}, waitFor, pollEvery)
	})

	t.Run("Completed with no waiting checkout", func(t *testing.T) {
		f := newCheckoutFixture(t)
		mountReady(t, f)
		start, err := f.svc.Pay(ctx, f.userID, testCustomer(), nil)
		require.NoError(t, err)
		orderID := start.Payment.OrderID

		// Simulate a restart: the bridge forgot the order
		require.NoError(t, f.gateway.Fail(orderID, "process restarted"))
		assert.Eventually(t, func() bool {
			return f.orders.get(orderID).Status == models.OrderStatusFailed
		}, waitFor, pollEvery)

		require.NoError(t, f.svc.HandleNotification(ctx, signedNotification(orderID, "67.50", "2"), nil))
		assert.True(t, f.audits.has(models.PaymentEventReconciliationMismatch))
		assert.Empty(t, f.bookings.all())
	})
}

func TestOrderIDGenerator(t *testing.T) {
	fixed := time.UnixMilli(1760000000000)
	g := NewOrderIDGenerator()
	g.now = func() time.Time { return fixed }

	first := g.Next("slot-7")
	second := g.Next("slot-7")

	assert.Equal(t, "1760000000000-slot-7", first)
	assert.Equal(t, "1760000000001-slot-7", second)

	// The clock moving back does not reuse ids
	g.now = func() time.Time { return fixed.Add(-time.Second) }
	assert.Equal(t, "1760000000002-slot-7", g.Next("slot-7"))
}
