package payhere

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edimy/tutoring-backend/internal/models"
)

var (
	// ErrUnknownOrder is returned when a callback names an order that is not waiting for a result
	ErrUnknownOrder = errors.New("no pending payment for order")

	// ErrOrderPending is returned when the same order id is started twice
	ErrOrderPending = errors.New("payment already started for order")

	// ErrMissingHash is returned when a payment is started without a minted hash
	ErrMissingHash = errors.New("payment object has no hash")
)

// Gateway starts payments and delivers exactly one outcome per started order
type Gateway interface {
	Ready() bool
	StartPayment(ctx context.Context, payment *PaymentObject) (<-chan models.PaymentOutcome, error)
}

// Customer is the payer's details passed to the checkout
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

// PaymentObject is handed to payhere.startPayment on the client unchanged
type PaymentObject struct {
	Sandbox    bool   `json:"sandbox"`
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Hash       string `json:"hash"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// BridgeConfig holds the URLs and flags every payment object carries
type BridgeConfig struct {
	Sandbox   bool
	ReturnURL string
	CancelURL string
	NotifyURL string
}

// Bridge adapts PayHere's three callbacks (completed, dismissed, error) into one
// outcome per order. Callbacks for an order resolve it at most once; later ones
// get ErrUnknownOrder.
type Bridge struct {
	cfg    BridgeConfig
	script ScriptSource
	logger *logrus.Logger

	mu      sync.Mutex
	pending map[string]chan models.PaymentOutcome
}

// NewBridge creates a new PayHere bridge
func NewBridge(cfg BridgeConfig, script ScriptSource, logger *logrus.Logger) *Bridge {
	return &Bridge{
		cfg:     cfg,
		script:  script,
		logger:  logger,
		pending: make(map[string]chan models.PaymentOutcome),
	}
}

// Ready is true once the checkout script has loaded
func (b *Bridge) Ready() bool {
	return b.script.Ready()
}

// NewPaymentObject builds the checkout payload for a signed order
func (b *Bridge) NewPaymentObject(order *models.PaymentOrder, customer Customer, items string) *PaymentObject {
	return &PaymentObject{
		Sandbox:    b.cfg.Sandbox,
		MerchantID: order.MerchantID,
		ReturnURL:  b.cfg.ReturnURL,
		CancelURL:  b.cfg.CancelURL,
		NotifyURL:  b.cfg.NotifyURL,
		OrderID:    order.OrderID,
		Items:      items,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Hash:       order.Hash,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Email:      customer.Email,
		Phone:      customer.Phone,
		Address:    customer.Address,
		City:       customer.City,
		Country:    customer.Country,
	}
}

// StartPayment registers the order and returns a channel that receives its single outcome.
// If ctx ends first the order is dropped and a Failed outcome is delivered.
func (b *Bridge) StartPayment(ctx context.Context, payment *PaymentObject) (<-chan models.PaymentOutcome, error) {
	if !b.Ready() {
		return nil, ErrGatewayUnavailable
	}
	if payment.Hash == "" {
		return nil, ErrMissingHash
	}

	resolved := make(chan models.PaymentOutcome, 1)

	b.mu.Lock()
	if _, exists := b.pending[payment.OrderID]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderPending, payment.OrderID)
	}
	b.pending[payment.OrderID] = resolved
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"order_id": payment.OrderID,
		"amount":   payment.Amount,
		"currency": payment.Currency,
	}).Info("Payment started")

	out := make(chan models.PaymentOutcome, 1)
	go func() {
		select {
		case outcome := <-resolved:
			out <- outcome
		case <-ctx.Done():
			if b.take(payment.OrderID) != nil {
				out <- models.FailedOutcome(payment.OrderID, "payment timed out")
				return
			}
			// A callback won the race
			out <- <-resolved
		}
	}()

	return out, nil
}

// Complete resolves an order as paid
func (b *Bridge) Complete(orderID string) error {
	return b.resolve(models.CompletedOutcome(orderID))
}

// Dismiss resolves an order as closed by the payer
func (b *Bridge) Dismiss(orderID string) error {
	return b.resolve(models.DismissedOutcome(orderID))
}

// Fail resolves an order as failed with the gateway's message
func (b *Bridge) Fail(orderID, message string) error {
	return b.resolve(models.FailedOutcome(orderID, message))
}

// Resolve delivers an outcome to the order named in it
func (b *Bridge) Resolve(outcome models.PaymentOutcome) error {
	return b.resolve(outcome)
}

// IsPending reports whether an order is still waiting for a callback
func (b *Bridge) IsPending(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[orderID]
	return ok
}

func (b *Bridge) resolve(outcome models.PaymentOutcome) error {
	ch := b.take(outcome.OrderID)
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, outcome.OrderID)
	}

	b.logger.WithFields(logrus.Fields{
		"order_id": outcome.OrderID,
		"outcome":  outcome.Kind,
	}).Info("Payment resolved")

	ch <- outcome
	return nil
}

func (b *Bridge) take(orderID string) chan models.PaymentOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.pending[orderID]
	if !ok {
		return nil
	}
	delete(b.pending, orderID)
	return ch
}
