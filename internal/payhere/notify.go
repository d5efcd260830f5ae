package payhere

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/edimy/tutoring-backend/internal/models"
)

// PayHere notify status codes
const (
	StatusSuccess     = 2
	StatusPending     = 0
	StatusCanceled    = -1
	StatusFailed      = -2
	StatusChargedBack = -3
)

// ErrMalformedNotification is returned when a notify form is missing fields
var ErrMalformedNotification = errors.New("malformed payhere notification")

// Notification is the server-to-server callback PayHere posts to notify_url
type Notification struct {
	MerchantID    string
	OrderID       string
	PaymentID     string
	Amount        string // payhere_amount
	Currency      string // payhere_currency
	StatusCode    int
	StatusCodeRaw string // signed as sent, e.g. "2" or "-2"
	StatusMessage string
	Method        string
	MD5Sig        string
}

// ParseNotification reads the urlencoded notify form
func ParseNotification(form url.Values) (*Notification, error) {
	n := &Notification{
		MerchantID:    form.Get("merchant_id"),
		OrderID:       form.Get("order_id"),
		PaymentID:     form.Get("payment_id"),
		Amount:        form.Get("payhere_amount"),
		Currency:      form.Get("payhere_currency"),
		StatusCodeRaw: form.Get("status_code"),
		StatusMessage: form.Get("status_message"),
		Method:        form.Get("method"),
		MD5Sig:        form.Get("md5sig"),
	}

	if n.MerchantID == "" || n.OrderID == "" || n.MD5Sig == "" || n.StatusCodeRaw == "" {
		return nil, ErrMalformedNotification
	}

	code, err := strconv.Atoi(n.StatusCodeRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: status_code %q", ErrMalformedNotification, n.StatusCodeRaw)
	}
	n.StatusCode = code

	return n, nil
}

// Outcome maps the notify status onto a payment outcome.
// Pending notifications have no outcome yet and return false.
func (n *Notification) Outcome() (models.PaymentOutcome, bool) {
	switch n.StatusCode {
	case StatusSuccess:
		return models.CompletedOutcome(n.OrderID), true
	case StatusCanceled:
		return models.DismissedOutcome(n.OrderID), true
	case StatusFailed, StatusChargedBack:
		msg := n.StatusMessage
		if msg == "" {
			msg = fmt.Sprintf("gateway status %d", n.StatusCode)
		}
		return models.FailedOutcome(n.OrderID, msg), true
	default:
		return models.PaymentOutcome{}, false
	}
}

// AmountValue parses payhere_amount
func (n *Notification) AmountValue() (float64, error) {
	return strconv.ParseFloat(n.Amount, 64)
}

// AuditPayload returns the notification fields for the audit trail, without the signature
func (n *Notification) AuditPayload() map[string]interface{} {
	return map[string]interface{}{
		"merchant_id":      n.MerchantID,
		"order_id":         n.OrderID,
		"payment_id":       n.PaymentID,
		"payhere_amount":   n.Amount,
		"payhere_currency": n.Currency,
		"status_code":      n.StatusCode,
		"status_message":   n.StatusMessage,
		"method":           n.Method,
	}
}
