package payhere

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidHashRequest is returned when the order id, amount or currency is malformed
	ErrInvalidHashRequest = errors.New("invalid hash request")

	amountPattern = regexp.MustCompile(`^\d+\.\d{2}$`)
)

// HashRequest is what the checkout hash is minted over
type HashRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

// Validate checks the request before anything is signed
func (r HashRequest) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return fmt.Errorf("%w: order_id is required", ErrInvalidHashRequest)
	}
	if !amountPattern.MatchString(r.Amount) {
		return fmt.Errorf("%w: amount must have exactly two decimals, got %q", ErrInvalidHashRequest, r.Amount)
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3 letter code, got %q", ErrInvalidHashRequest, r.Currency)
	}
	return nil
}

// HashResult is a minted hash and the merchant it belongs to
type HashResult struct {
	Hash       string `json:"hash"`
	MerchantID string `json:"merchantId"`
}

// HashMinter mints checkout hashes. Implemented locally by Signer and remotely by HashClient.
type HashMinter interface {
	MintHash(ctx context.Context, req HashRequest) (*HashResult, error)
}

// Signer holds the merchant secret and signs checkout requests and verifies notifications.
// The secret itself is never stored, only its uppercase MD5 digest.
type Signer struct {
	merchantID   string
	secretDigest string
}

// NewSigner creates a signer for a merchant
func NewSigner(merchantID, merchantSecret string) *Signer {
	return &Signer{
		merchantID:   merchantID,
		secretDigest: md5Upper(merchantSecret),
	}
}

// MerchantID returns the merchant the signer belongs to
func (s *Signer) MerchantID() string {
	return s.merchantID
}

// MintHash computes UPPER(MD5(merchant_id + order_id + amount + currency + UPPER(MD5(secret))))
func (s *Signer) MintHash(ctx context.Context, req HashRequest) (*HashResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &HashResult{
		Hash:       md5Upper(s.merchantID + req.OrderID + req.Amount + req.Currency + s.secretDigest),
		MerchantID: s.merchantID,
	}, nil
}

// VerifyNotification checks the md5sig PayHere attaches to its server notification
func (s *Signer) VerifyNotification(n *Notification) bool {
	if n.MerchantID != s.merchantID {
		return false
	}
	expected := md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCodeRaw + s.secretDigest)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(n.MD5Sig))) == 1
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
