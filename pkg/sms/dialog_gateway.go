package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DialogGateway implements SMS sending via Dialog eSMS API v2 (login + bearer token)
type DialogGateway struct {
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client

	tokenMutex  sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// DialogConfig holds configuration for Dialog SMS Gateway
type DialogConfig struct {
	APIURL   string
	Username string
	Password string
	Mask     string
}

// NewDialogGateway creates a new Dialog SMS Gateway client
func NewDialogGateway(config DialogConfig) *DialogGateway {
	return &DialogGateway{
		apiURL:   config.APIURL,
		username: config.Username,
		password: config.Password,
		mask:     config.Mask,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

type smsRecipient struct {
	Mobile string `json:"mobile"`
}

type sendSMSRequest struct {
	MSISDN        []smsRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
	PaymentMethod int            `json:"payment_method"` // 0 = wallet
}

type sendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	ErrCode string `json:"errCode"`
}

// login retrieves a fresh access token
func (d *DialogGateway) login(ctx context.Context) error {
	var resp loginResponse
	if err := d.postJSON(ctx, "/login", "", loginRequest{Username: d.username, Password: d.password}, &resp); err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	if resp.Status != "success" {
		return fmt.Errorf("login failed: %s (error code: %s)", resp.Comment, resp.ErrCode)
	}

	d.tokenMutex.Lock()
	d.token = resp.Token
	d.tokenExpiry = time.Now().Add(time.Duration(resp.Expiration) * time.Second)
	d.tokenMutex.Unlock()
	return nil
}

// validToken returns a token that is good for at least five more minutes
func (d *DialogGateway) validToken(ctx context.Context) (string, error) {
	d.tokenMutex.RLock()
	token, expiry := d.token, d.tokenExpiry
	d.tokenMutex.RUnlock()

	if token != "" && time.Now().Before(expiry.Add(-5*time.Minute)) {
		return token, nil
	}

	if err := d.login(ctx); err != nil {
		return "", err
	}

	d.tokenMutex.RLock()
	defer d.tokenMutex.RUnlock()
	return d.token, nil
}

// SendMessage sends one message and returns the transaction id used
func (d *DialogGateway) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	token, err := d.validToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	formattedPhone, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, fmt.Errorf("failed to format phone number: %w", err)
	}

	transactionID := time.Now().UnixMicro()
	req := sendSMSRequest{
		MSISDN:        []smsRecipient{{Mobile: formattedPhone}},
		Message:       message,
		SourceAddress: d.mask,
		TransactionID: transactionID,
	}

	var resp sendSMSResponse
	if err := d.postJSON(ctx, "/sms", token, req, &resp); err != nil {
		return 0, fmt.Errorf("failed to send SMS request: %w", err)
	}

	if resp.Status != "success" {
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", resp.Comment, resp.ErrCode)
	}

	return transactionID, nil
}

func (d *DialogGateway) postJSON(ctx context.Context, path, token string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// GetName returns the name of this SMS gateway
func (d *DialogGateway) GetName() string {
	return "Dialog API v2 Gateway"
}
