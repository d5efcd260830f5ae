package sms

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Sender delivers a text message to a Sri Lankan mobile number
type Sender interface {
	SendMessage(ctx context.Context, phone, message string) (int64, error)
	GetName() string
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// FormatPhoneForDialog converts phone number to Dialog's 9-digit format
// Input: "0771234567" (10 digits) or "94771234567" (11 digits) or "+94771234567"
// Output: "771234567" (9 digits without prefix)
func FormatPhoneForDialog(phone string) (string, error) {
	phone = nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = phone[2:]
	}

	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	if len(phone) != 9 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits (expected 9)", len(phone))
	}

	if !strings.HasPrefix(phone, "7") {
		return "", fmt.Errorf("invalid Sri Lankan mobile prefix: must start with 7")
	}

	return phone, nil
}

// LogSender is used in dev mode: messages are logged, never sent
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a dev mode sender
func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendMessage logs the message
func (s *LogSender) SendMessage(ctx context.Context, phone, message string) (int64, error) {
	formatted, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"phone":   formatted,
		"message": message,
	}).Info("SMS (dev mode, not sent)")
	return 0, nil
}

// GetName returns the name of this SMS gateway
func (s *LogSender) GetName() string {
	return "Dev Log Sender"
}
