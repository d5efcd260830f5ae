package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates phone number length is not 10 digits
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")

	// ErrInvalidPrefix indicates phone number doesn't start with valid Sri Lankan prefix
	ErrInvalidPrefix = errors.New("phone number must start with 070, 071, 072, 074, 075, 076, 077 or 078")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// validPrefixes contains Sri Lankan mobile operator prefixes
var validPrefixes = map[string]string{
	"070": "Mobitel",
	"071": "Mobitel",
	"072": "Hutch",
	"074": "Dialog",
	"075": "Airtel",
	"076": "Dialog",
	"077": "Dialog",
	"078": "Hutch",
}

var phoneRegex = regexp.MustCompile(`^\d+$`)

var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a Sri Lankan mobile number
// Accepts format: 0771234567, 077 123 4567, 077-123-4567 or +94771234567
// Returns the sanitized number (0XXXXXXXXX)
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}

	if _, ok := validPrefixes[sanitized[:3]]; !ok {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes separators and replaces a leading 94 country code with 0
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = separators.Replace(phone)

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = "0" + phone[2:]
	}

	return phone
}

// Operator returns the mobile operator for a valid number
func (v *PhoneValidator) Operator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return validPrefixes[sanitized[:3]], nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
