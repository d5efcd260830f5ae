package validator

import (
	"fmt"
	"net/mail"
	"strings"
)

// FieldError names the customer field that failed validation
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CustomerDetails are the payer fields the checkout requires
type CustomerDetails struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Country   string
}

// ValidateCustomer checks the payer details and returns them with the phone sanitized.
// The first invalid field is reported as a *FieldError.
func ValidateCustomer(c CustomerDetails) (CustomerDetails, error) {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	c.Country = strings.TrimSpace(c.Country)

	if c.FirstName == "" {
		return c, &FieldError{Field: "first_name", Message: "is required"}
	}
	if c.LastName == "" {
		return c, &FieldError{Field: "last_name", Message: "is required"}
	}

	if c.Email == "" {
		return c, &FieldError{Field: "email", Message: "is required"}
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return c, &FieldError{Field: "email", Message: "is not a valid address"}
	}

	phone, err := NewPhoneValidator().Validate(c.Phone)
	if err != nil {
		return c, &FieldError{Field: "phone", Message: err.Error()}
	}
	c.Phone = phone

	required := []struct{ field, value string }{
		{"address", c.Address},
		{"city", c.City},
		{"country", c.Country},
	}
	for _, r := range required {
		if r.value == "" {
			return c, &FieldError{Field: r.field, Message: "is required"}
		}
	}

	return c, nil
}
