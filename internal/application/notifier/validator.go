package notifier

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mardens/potracker/pkg/domain"
)

// maxSourceLength bounds the free-form source label, in characters
const maxSourceLength = 128

// Notification describes a mutation reported by a backend service
type Notification struct {
	Kind   domain.Kind
	Source string
}

// Validator validates notifications
type Validator struct{}

// NewValidator creates a new notification validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a notification
func (v *Validator) Validate(n *Notification) error {
	if n == nil {
		return fmt.Errorf("notification is nil")
	}

	if !n.Kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, n.Kind)
	}

	if utf8.RuneCountInString(n.Source) > maxSourceLength {
		return fmt.Errorf("source exceeds %d characters", maxSourceLength)
	}

	if strings.ContainsAny(n.Source, "\r\n") {
		return fmt.Errorf("source must be a single line")
	}

	return nil
}
