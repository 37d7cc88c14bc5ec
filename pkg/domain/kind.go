package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies which dashboard collection changed
type Kind string

const (
	KindVendors        Kind = "vendors"
	KindPurchaseOrders Kind = "purchase_orders"
	KindUsers          Kind = "users"
)

// ErrInvalidKind is returned for tags outside the closed set
var ErrInvalidKind = errors.New("invalid change kind")

// Kinds returns every known kind in a stable order
func Kinds() []Kind {
	return []Kind{KindVendors, KindPurchaseOrders, KindUsers}
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case KindVendors, KindPurchaseOrders, KindUsers:
		return true
	}
	return false
}

// ParseKind converts a wire tag into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Change records a single mutation of a collection
type Change struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Revision  int64     `json:"revision"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the frame body pushed to realtime clients.
// Only Type is consulted by subscribers.
type Envelope struct {
	Type Kind `json:"type"`
}
