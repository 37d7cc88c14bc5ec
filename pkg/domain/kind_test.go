package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("invoices")
	assert.True(t, errors.Is(err, ErrInvalidKind))

	_, err = ParseKind("")
	assert.ErrorIs(t, err, ErrInvalidKind)
}
