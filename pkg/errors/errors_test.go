package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKinds(t *testing.T) {
	cause := errors.New("deadlock found")
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"db kind", NewDB("store.Create", "insert", cause), ErrDB, true},
		{"wrapped db kind", fmt.Errorf("sweep: %w", NewDB("store.List", "query", cause)), ErrDB, true},
		{"db cause", NewDB("store.Create", "insert", cause), cause, true},
		{"db is not validation", NewDB("store.Create", "insert", cause), ErrValidation, false},
		{"validation kind", NewValidation("policy", "bad bands", nil), ErrValidation, true},
		{"normalization kind", NewNormalization("normalize.Phone", "PHONE", "too short"), ErrNormalization, true},
		{"sentinel through db", NewDB("store.Create", "dup", ErrAlreadyExists), ErrAlreadyExists, true},
		{"plain error", cause, ErrDB, false},
		{"nil error", nil, ErrDB, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Is(tt.err, tt.target))
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "normalization: normalize.Phone: PHONE: too short",
		NewNormalization("normalize.Phone", "PHONE", "too short").Error())
	assert.Equal(t, "validation: policy: bad bands", NewValidation("policy", "bad bands", nil).Error())
	assert.Equal(t, "db: store.Create: insert: boom", NewDB("store.Create", "insert", errors.New("boom")).Error())

	var n *NormalizationError
	assert.Equal(t, "<nil>", n.Error())
}
