package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewfMatchesSentinel(t *testing.T) {
	err := Newf(ErrSplitMismatch, "splits total %d, expense is %d", 999, 1000)

	assert.True(t, errors.Is(err, ErrSplitMismatch))
	assert.False(t, errors.Is(err, ErrInvalidAmount))
	assert.Equal(t, "split_mismatch: splits total 999, expense is 1000", err.Error())
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	err := fmt.Errorf("failed to add expense: %w", Newf(ErrNotFound, "group %s", "g1"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "not_found", CodeOf(err))
}

func TestUnclassifiedError(t *testing.T) {
	err := errors.New("disk on fire")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal", CodeOf(err))
	_, ok := As(err)
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindValidation, "validation"},
		{KindUnauthenticated, "unauthenticated"},
		{KindForbidden, "forbidden"},
		{KindNotFound, "not_found"},
		{KindConflict, "conflict"},
		{KindInternal, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
