package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "valid", raw: "PROMO-42", want: 42},
		{name: "valid with surrounding space", raw: "  PROMO-7\n", want: 7},
		{name: "empty", raw: "", wantErr: true},
		{name: "no separator", raw: "PROMO42", wantErr: true},
		{name: "too many parts", raw: "PROMO-42-extra", wantErr: true},
		{name: "non numeric id", raw: "PROMO-abc", wantErr: true},
		{name: "zero id", raw: "PROMO-0", wantErr: true},
		{name: "negative id", raw: "PROMO--5", wantErr: true},
		{name: "garbage", raw: "not-a-code-at-all", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCode(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCodeFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatCodeRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 42, 999999} {
		id2, err := ParseCode(FormatCode(id))
		require.NoError(t, err)
		assert.Equal(t, id, id2)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrInfrastructureTimeout))

	for _, err := range []error{
		ErrInvalidCodeFormat,
		ErrActorNotAssociated,
		ErrCodeNotFound,
		ErrCodeExpired,
		ErrPromotionNotOwned,
		ErrPromotionExhausted,
		ErrUserLimitReached,
		errors.New("something else"),
	} {
		assert.False(t, Retryable(err), "%v should not be retryable", err)
	}
}

func TestKindOfRoundTrip(t *testing.T) {
	for _, err := range []error{
		ErrInvalidCodeFormat,
		ErrActorNotAssociated,
		ErrCodeNotFound,
		ErrCodeExpired,
		ErrPromotionNotFound,
		ErrPromotionNotOwned,
		ErrPromotionExhausted,
		ErrUserLimitReached,
		ErrInfrastructureTimeout,
	} {
		mapped, ok := ErrorByKind(KindOf(err))
		require.True(t, ok)
		assert.Equal(t, err, mapped)
	}
}
