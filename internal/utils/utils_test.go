package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNumericOTP(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := GenerateNumericOTP(6)
		require.NoError(t, err)
		require.Len(t, otp, 6)
		for _, r := range otp {
			require.True(t, r >= '0' && r <= '9', "non-digit in %q", otp)
		}
	}

	otp, err := GenerateNumericOTP(0)
	require.NoError(t, err)
	assert.Len(t, otp, OTPLength)
}

func TestNumericOTP_Generate(t *testing.T) {
	otp, err := NumericOTP{Digits: 8}.Generate()
	require.NoError(t, err)
	assert.Len(t, otp, 8)
}

func TestNewRandomToken(t *testing.T) {
	a, err := NewRandomToken(16)
	require.NoError(t, err)
	b, err := NewRandomToken(16)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)

	digest, err := h.Hash("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", digest)

	assert.True(t, h.Verify("pw1", digest))
	assert.False(t, h.Verify("pw2", digest))
	assert.False(t, h.Verify("pw1", ""))

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestNewBcryptHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, 10, NewBcryptHasher(0).Cost)
	assert.Equal(t, 10, NewBcryptHasher(99).Cost)
	assert.Equal(t, 12, NewBcryptHasher(12).Cost)
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("a@x.com"))
	assert.False(t, IsEmail("alice"))
	assert.True(t, IsEmail("bob@"))
}

func TestSplitTargetRef(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		ref     string
		context string
	}{
		{"registration-" + id, "registration"},
		{"password-reset-" + id, "password-reset"},
		{"reg-" + strings.ToUpper(id), "reg"},
	}
	for _, tc := range tests {
		t.Run(tc.context, func(t *testing.T) {
			ctx, got, err := SplitTargetRef(tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.context, ctx)
			assert.Equal(t, id, got)
		})
	}
}

func TestSplitTargetRef_Malformed(t *testing.T) {
	for _, ref := range []string{
		"",
		uuid.NewString(),
		"registration" + uuid.NewString(),
		"registration-not-a-uuid-at-all-but-long-enough-xxxx",
		"-" + uuid.NewString(),
	} {
		_, _, err := SplitTargetRef(ref)
		assert.ErrorIs(t, err, ErrMalformedRef, "ref %q", ref)
	}
}

func TestTargetRef_RoundTrip(t *testing.T) {
	id := uuid.NewString()
	ctx, got, err := SplitTargetRef(TargetRef("password-reset", id))
	require.NoError(t, err)
	assert.Equal(t, "password-reset", ctx)
	assert.Equal(t, id, got)
}
