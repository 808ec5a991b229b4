package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminAddress = "admin@example.org"

func issue(t *testing.T, h *harness, code string) {
	t.Helper()
	h.uc.otp = fixedCode(code)
	_, err := h.uc.IssueChallenge(context.Background(), IssueChallengeInput{Address: adminAddress})
	require.NoError(t, err)
}

func TestVerifyChallengeAttemptBudget(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	ctx := context.Background()
	issue(t, h, "482913")

	// Act
	var remaining []any
	for range 5 {
		err := h.uc.VerifyChallenge(ctx, VerifyChallengeInput{Address: adminAddress, Code: "000000"})
		require.Equal(t, "invalid_code", goerror.ReasonOf(err))
		remaining = append(remaining, detail(t, err, "remaining_attempts"))
	}
	err := h.uc.VerifyChallenge(ctx, VerifyChallengeInput{Address: adminAddress, Code: "482913"})

	// Assert
	assert.Equal(t, []any{4, 3, 2, 1, 0}, remaining)
	assert.Equal(t, goerror.CodeTooManyRequest, goerror.CodeOf(err))
	assert.Equal(t, "too_many_attempts", goerror.ReasonOf(err))
	stored := h.cache.challenges[adminAddress]
	assert.True(t, stored.Consumed)
	assert.Equal(t, entity.ConsumedReasonExhausted, stored.ConsumedReason)
	assert.Equal(t, 5, stored.AttemptCount)
}

func TestVerifyChallengeSucceedsOnLastAttempt(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	ctx := context.Background()
	issue(t, h, "482913")
	for range 4 {
		require.Error(t, h.uc.VerifyChallenge(ctx, VerifyChallengeInput{Address: adminAddress, Code: "000000"}))
	}

	// Act
	err := h.uc.VerifyChallenge(ctx, VerifyChallengeInput{Address: adminAddress, Code: "482913"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, h.cache.challenges[adminAddress].AttemptCount)
}

func TestVerifyChallengeExpired(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	issue(t, h, "482913")
	h.clock.Advance(10 * time.Minute)

	// Act
	err := h.uc.VerifyChallenge(context.Background(), VerifyChallengeInput{Address: adminAddress, Code: "482913"})

	// Assert
	assert.Equal(t, goerror.CodeGone, goerror.CodeOf(err))
	assert.Equal(t, "challenge_expired", goerror.ReasonOf(err))
	assert.Equal(t, 0, h.cache.challenges[adminAddress].AttemptCount)
	assert.False(t, h.cache.challenges[adminAddress].Consumed)
}

func TestVerifyChallengeJustBeforeExpiry(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	issue(t, h, "482913")
	h.clock.Advance(10*time.Minute - time.Second)

	// Act
	err := h.uc.VerifyChallenge(context.Background(), VerifyChallengeInput{Address: adminAddress, Code: "482913"})

	// Assert
	assert.NoError(t, err)
}

func TestVerifyChallengeExpiredWithoutRetentionConfigured(t *testing.T) {
	noRetention := strings.Replace(testConfig, "      retention_minutes: 1440\n", "", 1)

	tests := []struct {
		name       string
		cfg        string
		after      time.Duration
		wantReason string
	}{
		{name: "retention unset", cfg: noRetention, after: 11 * time.Minute, wantReason: "challenge_expired"},
		{name: "retention below a day", cfg: strings.Replace(testConfig, "retention_minutes: 1440", "retention_minutes: 1", 1), after: 2 * time.Hour, wantReason: "challenge_expired"},
		{name: "hours past expiry", cfg: noRetention, after: 24 * time.Hour, wantReason: "challenge_expired"},
		{name: "past retention", cfg: noRetention, after: 24*time.Hour + 10*time.Minute, wantReason: "challenge_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t, tt.cfg)
			issue(t, h, "482913")
			h.clock.Advance(tt.after)

			// Act
			err := h.uc.VerifyChallenge(context.Background(), VerifyChallengeInput{Address: adminAddress, Code: "482913"})

			// Assert
			assert.Equal(t, tt.wantReason, goerror.ReasonOf(err))
		})
	}
}

func TestVerifyChallengeNotFound(t *testing.T) {
	// Arrange
	h := newHarness(t, "")

	// Act
	err := h.uc.VerifyChallenge(context.Background(), VerifyChallengeInput{Address: adminAddress, Code: "482913"})

	// Assert
	assert.Equal(t, goerror.CodeNotFound, goerror.CodeOf(err))
	assert.Equal(t, "challenge_not_found", goerror.ReasonOf(err))
}

func TestVerifyChallengeKeepsLeadingZero(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	ctx := context.Background()
	issue(t, h, "042613")

	// Act
	errShort := h.uc.VerifyChallenge(ctx, VerifyChallengeInput{Address: adminAddress, Code: "42613"})
	errExact := h.uc.VerifyChallenge(ctx, VerifyChallengeInput{Address: adminAddress, Code: "042613"})

	// Assert
	assert.Equal(t, "042613", h.notifier.lastCode())
	assert.Equal(t, "invalid_code", goerror.ReasonOf(errShort))
	assert.NoError(t, errExact)
}

func TestVerifyChallengeStoreUnavailable(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	issue(t, h, "482913")
	h.cache.err = errStoreDown

	// Act
	err := h.uc.VerifyChallenge(context.Background(), VerifyChallengeInput{Address: adminAddress, Code: "482913"})

	// Assert
	assert.Equal(t, goerror.CodeServiceUnavailable, goerror.CodeOf(err))
}

func TestVerifyChallengeNormalizesAddress(t *testing.T) {
	// Arrange
	h := newHarness(t, "")
	issue(t, h, "482913")

	// Act
	err := h.uc.VerifyChallenge(context.Background(), VerifyChallengeInput{Address: "Admin@Example.ORG", Code: "482913"})

	// Assert
	assert.NoError(t, err)
}
