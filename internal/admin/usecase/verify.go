package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
)

type VerifyChallengeInput struct {
	Address string `validate:"required,email"`
	Code    string `validate:"required,max=64"`
}

var (
	errChallengeNotFound = goerror.NewReason("No pending code for this account, request a new one",
		goerror.CodeNotFound, "challenge_not_found")
	errChallengeUsed = goerror.NewReason("This code has already been used, request a new one",
		goerror.CodeConflict, "challenge_already_used")
	errChallengeExpired = goerror.NewReason("This code has expired, request a new one",
		goerror.CodeGone, "challenge_expired")
	errTooManyAttempts = goerror.NewReason("Too many attempts, request a new code",
		goerror.CodeTooManyRequest, "too_many_attempts")
)

func errInvalidCode(remaining int) error {
	return goerror.NewReason("Invalid code", goerror.CodeUnauthorized, "invalid_code", "remaining_attempts", remaining)
}

// VerifyChallenge checks code against the stored challenge for address. Every
// call that reaches the comparison counts as an attempt, and the attempt
// counter is updated in the same atomic write as the consumed flag.
func (s *Usecase) VerifyChallenge(ctx context.Context, in VerifyChallengeInput) error {
	ctx, span := s.startSpan(ctx, "VerifyChallenge")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	address := entity.NormalizeAddress(in.Address)
	maxAttempts := s.maxAttempts()

	var outcome error
	var attempts int
	err := s.repoCache.UpdateChallenge(ctx, address, func(c *entity.Challenge) bool {
		now := s.clock.Now()
		outcome, attempts = nil, c.AttemptCount

		if c.Consumed {
			if c.ConsumedReason == entity.ConsumedReasonExhausted {
				outcome = errTooManyAttempts
			} else {
				outcome = errChallengeUsed
			}
			return false
		}

		if !now.Before(c.ExpiresAt) {
			outcome = errChallengeExpired
			return false
		}

		c.AttemptCount++
		attempts = c.AttemptCount

		if c.AttemptCount > maxAttempts {
			c.Consumed = true
			c.ConsumedReason = entity.ConsumedReasonExhausted
			outcome = errTooManyAttempts
			return true
		}

		if !s.hmac.Verify(c.CodeHash, in.Code) {
			remaining := maxAttempts - c.AttemptCount
			if remaining == 0 {
				c.Consumed = true
				c.ConsumedReason = entity.ConsumedReasonExhausted
			}
			outcome = errInvalidCode(remaining)
			return true
		}

		c.Consumed = true
		c.ConsumedReason = entity.ConsumedReasonVerified
		return true
	})
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no challenge to verify", "address", address)
		outcome = errChallengeNotFound
	} else if err != nil {
		slog.ErrorContext(ctx, "failed to repo update challenge", "address", address, "error", err)
		return goerror.NewServiceUnavailable(err)
	}

	if outcome != nil {
		slog.WarnContext(ctx, "challenge verification failed", "address", address,
			"attempt_count", attempts, "reason", goerror.ReasonOf(outcome))
		s.publish(ctx, entity.Event{
			Type:    event.ChallengeFailed,
			Address: address,
			Detail: map[string]string{
				"kind":          goerror.ReasonOf(outcome),
				"attempt_count": strconv.Itoa(attempts),
			},
		})
		return outcome
	}

	slog.InfoContext(ctx, "challenge verified", "address", address, "attempt_count", attempts)
	s.publish(ctx, entity.Event{
		Type:    event.ChallengeVerified,
		Address: address,
		Detail:  map[string]string{"attempt_count": strconv.Itoa(attempts)},
	})

	return nil
}
