package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
	"github.com/shandysiswandi/stepguard/internal/pkg/goerror"
	"github.com/shandysiswandi/stepguard/internal/pkg/idempotency"
	"github.com/shandysiswandi/stepguard/internal/shared/event"
)

type IssueChallengeInput struct {
	Address     string `validate:"required,email"`
	DisplayName string `validate:"max=200"`
}

type IssueChallengeOutput struct {
	Address     string
	ExpiresAt   time.Time
	MaxAttempts int
	Delivery    entity.Delivery
}

// IssueChallenge generates a fresh code for address, replaces any prior
// challenge and hands the plaintext code to the notifier. A failed delivery
// is reported in the output and never undoes the stored challenge.
func (s *Usecase) IssueChallenge(ctx context.Context, in IssueChallengeInput) (*IssueChallengeOutput, error) {
	ctx, span := s.startSpan(ctx, "IssueChallenge")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	address := entity.NormalizeAddress(in.Address)
	cooldown := s.cfg.GetSecond("modules.admin.otp.resend_cooldown_seconds")
	if cooldown <= 0 {
		return s.issueChallenge(ctx, address, in.DisplayName)
	}

	var out *IssueChallengeOutput
	err := s.idemp.Exec(ctx, "admin:otp:cooldown:"+address, func(ctx context.Context) error {
		var err error
		out, err = s.issueChallenge(ctx, address, in.DisplayName)
		return err
	}, idempotency.WithLockDuration(cooldown), idempotency.WithStateTTL(cooldown), idempotency.WithRetryOnFailure())
	if errors.Is(err, idempotency.ErrAlreadyCompleted) || errors.Is(err, idempotency.ErrAlreadyInProgress) {
		slog.WarnContext(ctx, "challenge resend within cooldown", "address", address)
		return nil, goerror.NewReason("Please wait before requesting another code", goerror.CodeTooManyRequest,
			"resend_cooldown", "retry_after_seconds", int(cooldown.Seconds()))
	}
	if err != nil {
		var gerr *goerror.Error
		if errors.As(err, &gerr) {
			return nil, err
		}
		slog.ErrorContext(ctx, "failed to guard challenge resend", "address", address, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	return out, nil
}

func (s *Usecase) issueChallenge(ctx context.Context, address, displayName string) (*IssueChallengeOutput, error) {
	code, err := s.otp.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate otp code", "address", address, "error", err)
		return nil, goerror.NewServer(err)
	}

	codeHash, err := s.hmac.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash otp code", "address", address, "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	chal := entity.Challenge{
		Address:   address,
		CodeHash:  string(codeHash),
		ExpiresAt: now.Add(s.otpTTL()),
		IssuedAt:  now,
	}
	keepUntil := chal.ExpiresAt.Add(s.challengeRetention())
	if err := s.repoCache.SaveChallenge(ctx, chal, keepUntil); err != nil {
		slog.ErrorContext(ctx, "failed to repo save challenge", "address", address, "error", err)
		return nil, goerror.NewServiceUnavailable(err)
	}

	s.codeSink.Record(ctx, address, code, chal.ExpiresAt)

	params := map[string]string{
		entity.ParamCode:      code,
		entity.ParamExpiresAt: s.formatExpiry(chal.ExpiresAt),
	}
	if displayName != "" {
		params[entity.ParamDisplayName] = displayName
	}

	delivery, err := s.notifier.Send(ctx, address, params)
	if err != nil {
		// programmer error at the notifier boundary; the challenge stays valid
		slog.ErrorContext(ctx, "notifier rejected otp delivery request", "address", address, "error", err)
		delivery = entity.Delivery{Status: entity.DeliveryStatusFailed, Reason: entity.DeliveryReasonProviderError}
	}
	if !delivery.Delivered() {
		slog.WarnContext(ctx, "otp code not delivered", "address", address,
			"delivery_status", string(delivery.Status), "delivery_reason", string(delivery.Reason))
	}

	s.publish(ctx, entity.Event{
		Type:    event.ChallengeIssued,
		Address: address,
		Detail: map[string]string{
			"delivery_status": string(delivery.Status),
			"delivery_reason": string(delivery.Reason),
		},
		OccurredAt: now,
	})

	return &IssueChallengeOutput{
		Address:     address,
		ExpiresAt:   chal.ExpiresAt,
		MaxAttempts: s.maxAttempts(),
		Delivery:    delivery,
	}, nil
}

func (s *Usecase) formatExpiry(t time.Time) string {
	layout := s.cfg.GetString("modules.admin.notifier.expiry_layout")
	if layout == "" {
		layout = "02 Jan 2006 15:04 MST"
	}

	loc := time.UTC
	if tz := s.cfg.GetString("modules.admin.notifier.timezone"); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	return t.In(loc).Format(layout)
}
