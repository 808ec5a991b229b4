package usecase

import (
	"context"

	"github.com/shandysiswandi/stepguard/internal/admin/entity"
)

type RequestChallengeInput struct {
	Credential string
}

type CompleteChallengeInput struct {
	Credential string
	Code       string
}

// RequestChallenge runs the identity gate for the signed-in identity and, when
// allowed, issues a challenge. Denied identities never reach the issuer.
func (s *Usecase) RequestChallenge(ctx context.Context, in RequestChallengeInput) (*IssueChallengeOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestChallenge")
	defer span.End()

	identity, err := s.Authenticate(ctx, in.Credential)
	if err != nil {
		return nil, err
	}

	member, err := s.CheckIdentity(ctx, *identity)
	if err != nil {
		return nil, err
	}

	displayName := identity.DisplayName
	if displayName == "" {
		displayName = member.DisplayName
	}

	return s.IssueChallenge(ctx, IssueChallengeInput{Address: member.Address, DisplayName: displayName})
}

// CompleteChallenge verifies the code for the signed-in identity and starts a
// session on success.
func (s *Usecase) CompleteChallenge(ctx context.Context, in CompleteChallengeInput) (*entity.Session, error) {
	ctx, span := s.startSpan(ctx, "CompleteChallenge")
	defer span.End()

	identity, err := s.Authenticate(ctx, in.Credential)
	if err != nil {
		return nil, err
	}

	member, err := s.CheckIdentity(ctx, *identity)
	if err != nil {
		return nil, err
	}

	if err := s.VerifyChallenge(ctx, VerifyChallengeInput{Address: member.Address, Code: in.Code}); err != nil {
		return nil, err
	}

	return s.IssueSession(ctx, IssueSessionInput{Address: member.Address, ProviderRef: identity.ProviderRef})
}
