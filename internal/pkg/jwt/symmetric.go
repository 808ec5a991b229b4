package jwt

import (
	"errors"
	"time"

	libJWT "github.com/golang-jwt/jwt/v5"
)

// hardFailures disqualify a token even when it has also expired.
var hardFailures = []error{
	libJWT.ErrTokenMalformed,
	libJWT.ErrTokenSignatureInvalid,
	libJWT.ErrTokenInvalidIssuer,
	libJWT.ErrTokenInvalidAudience,
	libJWT.ErrTokenNotValidYet,
	libJWT.ErrTokenUsedBeforeIssued,
}

// Symmetric signs with HS512 and accepts nothing else.
type Symmetric struct {
	cfg    Config
	parser *libJWT.Parser
}

func NewHS512(cfg Config) (*Symmetric, error) {
	if len(cfg.Secret) < 64 {
		return nil, ErrSigningKeyTooShort
	}

	opts := []libJWT.ParserOption{
		libJWT.WithValidMethods([]string{libJWT.SigningMethodHS512.Alg()}),
		libJWT.WithIssuer(cfg.Issuer),
		libJWT.WithAudience(cfg.Audiences...),
		libJWT.WithIssuedAt(),
		libJWT.WithExpirationRequired(),
	}
	if cfg.Clock != nil {
		opts = append(opts, libJWT.WithTimeFunc(cfg.Clock.Now))
	}

	return &Symmetric{cfg: cfg, parser: libJWT.NewParser(opts...)}, nil
}

func (s *Symmetric) Generate(p Payload, expiresAt time.Time) (Token, error) {
	id := s.cfg.UUID.Generate()
	tok := libJWT.NewWithClaims(libJWT.SigningMethodHS512, s.claims(id, p, expiresAt))

	signed, err := tok.SignedString(s.cfg.Secret)
	if err != nil {
		return Token{}, err
	}
	return Token{ID: id, Value: signed, ExpiresAt: expiresAt}, nil
}

func (s *Symmetric) claims(id string, p Payload, expiresAt time.Time) Claims {
	iat := libJWT.NewNumericDate(s.now())
	return Claims{
		RegisteredClaims: libJWT.RegisteredClaims{
			ID:        id,
			Issuer:    s.cfg.Issuer,
			Subject:   p.Address,
			Audience:  s.cfg.Audiences,
			IssuedAt:  iat,
			NotBefore: iat,
			ExpiresAt: libJWT.NewNumericDate(expiresAt),
		},
		SessionID:   p.SessionID,
		Address:     p.Address,
		Role:        p.Role,
		Level:       p.Level,
		Permissions: p.Permissions,
	}
}

func (s *Symmetric) Verify(tokenStr string) (Claims, error) {
	var clm Claims
	tok, err := s.parser.ParseWithClaims(tokenStr, &clm, s.key)
	switch {
	case err == nil && tok.Valid:
		return clm, nil
	case err == nil:
		return Claims{}, ErrInvalidToken
	case expiredOnly(err):
		return clm, ErrTokenExpired
	}
	return Claims{}, err
}

func (s *Symmetric) key(t *libJWT.Token) (any, error) {
	if _, ok := t.Method.(*libJWT.SigningMethodHMAC); !ok {
		return nil, ErrInvalidSigningMethod
	}
	return s.cfg.Secret, nil
}

func (s *Symmetric) now() time.Time {
	if s.cfg.Clock == nil {
		return time.Now()
	}
	return s.cfg.Clock.Now()
}

// expiredOnly is true when exp is the sole failed check. The signature is
// verified before the claims, so such a payload is still trusted.
func expiredOnly(err error) bool {
	if !errors.Is(err, libJWT.ErrTokenExpired) {
		return false
	}
	for _, hard := range hardFailures {
		if errors.Is(err, hard) {
			return false
		}
	}
	return true
}
