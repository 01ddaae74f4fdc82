package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Failure kinds of the codec. Callers discriminate with errors.Is; the codec
// never reports a cause through message text.
var (
	// ErrMalformed covers every structural or signature problem: undecodable
	// token, unexpected algorithm, bad signature, missing claims.
	ErrMalformed = errors.New("credential malformed")
	// ErrExpired is returned for a well-formed, correctly signed credential
	// whose expiry has passed.
	ErrExpired = errors.New("credential expired")
	// ErrWrongType is returned when a correctly signed credential of one
	// class is presented where another class is expected (audience or type
	// discriminator mismatch).
	ErrWrongType = errors.New("credential of wrong type")
)

const resetTokenType = "pwd_reset"

// Payload is the identity projection embedded in every credential.
type Payload struct {
	PrincipalID string
	Email       string
	Role        string
}

// Claims is the wire shape of all three credential classes. TokenType is
// empty for access and refresh credentials and set for reset credentials.
type Claims struct {
	Email     string `json:"eml,omitempty"`
	Role      string `json:"rol,omitempty"`
	TokenType string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// Payload returns the identity projection carried by the claims.
func (c *Claims) Payload() Payload {
	return Payload{PrincipalID: c.Subject, Email: c.Email, Role: c.Role}
}

// Config holds the per-class secrets, audiences, and lifetimes.
//
// Secrets must be distinct across classes; Validate in the root config
// enforces this, NewCodec re-checks as a last line of defense.
type Config struct {
	Issuer string

	AccessSecret  []byte
	RefreshSecret []byte
	ResetSecret   []byte

	AccessAudience  string
	RefreshAudience string
	ResetAudience   string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Leeway is applied to expiry checks during verification to absorb
	// bounded clock skew between processes. Zero disables it.
	Leeway time.Duration
}

// Codec signs and verifies credentials. It is stateless and safe for
// concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer required")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.ResetSecret) == 0 {
		return nil, errors.New("all credential class secrets required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) ||
		string(cfg.AccessSecret) == string(cfg.ResetSecret) ||
		string(cfg.RefreshSecret) == string(cfg.ResetSecret) {
		return nil, errors.New("credential class secrets must be distinct")
	}
	if cfg.AccessAudience == "" {
		cfg.AccessAudience = "authcore:access"
	}
	if cfg.RefreshAudience == "" {
		cfg.RefreshAudience = "authcore:refresh"
	}
	if cfg.ResetAudience == "" {
		cfg.ResetAudience = "authcore:reset"
	}
	if cfg.AccessAudience == cfg.RefreshAudience ||
		cfg.AccessAudience == cfg.ResetAudience ||
		cfg.RefreshAudience == cfg.ResetAudience {
		return nil, errors.New("credential class audiences must be distinct")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Codec{config: cfg}, nil
}

// IssueAccess signs a short-lived access credential for p.
func (c *Codec) IssueAccess(p Payload) (string, error) {
	return c.issue(p, "", c.config.AccessAudience, c.config.AccessTTL, c.config.AccessSecret)
}

// IssueRefresh signs a refresh credential for p. Every issued refresh
// credential carries a fresh token ID, so two issuances for the same
// principal in the same second are still distinct values.
func (c *Codec) IssueRefresh(p Payload) (string, error) {
	return c.issue(p, "", c.config.RefreshAudience, c.config.RefreshTTL, c.config.RefreshSecret)
}

// IssueReset signs a single-use password-reset credential bound to the
// principal and email. The type discriminator is checked on verification.
func (c *Codec) IssueReset(principalID, email string) (string, error) {
	p := Payload{PrincipalID: principalID, Email: email}
	return c.issue(p, resetTokenType, c.config.ResetAudience, c.config.ResetTTL, c.config.ResetSecret)
}

// VerifyAccess verifies an access credential and returns its claims.
func (c *Codec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(token, c.config.AccessAudience, c.config.AccessSecret, false)
}

// VerifyRefresh verifies a refresh credential and returns its claims.
// Registry presence is a separate check owned by the session store.
func (c *Codec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(token, c.config.RefreshAudience, c.config.RefreshSecret, false)
}

// VerifyReset verifies a reset credential, including its type discriminator.
func (c *Codec) VerifyReset(token string) (*Claims, error) {
	return c.verify(token, c.config.ResetAudience, c.config.ResetSecret, true)
}

func (c *Codec) issue(p Payload, tokenType, audience string, ttl time.Duration, secret []byte) (string, error) {
	if p.PrincipalID == "" {
		return "", errors.New("payload principal id required")
	}

	now := time.Now()
	claims := Claims{
		Email:     p.Email,
		Role:      p.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.PrincipalID,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (c *Codec) verify(token, audience string, secret []byte, wantReset bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.config.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			// A signature-valid token with the wrong audience is a credential
			// of another class presented at the wrong gate.
			return nil, ErrWrongType
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			// Classes sign with distinct secrets, so a credential of another
			// class fails here before its audience is ever looked at. Only a
			// token we genuinely signed under another class secret is a
			// wrong-type presentation; everything else stays malformed.
			if c.signedByOtherClass(token, secret) {
				return nil, ErrWrongType
			}
			return nil, ErrMalformed
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}

	if wantReset {
		if claims.TokenType != resetTokenType {
			return nil, ErrWrongType
		}
	} else if claims.TokenType != "" {
		return nil, ErrWrongType
	}

	return claims, nil
}

// signedByOtherClass reports whether token verifies under one of the class
// secrets other than used. Claims are not validated; an expired credential
// of another class is still a wrong-type presentation.
func (c *Codec) signedByOtherClass(token string, used []byte) bool {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	for _, secret := range [][]byte{c.config.AccessSecret, c.config.RefreshSecret, c.config.ResetSecret} {
		if string(secret) == string(used) {
			continue
		}
		_, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err == nil {
			return true
		}
	}
	return false
}
