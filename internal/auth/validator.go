package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/domain"
)

var (
	// ErrTokenExpired is terminal: the chain stops and the request is rejected.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid means no validator accepted the token.
	ErrTokenInvalid = errors.New("token invalid")
)

const (
	SourceSigned = "signed"
	SourceMock   = "mock"
)

// Validator turns a raw bearer token into a credential envelope.
type Validator interface {
	Name() string
	Validate(token string) (*domain.CredentialEnvelope, error)
}

// ValidatorChain tries validators in order; the first success wins.
type ValidatorChain struct {
	validators []Validator
}

// NewValidatorChain builds a chain from an ordered validator list.
func NewValidatorChain(validators ...Validator) *ValidatorChain {
	return &ValidatorChain{validators: validators}
}

// DefaultValidatorChain returns the signed validator followed, when allowed,
// by the mock envelope validator.
func DefaultValidatorChain(cfg config.AuthConfig, tokens *TokenManager) *ValidatorChain {
	validators := []Validator{NewSignedTokenValidator(tokens)}
	if MockTokensAllowed(cfg) {
		validators = append(validators, NewMockEnvelopeValidator(tokens.now))
	}
	return NewValidatorChain(validators...)
}

// MockTokensAllowed reports whether the non-cryptographic format is accepted.
func MockTokensAllowed(cfg config.AuthConfig) bool {
	return cfg.MockTokensEnabled && !cfg.StrictProduction
}

// Names lists the validators in evaluation order.
func (c *ValidatorChain) Names() []string {
	names := make([]string, 0, len(c.validators))
	for _, v := range c.validators {
		names = append(names, v.Name())
	}
	return names
}

// Validate returns ErrTokenExpired as soon as any validator reports expiry and
// ErrTokenInvalid when every validator rejects the token.
func (c *ValidatorChain) Validate(token string) (*domain.CredentialEnvelope, error) {
	for _, v := range c.validators {
		envelope, err := v.Validate(token)
		if err == nil {
			return envelope, nil
		}
		if errors.Is(err, ErrTokenExpired) {
			return nil, err
		}
	}
	return nil, ErrTokenInvalid
}

// SignedTokenValidator verifies HS256 tokens issued by TokenManager.
type SignedTokenValidator struct {
	tokens *TokenManager
}

// NewSignedTokenValidator wraps a token manager.
func NewSignedTokenValidator(tokens *TokenManager) *SignedTokenValidator {
	return &SignedTokenValidator{tokens: tokens}
}

func (v *SignedTokenValidator) Name() string { return SourceSigned }

// Validate accepts a correctly signed token. A valid signature with a past
// expiry is reported as ErrTokenExpired.
func (v *SignedTokenValidator) Validate(token string) (*domain.CredentialEnvelope, error) {
	claims, err := v.tokens.ParseToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("signed: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("signed: %w: %v", ErrTokenInvalid, err)
	}

	envelope := &domain.CredentialEnvelope{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		Source:    SourceSigned,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		envelope.ExpiresAt = &exp
	}
	return envelope, nil
}

// MockEnvelope is the decoded form of a demo token: base64 over JSON.
type MockEnvelope struct {
	ID    string      `json:"id,omitempty"`
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role"`
	Exp   *int64      `json:"exp,omitempty"`
}

// EncodeMockEnvelope produces a token the mock validator accepts.
func EncodeMockEnvelope(env MockEnvelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// msThreshold separates Unix-seconds from Unix-milliseconds expiry values.
const msThreshold = 1_000_000_000_000

// maxExpiryMillis is 9999-12-31T23:59:59Z in Unix milliseconds; larger
// expiries are rejected rather than wrapped.
const maxExpiryMillis = 253_402_300_799_000

// MockEnvelopeValidator accepts base64 encoded JSON payloads. It performs no
// cryptographic check and must stay out of the chain in strict production.
type MockEnvelopeValidator struct {
	now func() time.Time
}

// NewMockEnvelopeValidator builds the validator; a nil clock uses time.Now.
func NewMockEnvelopeValidator(now func() time.Time) *MockEnvelopeValidator {
	if now == nil {
		now = time.Now
	}
	return &MockEnvelopeValidator{now: now}
}

func (v *MockEnvelopeValidator) Name() string { return SourceMock }

func (v *MockEnvelopeValidator) Validate(token string) (*domain.CredentialEnvelope, error) {
	raw, err := decodeBase64(token)
	if err != nil {
		return nil, fmt.Errorf("mock: %w: %v", ErrTokenInvalid, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("mock: %w: %v", ErrTokenInvalid, err)
	}

	subjectID := firstIdentifier(payload, "id", "userId", "sub")
	email, _ := payload["email"].(string)
	role, _ := payload["role"].(string)
	if (subjectID == "" && email == "") || strings.TrimSpace(role) == "" {
		return nil, fmt.Errorf("mock: %w: identity and role required", ErrTokenInvalid)
	}

	envelope := &domain.CredentialEnvelope{
		SubjectID: subjectID,
		Email:     email,
		Role:      domain.Role(role),
		Source:    SourceMock,
	}

	if rawExp, ok := payload["exp"]; ok && rawExp != nil {
		exp, err := parseExpiry(rawExp)
		if err != nil {
			return nil, fmt.Errorf("mock: %w: %v", ErrTokenInvalid, err)
		}
		if exp.Before(v.now()) {
			return nil, fmt.Errorf("mock: %w", ErrTokenExpired)
		}
		envelope.ExpiresAt = &exp
	}
	return envelope, nil
}

func decodeBase64(token string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(token)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func firstIdentifier(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		switch val := payload[key].(type) {
		case string:
			if val = strings.TrimSpace(val); val != "" {
				return val
			}
		case json.Number:
			return val.String()
		}
	}
	return ""
}

func parseExpiry(raw any) (time.Time, error) {
	num, ok := raw.(json.Number)
	if !ok {
		return time.Time{}, fmt.Errorf("exp must be numeric, got %T", raw)
	}
	value, err := num.Int64()
	if err != nil {
		f, ferr := num.Float64()
		if ferr != nil || f != math.Trunc(f) || math.Abs(f) > maxExpiryMillis {
			return time.Time{}, fmt.Errorf("exp is not a whole timestamp: %s", num)
		}
		value = int64(f)
	}
	if value > maxExpiryMillis || value < -maxExpiryMillis {
		return time.Time{}, fmt.Errorf("exp out of range: %d", value)
	}
	if value > msThreshold {
		return time.UnixMilli(value), nil
	}
	return time.Unix(value, 0), nil
}
