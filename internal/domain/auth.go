package domain

import "time"

// CredentialEnvelope is the validated outcome of token checking.
type CredentialEnvelope struct {
	SubjectID string
	Email     string
	Role      Role
	ExpiresAt *time.Time
	// Source names the validator that accepted the token.
	Source string
}

// Identity is attached to a request once authentication succeeds. It lives
// for a single request and is never shared.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Synthetic bool   `json:"synthetic,omitempty"`
}
