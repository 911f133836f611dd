package auth

import (
	"strings"

	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/domain"
)

// FallbackReason is the authentication failure a demo grant would replace.
type FallbackReason string

const (
	ReasonMissingToken FallbackReason = "missing_token"
	ReasonInvalidToken FallbackReason = "invalid_token"
)

// DemoPolicy decides whether an unauthenticated request may proceed with a
// synthetic administrator identity.
type DemoPolicy struct {
	StrictProduction  bool
	ProductionEnv     bool
	DemoMarkerPresent bool
	PathPrefixes      []string
	OnMissingToken    bool
	OnInvalidToken    bool
	Identity          domain.Identity
}

// NewDemoPolicy snapshots the fallback switches from configuration.
//
// The "not production" trigger follows APP_ENV, not AUTH_STRICT_PRODUCTION.
// With the default config the two agree. A production deployment that sets
// AUTH_STRICT_PRODUCTION=false still answers TOKEN_MISSING outside the demo
// path prefixes unless a demo marker is present.
func NewDemoPolicy(cfg config.AuthConfig) DemoPolicy {
	return DemoPolicy{
		StrictProduction:  cfg.StrictProduction,
		ProductionEnv:     cfg.ProductionEnv,
		DemoMarkerPresent: cfg.DemoMarkerPresent,
		PathPrefixes:      append([]string(nil), cfg.DemoPathPrefixes...),
		OnMissingToken:    cfg.DemoOnMissingToken,
		OnInvalidToken:    cfg.DemoOnInvalidToken,
		Identity: domain.Identity{
			ID:        cfg.DemoUserID,
			Email:     cfg.DemoEmail,
			Role:      domain.RoleAdmin,
			Synthetic: true,
		},
	}
}

// Decide returns true when the request should continue as the demo identity.
// Strict production always refuses. Otherwise the reason must be enabled and
// at least one trigger must hold: a demo marker, an allow-listed path prefix,
// or a non-production environment.
func (p DemoPolicy) Decide(path string, reason FallbackReason) bool {
	if p.StrictProduction {
		return false
	}

	switch reason {
	case ReasonMissingToken:
		if !p.OnMissingToken {
			return false
		}
	case ReasonInvalidToken:
		if !p.OnInvalidToken {
			return false
		}
	default:
		return false
	}

	return p.DemoMarkerPresent || p.matchesPath(path) || !p.ProductionEnv
}

// SyntheticIdentity returns a fresh copy of the demo identity.
func (p DemoPolicy) SyntheticIdentity() *domain.Identity {
	identity := p.Identity
	return &identity
}

func (p DemoPolicy) matchesPath(path string) bool {
	for _, prefix := range p.PathPrefixes {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
