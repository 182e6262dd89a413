package auth

import (
	"context"
	"fmt"

	"github.com/markwell-app/markwell/internal/config"
)

// NewVerifier builds the verifier selected by auth.provider
func NewVerifier(ctx context.Context, cfg *config.AuthConfig) (Verifier, error) {
	switch cfg.Provider {
	case "jwt", "":
		return NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry), nil
	case "oidc":
		return NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
	default:
		return nil, fmt.Errorf("unsupported auth provider: %s", cfg.Provider)
	}
}
