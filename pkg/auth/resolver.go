package auth

import (
	"context"
	"fmt"

	"github.com/HMasataka/chatrelay/pkg/domain"
)

// TokenResolver resolves session identities from signed tokens.
type TokenResolver struct {
	issuer *TokenIssuer
}

func NewTokenResolver(issuer *TokenIssuer) *TokenResolver {
	return &TokenResolver{issuer: issuer}
}

// Resolve implements domain.IdentityResolver.
func (r *TokenResolver) Resolve(_ context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.ErrInvalidCredential
	}

	claims, err := r.issuer.Verify(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	return claims.Identity(), nil
}
