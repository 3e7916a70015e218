// AngelaMos | 2026
// verifier.go

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/middleware"
)

// Verifier accepts a token only while its session is still live, so
// logout revokes tokens that have not expired yet.
type Verifier struct {
	tokens *JWTManager
	store  *Store
}

func NewVerifier(tokens *JWTManager, store *Store) *Verifier {
	return &Verifier{tokens: tokens, store: store}
}

func (v *Verifier) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := v.tokens.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	sess, err := v.store.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("verify session: %w", core.ErrTokenRevoked)
	}
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}

	if sess.AccountID != claims.AccountID {
		return nil, fmt.Errorf("verify session: %w", core.ErrTokenInvalid)
	}

	return claims, nil
}
