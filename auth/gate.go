//go:generate go run go.uber.org/mock/mockgen -source=gate.go -destination=../mocks/mock_gate.go -package=mocks
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"smartsolve/domain"
	"smartsolve/errors"
)

// CredentialVerifier is the identity collaborator's verify capability.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

// UserDirectory answers the not-banned check. Unknown users must yield errors.ErrNotFound.
type UserDirectory interface {
	IsUserActive(ctx context.Context, id domain.UserID) (bool, error)
}

const (
	RoleAdmin    = "admin"
	RoleProducer = "producer"
)

// Gate admits a credential only if it verifies and its user is active.
type Gate struct {
	verifier  CredentialVerifier
	directory UserDirectory
	log       *slog.Logger
}

func NewGate(verifier CredentialVerifier, directory UserDirectory, log *slog.Logger) *Gate {
	return &Gate{verifier: verifier, directory: directory, log: log}
}

func (g *Gate) Authenticate(ctx context.Context, credential string) (domain.UserID, error) {
	identity, err := g.Identify(ctx, credential)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}

// Identify runs the same checks as Authenticate and keeps the credential roles.
func (g *Gate) Identify(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return domain.Identity{}, fmt.Errorf("%w: credential is missing", errors.ErrUnauthenticated)
	}

	identity, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		g.log.Debug("Credential rejected", "error", err)
		if stderrors.Is(err, errors.ErrUnauthenticated) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}

	userID := identity.UserID
	active, err := g.directory.IsUserActive(ctx, userID)
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return domain.Identity{}, fmt.Errorf("%w: unknown user %s", errors.ErrUnauthenticated, userID)
	case err != nil:
		return domain.Identity{}, fmt.Errorf("user directory: %w", err)
	case !active:
		g.log.Info("Banned user refused", "user_id", userID)
		return domain.Identity{}, fmt.Errorf("%w: user %s is banned", errors.ErrForbidden, userID)
	}
	return identity, nil
}
