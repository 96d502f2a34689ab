package main

import (
	"bytes"
	"strings"
	"testing"

	"smartsolve/auth"
	"smartsolve/domain"

	"github.com/stretchr/testify/require"
)

func TestHubctl_User_Lifecycle(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("HUBCTL_COLOURS", "false")

	var out bytes.Buffer
	req.NoError(run([]string{"user", "add", "alice", "-username", "Alice"}, &out))
	req.NoError(run([]string{"user", "add", "bob"}, &out))
	req.NoError(run([]string{"user", "ban", "bob"}, &out))

	out.Reset()
	req.NoError(run([]string{"user", "list"}, &out))
	req.Contains(out.String(), "alice")
	req.Contains(out.String(), "banned")
	req.Contains(out.String(), "2 users, 1 active")
}

func TestHubctl_Token_Is_Accepted_By_The_Verifier(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ISSUER", "smartsolve")

	var out bytes.Buffer
	req.NoError(run([]string{"token", "alice", "-ttl", "1h", "-roles", "user,producer"}, &out))

	identity, err := auth.NewJWTVerifier("secret", "smartsolve").Verify(t.Context(), strings.TrimSpace(out.String()))
	req.NoError(err)
	req.Equal(domain.UserID("alice"), identity.UserID)
	req.True(identity.HasAnyRole(auth.RoleProducer))
}

func TestHubctl_Unknown_Command(t *testing.T) {
	require.Error(t, run([]string{"reboot"}, &bytes.Buffer{}))
}
