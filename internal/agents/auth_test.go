package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey_HashesDontMatchPlaintext(t *testing.T) {
	plain, hashed, err := generateAPIKey()
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.NotEqual(t, plain, hashed)
	assert.Equal(t, hashed, HashAPIKey(plain))
}

func TestVerifyAPIKey(t *testing.T) {
	plain, hashed, err := generateAPIKey()
	require.NoError(t, err)
	assert.True(t, VerifyAPIKey(plain, hashed))
	assert.False(t, VerifyAPIKey("wrong-key", hashed))
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Minute)
	token, err := issuer.Issue("agent-1", "client-1")
	require.NoError(t, err)

	agentID, clientID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", agentID)
	assert.Equal(t, "client-1", clientID)
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Minute)
	token, err := issuer.Issue("agent-1", "client-1")
	require.NoError(t, err)

	_, _, err = issuer.Verify(token)
	require.Error(t, err)
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), time.Minute)
	token, err := issuer.Issue("agent-1", "client-1")
	require.NoError(t, err)

	other := NewTokenIssuer([]byte("secret-b"), time.Minute)
	_, _, err = other.Verify(token)
	require.Error(t, err)
}
