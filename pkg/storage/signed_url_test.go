package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("rec-42", "register_INW-26-0042.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	scope, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "rec-42", scope)
	require.Equal(t, "register_INW-26-0042.csv", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("rec-42", "register_INW-26-0042.csv")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	// Cleanup resolves expired tokens to their paths.
	scope, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "rec-42", scope)
	require.Equal(t, "register_INW-26-0042.csv", path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("rec-42", "register_INW-26-0042.csv")
	require.NoError(t, err)

	other, _, err := NewSignedURLSigner("different-secret", time.Hour).
		Generate("rec-42", "register_INW-26-0042.csv")
	require.NoError(t, err)
	_, _, _, err = signer.Parse(other, false)
	require.Error(t, err)

	body, _, _ := strings.Cut(token, ".")
	_, _, _, err = signer.Parse(body+".forged-signature", false)
	require.Error(t, err)

	_, _, _, err = signer.Parse("not-a-token", false)
	require.Error(t, err)
}
