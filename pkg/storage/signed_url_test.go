package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("incident-1", "1700000000000_ab12.png")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, path, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "incident-1", subject)
	require.Equal(t, "1700000000000_ab12.png", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("incident-1", "file.pdf")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 1100)

	_, _, _, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("incident-1", "file.pdf")
	require.NoError(t, err)

	tampered := strings.Replace(token, "incident-1", "incident-2", 1)
	_, _, _, err = signer.Parse(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, _, err = NewSignedURLSigner("other", time.Hour).Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
