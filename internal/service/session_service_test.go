package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/asterism/internal/models"
)

func TestSessionIssueAndValidate(t *testing.T) {
	svc, err := NewSessionService("secret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := svc.Issue("prof")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "prof", claims.Username)
}

func TestSessionRejectsOtherSecret(t *testing.T) {
	a, _ := NewSessionService("secret-a", time.Hour)
	b, _ := NewSessionService("secret-b", time.Hour)

	token, _, err := a.Issue("prof")
	require.NoError(t, err)
	_, err = b.Validate(token)
	assert.Error(t, err)
}

func TestSessionExpires(t *testing.T) {
	svc, _ := NewSessionService("secret", time.Minute)
	token, _, err := svc.Issue("prof")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestSessionRejectsRawSecretSignature(t *testing.T) {
	svc, _ := NewSessionService("secret", time.Hour)
	claims := &models.SessionClaims{
		Username: "mallory",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Validate(forged)
	assert.Error(t, err)
}

func TestSessionRequiresUsername(t *testing.T) {
	svc, _ := NewSessionService("secret", time.Hour)
	_, _, err := svc.Issue("")
	assert.Error(t, err)

	_, err = NewSessionService("", time.Hour)
	assert.Error(t, err)
}
