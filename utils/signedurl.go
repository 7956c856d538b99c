package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamgrid/config"
)

// Purposes a signed invitation URL can carry. A token minted for one
// purpose is rejected for the other.
const (
	PurposeInvitationAccept     = "invitation_accept"
	PurposeInvitationCreateUser = "invitation_create_user"
)

// Validity windows per link type.
const (
	AcceptLinkTTL     = 15 * time.Minute
	CreateUserLinkTTL = 30 * time.Minute
)

var ErrInvalidSignedURL = errors.New("invalid or expired signed url")

type signedURLClaims struct {
	InvitationID uint   `json:"invitation_id"`
	Purpose      string `json:"purpose"`
	jwt.RegisteredClaims
}

// SignInvitationURL mints a bearer-capability token for the invitation and
// returns the full action URL. Possession of an unexpired token is
// sufficient authorization to act on that invitation id.
func SignInvitationURL(invitationID uint, purpose string) (string, error) {
	var ttl time.Duration
	var path string
	switch purpose {
	case PurposeInvitationAccept:
		ttl = AcceptLinkTTL
		path = "/teams/invitations/accept"
	case PurposeInvitationCreateUser:
		ttl = CreateUserLinkTTL
		path = "/teams/invitations/user"
	default:
		return "", fmt.Errorf("unknown signed url purpose %q", purpose)
	}

	claims := &signedURLClaims{
		InvitationID: invitationID,
		Purpose:      purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.AppConfig.EncryptionKey))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%s?token=%s", config.AppConfig.AppURL, path, signed), nil
}

// VerifyInvitationToken checks signature, expiry and purpose, returning the
// invitation id the token was minted for. Every failure mode collapses to
// ErrInvalidSignedURL so callers cannot leak which check failed.
func VerifyInvitationToken(tokenString, purpose string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenString, &signedURLClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.EncryptionKey), nil
	})
	if err != nil {
		return 0, ErrInvalidSignedURL
	}

	claims, ok := token.Claims.(*signedURLClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidSignedURL
	}
	if claims.Purpose != purpose {
		return 0, ErrInvalidSignedURL
	}
	return claims.InvitationID, nil
}
