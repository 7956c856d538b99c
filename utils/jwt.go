package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamgrid/config"
	"teamgrid/models"
)

// Token kinds carried in the token_type claim. The refresh endpoint only
// accepts refresh tokens; the auth middleware never accepts them.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeAPI     = "api"
)

type Claims struct {
	UserID       uint     `json:"user_id"`
	SessionID    string   `json:"session_id"`
	TokenType    string   `json:"token_type"`
	TokenVersion int      `json:"token_version"`
	Abilities    []string `json:"abilities"` // nil for unrestricted web sessions
	jwt.RegisteredClaims
}

// GenerateSessionID returns a random identifier binding a token pair to its
// server-side session state.
func GenerateSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// GenerateJWTToken issues an access/refresh token pair sharing one fresh
// session id.
func GenerateJWTToken(user *models.User) (string, string, string, error) {
	sessionID, err := GenerateSessionID()
	if err != nil {
		return "", "", "", err
	}
	access, refresh, err := generateTokenPair(user, sessionID)
	if err != nil {
		return "", "", "", err
	}
	return access, refresh, sessionID, nil
}

// generateTokenPair mints an access/refresh pair bound to the given session
// id. Refreshing reuses the id so server-side session state (the current
// team pointer) survives the rotation.
func generateTokenPair(user *models.User, sessionID string) (string, string, error) {
	// Access token (15 minutes expiry)
	accessClaims := &Claims{
		UserID:       user.ID,
		SessionID:    sessionID,
		TokenType:    TokenTypeAccess,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString([]byte(config.AppConfig.EncryptionKey))
	if err != nil {
		return "", "", err
	}

	// Refresh token (7 days expiry)
	refreshClaims := &Claims{
		UserID:       user.ID,
		SessionID:    sessionID,
		TokenType:    TokenTypeRefresh,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString([]byte(config.AppConfig.EncryptionKey))
	if err != nil {
		return "", "", err
	}

	return accessTokenString, refreshTokenString, nil
}

// GenerateAPIToken issues a long-lived token restricted to the given ability
// list. The holder's role permissions still apply; the effective grant is
// the intersection of both.
func GenerateAPIToken(user *models.User, abilities []string, lifetime time.Duration) (string, error) {
	sessionID, err := GenerateSessionID()
	if err != nil {
		return "", err
	}
	if abilities == nil {
		abilities = []string{}
	}

	claims := &Claims{
		UserID:       user.ID,
		SessionID:    sessionID,
		TokenType:    TokenTypeAPI,
		TokenVersion: user.TokenVersion,
		Abilities:    abilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.EncryptionKey))
}

func ParseJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.EncryptionKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// RefreshTokens validates the refresh token and issues a new pair bound to
// the same session id, so the caller's current-team pointer is untouched.
func RefreshTokens(refreshToken string) (string, string, error) {
	claims, err := ParseJWTToken(refreshToken)
	if err != nil {
		return "", "", err
	}

	if claims.TokenType != TokenTypeRefresh {
		return "", "", errors.New("not a refresh token")
	}
	if time.Until(claims.ExpiresAt.Time) <= 0 {
		return "", "", errors.New("refresh token expired")
	}

	var user models.User
	if err := config.DB.First(&user, claims.UserID).Error; err != nil {
		return "", "", errors.New("user not found")
	}
	if claims.TokenVersion != user.TokenVersion {
		return "", "", errors.New("invalid token version")
	}

	return generateTokenPair(&user, claims.SessionID)
}
