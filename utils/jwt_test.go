package utils

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"teamgrid/config"
	"teamgrid/models"
	"teamgrid/session"
)

// seedUserDB points config.DB at an in-memory database holding the given
// user, as RefreshTokens re-checks the account on every rotation.
func seedUserDB(t *testing.T, user *models.User) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	config.DB = db
}

func TestGenerateJWTTokenPairSharesSession(t *testing.T) {
	user := &models.User{Name: "Alice Smith", Email: "alice@example.com", TokenVersion: 3}
	user.ID = 12

	access, refresh, sessionID, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("generating token pair: %v", err)
	}
	if sessionID == "" {
		t.Fatal("session id must not be empty")
	}

	accessClaims, err := ParseJWTToken(access)
	if err != nil {
		t.Fatalf("parsing access token: %v", err)
	}
	refreshClaims, err := ParseJWTToken(refresh)
	if err != nil {
		t.Fatalf("parsing refresh token: %v", err)
	}

	if accessClaims.UserID != 12 || refreshClaims.UserID != 12 {
		t.Error("both tokens must carry the user id")
	}
	if accessClaims.SessionID != sessionID || refreshClaims.SessionID != sessionID {
		t.Error("both tokens must share the session id")
	}
	if accessClaims.TokenVersion != 3 {
		t.Errorf("token version = %d, want 3", accessClaims.TokenVersion)
	}
	if accessClaims.TokenType != TokenTypeAccess || refreshClaims.TokenType != TokenTypeRefresh {
		t.Errorf("token types = %s/%s, want %s/%s",
			accessClaims.TokenType, refreshClaims.TokenType, TokenTypeAccess, TokenTypeRefresh)
	}
	if accessClaims.Abilities != nil {
		t.Error("web session tokens must carry no ability list")
	}
}

func TestGenerateAPITokenCarriesAbilities(t *testing.T) {
	user := &models.User{Email: "alice@example.com"}
	user.ID = 12

	token, err := GenerateAPIToken(user, []string{"team:read", "contact:read"}, time.Hour)
	if err != nil {
		t.Fatalf("generating api token: %v", err)
	}

	claims, err := ParseJWTToken(token)
	if err != nil {
		t.Fatalf("parsing api token: %v", err)
	}
	if len(claims.Abilities) != 2 {
		t.Fatalf("abilities = %v, want 2 entries", claims.Abilities)
	}
	if claims.TokenType != TokenTypeAPI {
		t.Errorf("token type = %s, want %s", claims.TokenType, TokenTypeAPI)
	}
}

func TestRefreshTokensKeepSessionID(t *testing.T) {
	user := &models.User{Name: "Alice Smith", Email: "alice@example.com", IsActive: true}
	seedUserDB(t, user)

	_, refresh, sessionID, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("generating token pair: %v", err)
	}

	// Server-side session state keyed by the session id must survive the
	// rotation: a team switch made before the refresh stays in effect.
	store := session.NewMemoryStore()
	if err := store.Set(context.Background(), sessionID, session.CurrentTeam{TeamID: 42, TeamName: "Acme Team"}); err != nil {
		t.Fatalf("seeding session store: %v", err)
	}

	newAccess, newRefresh, err := RefreshTokens(refresh)
	if err != nil {
		t.Fatalf("refreshing tokens: %v", err)
	}

	accessClaims, err := ParseJWTToken(newAccess)
	if err != nil {
		t.Fatalf("parsing refreshed access token: %v", err)
	}
	refreshClaims, err := ParseJWTToken(newRefresh)
	if err != nil {
		t.Fatalf("parsing refreshed refresh token: %v", err)
	}

	if accessClaims.SessionID != sessionID {
		t.Errorf("refreshed access token session id = %s, want %s", accessClaims.SessionID, sessionID)
	}
	if refreshClaims.SessionID != sessionID {
		t.Errorf("refreshed refresh token session id = %s, want %s", refreshClaims.SessionID, sessionID)
	}

	current, err := store.Get(context.Background(), accessClaims.SessionID)
	if err != nil {
		t.Fatalf("current-team pointer lost after refresh: %v", err)
	}
	if current.TeamID != 42 {
		t.Errorf("current team = %d after refresh, want 42", current.TeamID)
	}
}

func TestRefreshTokensRejectAccessToken(t *testing.T) {
	user := &models.User{Name: "Alice Smith", Email: "alice@example.com", IsActive: true}
	seedUserDB(t, user)

	access, _, _, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("generating token pair: %v", err)
	}

	if _, _, err := RefreshTokens(access); err == nil {
		t.Fatal("an access token must not be accepted for refresh")
	}
}

func TestRefreshTokensRejectStaleTokenVersion(t *testing.T) {
	user := &models.User{Name: "Alice Smith", Email: "alice@example.com", IsActive: true}
	seedUserDB(t, user)

	_, refresh, _, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("generating token pair: %v", err)
	}

	// A password change bumps the version and invalidates old pairs
	user.TokenVersion++
	if err := config.DB.Save(user).Error; err != nil {
		t.Fatalf("bumping token version: %v", err)
	}

	if _, _, err := RefreshTokens(refresh); err == nil {
		t.Fatal("a stale token version must not be accepted for refresh")
	}
}

func TestParseJWTTokenRejectsTamperedToken(t *testing.T) {
	user := &models.User{Email: "alice@example.com"}
	user.ID = 12

	access, _, _, err := GenerateJWTToken(user)
	if err != nil {
		t.Fatalf("generating token pair: %v", err)
	}

	if _, err := ParseJWTToken(access + "x"); err == nil {
		t.Fatal("expected an error for a tampered token")
	}
}
