package tesla

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tigerroll/solarback/pkg/support/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTokenStore(t *testing.T, dir string, token Token) string {
	t.Helper()
	data, err := json.Marshal(token)
	require.NoError(t, err)
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestAccessTokenFromValidStore(t *testing.T) {
	now := time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC)
	path := writeTokenStore(t, t.TempDir(), Token{
		AccessToken:  "valid-token",
		RefreshToken: "refresh-token",
		ExpiresIn:    28800,
		CreatedAt:    now.Unix(),
	})

	provider := NewFileCredentialProvider(path, "http://unused", "client-id", nil)
	provider.clock = func() time.Time { return now }

	token, err := provider.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "valid-token", token)
}

func TestAccessTokenMissingStoreIsAuthError(t *testing.T) {
	provider := NewFileCredentialProvider(filepath.Join(t.TempDir(), "absent.json"), "http://unused", "client-id", nil)

	_, err := provider.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsAuthError(err))
}

func TestAccessTokenMalformedStoreIsAuthError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	provider := NewFileCredentialProvider(path, "http://unused", "client-id", nil)
	_, err := provider.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsAuthError(err))
}

func TestAccessTokenStoreWithoutRefreshTokenIsAuthError(t *testing.T) {
	path := writeTokenStore(t, t.TempDir(), Token{AccessToken: "only-access"})

	provider := NewFileCredentialProvider(path, "http://unused", "client-id", nil)
	_, err := provider.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsAuthError(err))
}

func TestAccessTokenRefreshesExpiredTokenAndPersists(t *testing.T) {
	now := time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC)
	var gotGrant, gotRefresh string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotGrant = body["grant_type"]
		gotRefresh = body["refresh_token"]
		json.NewEncoder(w).Encode(Token{
			AccessToken:  "fresh-access",
			RefreshToken: "fresh-refresh",
			ExpiresIn:    28800,
		})
	}))
	defer server.Close()

	path := writeTokenStore(t, t.TempDir(), Token{
		AccessToken:  "stale-access",
		RefreshToken: "stale-refresh",
		ExpiresIn:    3600,
		CreatedAt:    now.Add(-2 * time.Hour).Unix(),
	})

	provider := NewFileCredentialProvider(path, server.URL, "client-id", nil)
	provider.clock = func() time.Time { return now }

	token, err := provider.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.Equal(t, "refresh_token", gotGrant)
	assert.Equal(t, "stale-refresh", gotRefresh)

	// The store was rewritten so the next run skips interactive login.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var persisted Token
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, "fresh-access", persisted.AccessToken)
	assert.Equal(t, "fresh-refresh", persisted.RefreshToken)
	assert.Equal(t, now.Unix(), persisted.CreatedAt)
}

func TestAccessTokenRefreshesInsideExpiryBuffer(t *testing.T) {
	now := time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Token{AccessToken: "fresh", RefreshToken: "r", ExpiresIn: 28800})
	}))
	defer server.Close()

	// The token has a minute of nominal lifetime left, inside the safety buffer.
	path := writeTokenStore(t, t.TempDir(), Token{
		AccessToken:  "nearly-expired",
		RefreshToken: "refresh-token",
		ExpiresIn:    3600,
		CreatedAt:    now.Add(-59 * time.Minute).Unix(),
	})

	provider := NewFileCredentialProvider(path, server.URL, "client-id", nil)
	provider.clock = func() time.Time { return now }

	token, err := provider.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestRefreshRejectedIsAuthError(t *testing.T) {
	now := time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	path := writeTokenStore(t, t.TempDir(), Token{
		AccessToken:  "access",
		RefreshToken: "revoked",
		ExpiresIn:    28800,
		CreatedAt:    now.Unix(),
	})

	provider := NewFileCredentialProvider(path, server.URL, "client-id", nil)
	provider.clock = func() time.Time { return now }

	err := provider.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsAuthError(err))
}

func TestRefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	now := time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Some token endpoints omit the refresh token when it is unchanged.
		json.NewEncoder(w).Encode(Token{AccessToken: "fresh-access", ExpiresIn: 28800})
	}))
	defer server.Close()

	path := writeTokenStore(t, t.TempDir(), Token{
		AccessToken:  "access",
		RefreshToken: "keep-me",
		ExpiresIn:    28800,
		CreatedAt:    now.Unix(),
	})

	provider := NewFileCredentialProvider(path, server.URL, "client-id", nil)
	provider.clock = func() time.Time { return now }

	require.NoError(t, provider.Refresh(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var persisted Token
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, "keep-me", persisted.RefreshToken)
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2023, 5, 23, 12, 0, 0, 0, time.UTC)
	token := Token{ExpiresIn: 3600, CreatedAt: now.Unix()}

	assert.False(t, token.Expired(now))
	assert.False(t, token.Expired(now.Add(57*time.Minute)))
	// Inside the two minute safety buffer.
	assert.True(t, token.Expired(now.Add(58*time.Minute)))
	assert.True(t, token.Expired(now.Add(2*time.Hour)))
}

func TestStorePathForAccount(t *testing.T) {
	assert.Equal(t, filepath.Join("/var/lib/solarback", "user@example.com.json"),
		StorePathForAccount("/var/lib/solarback/cache.json", "user@example.com"))

	// An empty account keeps the configured path untouched.
	assert.Equal(t, "cache.json", StorePathForAccount("cache.json", ""))

	// Path separators in the account never escape the store directory.
	assert.Equal(t, filepath.Join("store", ".._.._evil.json"),
		StorePathForAccount("store/cache.json", "../../evil"))
}
