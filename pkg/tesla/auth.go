package tesla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tigerroll/solarback/pkg/support/exception"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

const authModule = "auth"

// expiryBuffer is subtracted from the token lifetime so a token nearing
// expiry is refreshed proactively instead of failing mid-request.
const expiryBuffer = 2 * time.Minute

// Token is the versioned credential record persisted in the local JSON store.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	CreatedAt    int64  `json:"created_at"`
}

// ExpiresAt returns the absolute expiry instant of the access token.
func (t Token) ExpiresAt() time.Time {
	return time.Unix(t.CreatedAt, 0).Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Expired reports whether the access token is expired or inside the safety buffer.
func (t Token) Expired(now time.Time) bool {
	return !now.Add(expiryBuffer).Before(t.ExpiresAt())
}

// CredentialProvider supplies a valid bearer token and supports a forced
// refresh for the client's one-shot 401 handling.
type CredentialProvider interface {
	// AccessToken returns a currently valid access token, refreshing
	// proactively when the stored token is expired.
	AccessToken(ctx context.Context) (string, error)
	// Refresh exchanges the stored refresh token for a new token pair and
	// persists it. It fails with an AuthError when the refresh credential
	// is absent or rejected.
	Refresh(ctx context.Context) error
}

// FileCredentialProvider is a CredentialProvider backed by a local JSON
// credential store. The store is read at startup and rewritten after every
// refresh so subsequent runs skip interactive login.
type FileCredentialProvider struct {
	storePath  string
	authURL    string
	clientID   string
	httpClient *http.Client
	clock      func() time.Time

	mu    sync.Mutex
	token *Token
}

// StorePathForAccount derives the credential store file for one account from
// the configured store path. The account name replaces the configured file
// name, so each account keeps its own tokens in the same directory.
func StorePathForAccount(configured, account string) string {
	if account == "" {
		return configured
	}
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, account)
	return filepath.Join(filepath.Dir(configured), safe+".json")
}

// NewFileCredentialProvider creates a provider over the given store path.
//
// Parameters:
//
//	storePath: The path of the JSON credential store.
//	authURL: The OAuth token endpoint used for non-interactive refresh.
//	clientID: The OAuth client identifier.
//	httpClient: The HTTP client used for the refresh call.
func NewFileCredentialProvider(storePath, authURL, clientID string, httpClient *http.Client) *FileCredentialProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FileCredentialProvider{
		storePath:  storePath,
		authURL:    authURL,
		clientID:   clientID,
		httpClient: httpClient,
		clock:      time.Now,
	}
}

// AccessToken returns a valid access token, loading the store on first use
// and refreshing when the stored token is expired.
func (p *FileCredentialProvider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		token, err := p.load()
		if err != nil {
			return "", err
		}
		p.token = token
	}

	if p.token.Expired(p.clock()) {
		logger.Debugf("Stored access token is expired or near expiry. Refreshing.")
		if err := p.refreshLocked(ctx); err != nil {
			return "", err
		}
	}

	return p.token.AccessToken, nil
}

// Refresh forces a token refresh regardless of the stored expiry.
func (p *FileCredentialProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		token, err := p.load()
		if err != nil {
			return err
		}
		p.token = token
	}
	return p.refreshLocked(ctx)
}

// load reads the credential store. An absent or malformed store is an
// AuthError: non-interactive runs cannot bootstrap credentials.
func (p *FileCredentialProvider) load() (*Token, error) {
	data, err := os.ReadFile(p.storePath)
	if err != nil {
		return nil, exception.NewAuthError(authModule, fmt.Sprintf("credential store %s is not readable; interactive login is required first", p.storePath), err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, exception.NewAuthError(authModule, fmt.Sprintf("credential store %s is malformed", p.storePath), err)
	}
	if token.RefreshToken == "" {
		return nil, exception.NewAuthError(authModule, fmt.Sprintf("credential store %s holds no refresh token", p.storePath), nil)
	}
	return &token, nil
}

// refreshLocked exchanges the refresh token and persists the new record.
// Callers must hold p.mu.
func (p *FileCredentialProvider) refreshLocked(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     p.clientID,
		"refresh_token": p.token.RefreshToken,
		"scope":         "openid email offline_access",
	})
	if err != nil {
		return exception.NewAuthError(authModule, "failed to encode refresh request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, bytes.NewReader(body))
	if err != nil {
		return exception.NewAuthError(authModule, "failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return exception.NewAuthError(authModule, "token refresh request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return exception.NewAuthError(authModule, fmt.Sprintf("token endpoint rejected refresh with status %d", resp.StatusCode), nil)
	}

	var refreshed Token
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return exception.NewAuthError(authModule, "failed to decode refresh response", err)
	}
	if refreshed.AccessToken == "" {
		return exception.NewAuthError(authModule, "token endpoint returned no access token", nil)
	}
	if refreshed.RefreshToken == "" {
		// Some token endpoints omit the refresh token when it is unchanged.
		refreshed.RefreshToken = p.token.RefreshToken
	}
	refreshed.CreatedAt = p.clock().Unix()

	if err := p.persist(&refreshed); err != nil {
		return err
	}
	p.token = &refreshed
	logger.Infof("Access token refreshed. Valid until %s.", refreshed.ExpiresAt().Format(time.RFC3339))
	return nil
}

// persist rewrites the credential store with the updated record.
func (p *FileCredentialProvider) persist(token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return exception.NewAuthError(authModule, "failed to encode credential store", err)
	}
	if err := os.WriteFile(p.storePath, data, 0o600); err != nil {
		return exception.NewAuthError(authModule, fmt.Sprintf("failed to rewrite credential store %s", p.storePath), err)
	}
	return nil
}

// Verify that FileCredentialProvider implements the CredentialProvider interface.
var _ CredentialProvider = (*FileCredentialProvider)(nil)
