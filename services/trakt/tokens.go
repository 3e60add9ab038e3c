package trakt

import (
	"errors"
	"time"

	"github.com/louiscrc/trakt-to-letterboxd/config"
)

var ErrNotAuthenticated = errors.New("trakt account not authenticated, run the auth command first")

// TokenSource hands out a valid access token, refreshing and persisting it
// through the config manager when it is close to expiry.
type TokenSource struct {
	client        *Client
	configManager *config.Manager
}

// NewTokenSource creates a token source backed by the settings file.
func NewTokenSource(client *Client, configManager *config.Manager) *TokenSource {
	return &TokenSource{
		client:        client,
		configManager: configManager,
	}
}

// AccessToken returns a valid access token, refreshing if needed.
func (t *TokenSource) AccessToken() (string, error) {
	settings, err := t.configManager.Load()
	if err != nil {
		return "", err
	}

	if settings.Trakt.AccessToken == "" {
		return "", ErrNotAuthenticated
	}

	// Update client with current credentials
	t.client.UpdateCredentials(settings.Trakt.ClientID, settings.Trakt.ClientSecret)

	// Check if token needs refresh (within 1 hour of expiry)
	if settings.Trakt.ExpiresAt > 0 {
		expiresIn := settings.Trakt.ExpiresAt - time.Now().Unix()
		if expiresIn < 3600 && settings.Trakt.RefreshToken != "" {
			token, err := t.client.RefreshAccessToken(settings.Trakt.RefreshToken)
			if err != nil {
				return "", err
			}

			// Update settings with new tokens
			settings.Trakt.AccessToken = token.AccessToken
			settings.Trakt.RefreshToken = token.RefreshToken
			settings.Trakt.ExpiresAt = token.CreatedAt + int64(token.ExpiresIn)

			if err := t.configManager.Save(settings); err != nil {
				return "", err
			}

			return token.AccessToken, nil
		}
	}

	return settings.Trakt.AccessToken, nil
}
