package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	traktAPIBaseURL = "https://api.trakt.tv"
	traktAPIVersion = "2"

	// Max items per page the API allows.
	pageLimit = 100
)

// Client handles Trakt API interactions for OAuth and data fetching
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

// DeviceCodeResponse represents the response from /oauth/device/code
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenResponse represents the response from /oauth/device/token
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// UserProfile represents basic Trakt user information
type UserProfile struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	VIP      bool   `json:"vip"`
	Private  bool   `json:"private"`
	IDs      struct {
		Slug string `json:"slug"`
	} `json:"ids"`
}

// IDs holds external identifiers for a media item
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
}

// Movie represents a Trakt movie
type Movie struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   IDs    `json:"ids"`
}

// HistoryItem represents an item from Trakt watch history
type HistoryItem struct {
	ID        int64     `json:"id"`
	WatchedAt time.Time `json:"watched_at"`
	Action    string    `json:"action"` // "watch" or "scrobble"
	Type      string    `json:"type"`   // "movie" for this endpoint
	Movie     *Movie    `json:"movie,omitempty"`
}

// RatingItem represents an item from the user's ratings list
type RatingItem struct {
	RatedAt time.Time `json:"rated_at"`
	Rating  int       `json:"rating"` // 1-10
	Type    string    `json:"type"`
	Movie   *Movie    `json:"movie,omitempty"`
}

// NewClient creates a new Trakt API client
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      traktAPIBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// HasCredentials checks if the client has valid credentials configured
func (c *Client) HasCredentials() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// UpdateCredentials updates the client credentials
func (c *Client) UpdateCredentials(clientID, clientSecret string) {
	c.clientID = clientID
	c.clientSecret = clientSecret
}

// setTraktHeaders adds required Trakt API headers to a request
func (c *Client) setTraktHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// GetDeviceCode initiates the device code OAuth flow
func (c *Client) GetDeviceCode() (*DeviceCodeResponse, error) {
	payload := map[string]string{
		"client_id": c.clientID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/oauth/device/code", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("trakt device code failed: %s - %s", resp.Status, string(respBody))
	}

	var deviceCode DeviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceCode); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &deviceCode, nil
}

// PollForToken polls for the OAuth token after user has authorized
// Returns nil, nil if still pending authorization
func (c *Client) PollForToken(deviceCode string) (*TokenResponse, error) {
	payload := map[string]string{
		"code":          deviceCode,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/oauth/device/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var token TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &token, nil
	case http.StatusBadRequest:
		// 400 means still waiting for user to authorize - this is expected during polling
		return nil, nil
	case http.StatusGone:
		return nil, fmt.Errorf("device code expired")
	case http.StatusConflict:
		return nil, fmt.Errorf("device code already used")
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("polling too fast, slow down")
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("trakt token poll failed: %s - %s", resp.Status, string(respBody))
	}
}

// RefreshAccessToken refreshes an expired access token
func (c *Client) RefreshAccessToken(refreshToken string) (*TokenResponse, error) {
	payload := map[string]string{
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"grant_type":    "refresh_token",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("trakt token refresh failed: %s - %s", resp.Status, string(respBody))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &token, nil
}

// GetUserProfile retrieves information about the authenticated user
func (c *Client) GetUserProfile(accessToken string) (*UserProfile, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("trakt user profile failed: %s - %s", resp.Status, string(respBody))
	}

	var profile UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &profile, nil
}

// GetMovieHistory retrieves one page of the user's movie watch history
// Returns items, total item count, and error
func (c *Client) GetMovieHistory(ctx context.Context, accessToken string, page, limit int) ([]HistoryItem, int, error) {
	url := fmt.Sprintf("%s/users/me/history/movies?page=%d&limit=%d", c.baseURL, page, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("trakt history failed: %s - %s", resp.Status, string(respBody))
	}

	// Get total count from headers
	totalCount := 0
	if totalHeader := resp.Header.Get("X-Pagination-Item-Count"); totalHeader != "" {
		totalCount, _ = strconv.Atoi(totalHeader)
	}

	var items []HistoryItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	return items, totalCount, nil
}

// GetAllMovieHistory retrieves the complete movie watch history (all pages)
func (c *Client) GetAllMovieHistory(ctx context.Context, accessToken string) ([]HistoryItem, error) {
	var allItems []HistoryItem
	page := 1

	for {
		items, totalCount, err := c.GetMovieHistory(ctx, accessToken, page, pageLimit)
		if err != nil {
			return nil, err
		}

		allItems = append(allItems, items...)

		// Check if we have all items
		if len(allItems) >= totalCount || len(items) == 0 {
			break
		}

		page++
	}

	return allItems, nil
}

// GetMovieRatings retrieves one page of the user's movie ratings
// Returns items, total item count, and error
func (c *Client) GetMovieRatings(ctx context.Context, accessToken string, page, limit int) ([]RatingItem, int, error) {
	url := fmt.Sprintf("%s/users/me/ratings/movies?page=%d&limit=%d", c.baseURL, page, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	c.setTraktHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("trakt api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("trakt ratings failed: %s - %s", resp.Status, string(respBody))
	}

	totalCount := 0
	if totalHeader := resp.Header.Get("X-Pagination-Item-Count"); totalHeader != "" {
		totalCount, _ = strconv.Atoi(totalHeader)
	}

	var items []RatingItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	return items, totalCount, nil
}

// GetAllMovieRatings retrieves the complete movie ratings list (all pages)
func (c *Client) GetAllMovieRatings(ctx context.Context, accessToken string) ([]RatingItem, error) {
	var allItems []RatingItem
	page := 1

	for {
		items, totalCount, err := c.GetMovieRatings(ctx, accessToken, page, pageLimit)
		if err != nil {
			return nil, err
		}

		allItems = append(allItems, items...)

		if len(allItems) >= totalCount || len(items) == 0 {
			break
		}

		page++
	}

	return allItems, nil
}
