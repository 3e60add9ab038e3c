package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(server *httptest.Server) *Client {
	client := NewClient("test-client-id", "test-client-secret")
	client.SetBaseURL(server.URL)
	return client
}

func historyPage(start, count int) []HistoryItem {
	items := make([]HistoryItem, 0, count)
	for i := 0; i < count; i++ {
		n := start + i
		items = append(items, HistoryItem{
			ID:   int64(n),
			Type: "movie",
			Movie: &Movie{
				Title: fmt.Sprintf("Movie %d", n),
				Year:  2000 + n,
				IDs:   IDs{IMDB: fmt.Sprintf("tt%07d", n)},
			},
		})
	}
	return items
}

func TestGetMovieHistorySetsRequiredHeaders(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("X-Pagination-Item-Count", "0")
		json.NewEncoder(w).Encode([]HistoryItem{})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, _, err := client.GetMovieHistory(context.Background(), "token-123", 1, 100)
	if err != nil {
		t.Fatalf("GetMovieHistory failed: %v", err)
	}

	if got := gotHeaders.Get("trakt-api-key"); got != "test-client-id" {
		t.Errorf("expected trakt-api-key header, got %q", got)
	}
	if got := gotHeaders.Get("trakt-api-version"); got != "2" {
		t.Errorf("expected trakt-api-version 2, got %q", got)
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer token-123" {
		t.Errorf("expected bearer token, got %q", got)
	}
}

func TestGetAllMovieHistoryPaginates(t *testing.T) {
	var requestedPages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		requestedPages = append(requestedPages, page)

		w.Header().Set("X-Pagination-Item-Count", "150")
		switch page {
		case "1":
			json.NewEncoder(w).Encode(historyPage(1, 100))
		case "2":
			json.NewEncoder(w).Encode(historyPage(101, 50))
		default:
			t.Errorf("unexpected page requested: %s", page)
			json.NewEncoder(w).Encode([]HistoryItem{})
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	items, err := client.GetAllMovieHistory(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetAllMovieHistory failed: %v", err)
	}

	if len(items) != 150 {
		t.Errorf("expected 150 items across pages, got %d", len(items))
	}
	if len(requestedPages) != 2 {
		t.Errorf("expected 2 page requests, got %v", requestedPages)
	}
}

func TestGetAllMovieHistoryStopsOnEmptyPage(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Lying total count; the empty body must still terminate the loop.
		w.Header().Set("X-Pagination-Item-Count", "500")
		json.NewEncoder(w).Encode([]HistoryItem{})
	}))
	defer server.Close()

	client := newTestClient(server)
	items, err := client.GetAllMovieHistory(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetAllMovieHistory failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
	if calls != 1 {
		t.Errorf("expected a single request, got %d", calls)
	}
}

func TestGetAllMovieRatingsPaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Pagination-Item-Count", "2")
		json.NewEncoder(w).Encode([]RatingItem{
			{Rating: 8, Type: "movie", Movie: &Movie{Title: "Heat", IDs: IDs{IMDB: "tt0113277"}}},
			{Rating: 6, Type: "movie", Movie: &Movie{Title: "Ronin", IDs: IDs{IMDB: "tt0122690"}}},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	items, err := client.GetAllMovieRatings(context.Background(), "token")
	if err != nil {
		t.Fatalf("GetAllMovieRatings failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 ratings, got %d", len(items))
	}
	if items[0].Movie.IDs.IMDB != "tt0113277" || items[0].Rating != 8 {
		t.Errorf("unexpected first rating: %+v", items[0])
	}
}

func TestGetMovieHistoryNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, _, err := client.GetMovieHistory(context.Background(), "bad-token", 1, 100)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestPollForTokenPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server)
	token, err := client.PollForToken("device-code")
	if err != nil {
		t.Fatalf("pending poll should not error: %v", err)
	}
	if token != nil {
		t.Errorf("expected nil token while pending, got %+v", token)
	}
}

func TestPollForTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["code"] != "device-code" {
			t.Errorf("expected device code in payload, got %v", payload)
		}
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			ExpiresIn:    7200,
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	token, err := client.PollForToken("device-code")
	if err != nil {
		t.Fatalf("PollForToken failed: %v", err)
	}
	if token == nil || token.AccessToken != "access-123" {
		t.Errorf("unexpected token: %+v", token)
	}
}

func TestPollForTokenExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.PollForToken("device-code")
	if err == nil {
		t.Fatal("expected error for expired device code")
	}
}

func TestGetDeviceCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/device/code" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(DeviceCodeResponse{
			DeviceCode:      "dc",
			UserCode:        "ABCD1234",
			VerificationURL: "https://trakt.tv/activate",
			ExpiresIn:       600,
			Interval:        5,
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	code, err := client.GetDeviceCode()
	if err != nil {
		t.Fatalf("GetDeviceCode failed: %v", err)
	}
	if code.UserCode != "ABCD1234" || code.Interval != 5 {
		t.Errorf("unexpected device code response: %+v", code)
	}
}

func TestRefreshAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["grant_type"] != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %v", payload)
		}
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh"})
	}))
	defer server.Close()

	client := newTestClient(server)
	token, err := client.RefreshAccessToken("old-refresh")
	if err != nil {
		t.Fatalf("RefreshAccessToken failed: %v", err)
	}
	if token.AccessToken != "new-access" {
		t.Errorf("unexpected token: %+v", token)
	}
}
