package trakt

import (
	"context"

	"github.com/louiscrc/trakt-to-letterboxd/models"
)

// Fetcher exposes the Trakt client through the shapes the reconciliation
// engine consumes. Both fetch calls enumerate every page before returning;
// the engine never sees a partial history.
type Fetcher struct {
	client *Client
	tokens *TokenSource
}

// NewFetcher creates a fetcher for the authenticated user.
func NewFetcher(client *Client, tokens *TokenSource) *Fetcher {
	return &Fetcher{client: client, tokens: tokens}
}

// FetchWatchHistory returns the full movie watch history.
func (f *Fetcher) FetchWatchHistory(ctx context.Context) ([]models.WatchEvent, error) {
	accessToken, err := f.tokens.AccessToken()
	if err != nil {
		return nil, err
	}

	items, err := f.client.GetAllMovieHistory(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	events := make([]models.WatchEvent, 0, len(items))
	for _, item := range items {
		if item.Movie == nil {
			continue
		}
		events = append(events, models.WatchEvent{
			IMDBID:    item.Movie.IDs.IMDB,
			Title:     item.Movie.Title,
			Year:      item.Movie.Year,
			WatchedAt: item.WatchedAt,
		})
	}
	return events, nil
}

// FetchRatings returns the full movie ratings list.
func (f *Fetcher) FetchRatings(ctx context.Context) ([]models.RatingEvent, error) {
	accessToken, err := f.tokens.AccessToken()
	if err != nil {
		return nil, err
	}

	items, err := f.client.GetAllMovieRatings(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	events := make([]models.RatingEvent, 0, len(items))
	for _, item := range items {
		if item.Movie == nil {
			continue
		}
		events = append(events, models.RatingEvent{
			IMDBID:  item.Movie.IDs.IMDB,
			Rating:  item.Rating,
			RatedAt: item.RatedAt,
		})
	}
	return events, nil
}
