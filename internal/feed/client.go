// Package feed fetches bridge opening events from the remote opening feed.
//
// The feed serves a JSON array of openings per page. Pages are requested with
// limit/offset until a short page arrives or the page cap is reached. Records that
// cannot be decoded or fail validation are returned as RecordErrors next to the
// good events rather than failing the fetch.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// Config holds client settings
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	PageSize       int
	MaxPages       int
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client provides access to the opening feed
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Record is one opening as served by the feed
type Record struct {
	ID          string   `json:"id"`
	BridgeID    int      `json:"bridge_id"`
	BridgeName  string   `json:"bridge_name"`
	OpenTime    string   `json:"open_time"`
	CloseTime   *string  `json:"close_time"`
	MinutesOpen *float64 `json:"minutes_open"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
}

// RecordError describes a record that was skipped
type RecordError struct {
	Page  int
	Index int
	ID    string
	Err   error
}

func (e RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("page %d record %d (%s): %v", e.Page, e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("page %d record %d: %v", e.Page, e.Index, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// errClient marks a non-retryable response
var errClient = errors.New("client error")

// NewClient creates a new feed client
func NewClient(cfg Config) *Client {
	if cfg.PageSize < 1 {
		cfg.PageSize = 500
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// FetchEvents retrieves every opening at or after since. A zero since fetches
// from the beginning of the feed.
func (c *Client) FetchEvents(ctx context.Context, since time.Time) ([]models.Event, []RecordError, error) {
	var (
		events  []models.Event
		skipped []RecordError
	)

	for page := 0; page < c.cfg.MaxPages; page++ {
		raw, err := c.fetchPage(ctx, page*c.cfg.PageSize, since)
		if err != nil {
			return events, skipped, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		for i, msg := range raw {
			event, id, err := decodeRecord(msg)
			if err != nil {
				skipped = append(skipped, RecordError{Page: page, Index: i, ID: id, Err: err})
				continue
			}
			events = append(events, event)
		}

		if len(raw) < c.cfg.PageSize {
			break
		}
	}

	return events, skipped, nil
}

func (c *Client) fetchPage(ctx context.Context, offset int, since time.Time) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/openings?%s", c.cfg.BaseURL, q.Encode())

	resp, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode openings: %w", err)
	}
	return page, nil
}

// decodeRecord converts one raw record into a validated event
func decodeRecord(msg json.RawMessage) (models.Event, string, error) {
	var r Record
	if err := json.Unmarshal(msg, &r); err != nil {
		return models.Event{}, "", fmt.Errorf("failed to decode record: %w", err)
	}

	openTime, err := parseTime(r.OpenTime)
	if err != nil {
		return models.Event{}, r.ID, fmt.Errorf("invalid open_time: %w", err)
	}

	event := models.Event{
		ID:         r.ID,
		BridgeID:   r.BridgeID,
		BridgeName: strings.TrimSpace(r.BridgeName),
		OpenTime:   openTime,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
	}
	if r.CloseTime != nil && *r.CloseTime != "" {
		closeTime, err := parseTime(*r.CloseTime)
		if err != nil {
			return models.Event{}, r.ID, fmt.Errorf("invalid close_time: %w", err)
		}
		event.CloseTime = &closeTime
	}
	if r.MinutesOpen != nil {
		event.DurationMinutes = *r.MinutesOpen
	}

	if err := event.Validate(); err != nil {
		return models.Event{}, r.ID, err
	}
	return event, r.ID, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, endpoint string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			// Linear backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.cfg.RetryDelayBase):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %d", errClient, resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
