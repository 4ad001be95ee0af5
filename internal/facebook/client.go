// Package facebook is the minimal Graph API surface the aggregator needs:
// token exchange, page listing for the oauth callback and page event listing.
// It is not a general purpose client.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v23.0"

	requestTimeout = 10 * time.Second

	// Pagination safety stop for event listing
	maxEventPages = 10
)

type Client struct {
	BaseURL string

	appID     string
	appSecret string
	client    *http.Client
	logger    logger.Logger
}

func NewClient(appID string, appSecret string, l logger.Logger) *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		appID:     appID,
		appSecret: appSecret,
		client:    &http.Client{},
		logger:    l,
	}
}

// Token is an exchanged long-lived page token with its validity window.
type Token struct {
	Value     string
	ExpiresIn time.Duration
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// PageEvent is the raw Graph event shape before normalization.
type PageEvent struct {
	ID          string
	Name        string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	PlaceName   string
	CoverURL    string
}

// ExchangeForLongLivedToken trades a short-lived or near-expiry token for a
// long-lived one (facebook grants ~60 days).
func (c *Client) ExchangeForLongLivedToken(ctx context.Context, shortToken string) (Token, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)
	q.Set("fb_exchange_token", shortToken)

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.get(ctx, "/oauth/access_token?"+q.Encode(), &result); err != nil {
		return Token{}, err
	}

	if result.AccessToken == "" {
		return Token{}, fmt.Errorf("no access token in exchange response")
	}

	return Token{
		Value:     result.AccessToken,
		ExpiresIn: time.Duration(result.ExpiresIn) * time.Second,
	}, nil
}

// GetMe resolves the user a token belongs to, used to sanity check the oauth callback.
func (c *Client) GetMe(ctx context.Context, userToken string) (User, error) {
	q := url.Values{}
	q.Set("fields", "id,name")
	q.Set("access_token", userToken)

	var user User
	if err := c.get(ctx, "/me?"+q.Encode(), &user); err != nil {
		return user, err
	}

	if user.ID == "" || user.Name == "" {
		return user, fmt.Errorf("incomplete user data from facebook")
	}

	return user, nil
}

// ListPages returns the pages the user administers, each with its own page token.
func (c *Client) ListPages(ctx context.Context, userToken string) ([]Page, error) {
	q := url.Values{}
	q.Set("fields", "id,name,access_token")
	q.Set("access_token", userToken)

	var result struct {
		Data []Page `json:"data"`
	}
	if err := c.get(ctx, "/me/accounts?"+q.Encode(), &result); err != nil {
		return nil, err
	}

	return result.Data, nil
}

type rawEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Place       struct {
		Name string `json:"name"`
	} `json:"place"`
	Cover struct {
		Source string `json:"source"`
	} `json:"cover"`
}

// ListEvents fetches the page's events that start after 'since', following
// Graph pagination.
func (c *Client) ListEvents(ctx context.Context, pageID string, pageToken string, since time.Time) ([]PageEvent, error) {
	q := url.Values{}
	q.Set("fields", "id,name,description,start_time,end_time,place,cover")
	q.Set("since", strconv.FormatInt(since.Unix(), 10))
	q.Set("access_token", pageToken)

	path := "/" + pageID + "/events?" + q.Encode()

	var events []PageEvent
	for range maxEventPages {
		var result struct {
			Data   []rawEvent `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := c.get(ctx, path, &result); err != nil {
			return nil, err
		}

		for _, raw := range result.Data {
			ev, err := parseEvent(raw)
			if err != nil {
				c.logger.Warn("Skipping unparsable event", "page_id", pageID, "event_id", raw.ID, "error", err)
				continue
			}
			events = append(events, ev)
		}

		if result.Paging.Next == "" {
			break
		}
		// paging.next is absolute; strip the base back off
		path = trimBase(result.Paging.Next, c.BaseURL)
	}

	return events, nil
}

// Facebook serializes event times with a numeric zone offset.
const fbTimeLayout = "2006-01-02T15:04:05-0700"

func parseEvent(raw rawEvent) (PageEvent, error) {
	if raw.ID == "" || raw.StartTime == "" {
		return PageEvent{}, fmt.Errorf("event missing id or start_time")
	}

	start, err := time.Parse(fbTimeLayout, raw.StartTime)
	if err != nil {
		return PageEvent{}, fmt.Errorf("bad start_time %q: %w", raw.StartTime, err)
	}

	ev := PageEvent{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		StartTime:   start,
		PlaceName:   raw.Place.Name,
		CoverURL:    raw.Cover.Source,
	}

	if raw.EndTime != "" {
		end, err := time.Parse(fbTimeLayout, raw.EndTime)
		if err == nil {
			ev.EndTime = &end
		}
	}

	return ev, nil
}

func trimBase(next string, base string) string {
	if len(next) > len(base) && next[:len(base)] == base {
		return next[len(base):]
	}
	return next
}

// get performs a Graph GET with a bounded timeout and decodes either the
// payload or the Graph error envelope.
func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read graph response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error Error `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			c.logger.Warn("Graph API error",
				"code", envelope.Error.Code,
				"type", envelope.Error.Type,
				"message", envelope.Error.Message,
				"fbtrace_id", envelope.Error.FbtraceID,
			)
			return &envelope.Error
		}
		return fmt.Errorf("graph API responded %s", resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}

	return nil
}
