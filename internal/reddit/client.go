// Package reddit fetches a user's public state from reddit's JSON endpoints.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"redtrack/internal/config"
	"redtrack/internal/model"
	"redtrack/internal/tracker"
)

const defaultBaseURL = "https://www.reddit.com"

// commentExcerptLen caps how much of a comment body is kept as its title.
const commentExcerptLen = 120

// Client fetches account snapshots from reddit's public JSON endpoints.
// It either returns a complete snapshot or an error; rate limiting and
// partial upstream results never leak past it as partial data.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	itemLimit  int
}

// NewClient creates a Client from config.
func NewClient(cfg config.RedditConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := cfg.ItemLimit
	if limit <= 0 {
		limit = 100
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		userAgent:  cfg.UserAgent,
		itemLimit:  limit,
	}
}

// NewClientWithBaseURL creates a Client pointed at an alternate endpoint.
// Used by tests.
func NewClientWithBaseURL(cfg config.RedditConfig, baseURL string) *Client {
	c := NewClient(cfg)
	c.baseURL = baseURL
	return c
}

// Fetch retrieves the account's current state: karma totals plus recent
// posts and comments with scores. ObservedAt is left zero; the caller stamps
// the poll time.
func (c *Client) Fetch(ctx context.Context, account string) (*model.Snapshot, error) {
	about, err := c.fetchAbout(ctx, account)
	if err != nil {
		return nil, err
	}

	posts, err := c.fetchListing(ctx, account, "submitted")
	if err != nil {
		return nil, err
	}
	comments, err := c.fetchListing(ctx, account, "comments")
	if err != nil {
		return nil, err
	}

	snap := &model.Snapshot{
		Account: account,
		Totals: model.KarmaTotals{
			Post:    about.LinkKarma,
			Comment: about.CommentKarma,
			Total:   about.TotalKarma,
		},
	}
	for _, p := range posts {
		snap.Items = append(snap.Items, model.ObservedItem{
			Type:      model.ItemTypePost,
			NaturalID: p.ID,
			Subreddit: p.Subreddit,
			Title:     p.Title,
			URL:       p.URL,
			Permalink: p.Permalink,
			CreatedAt: epochToTime(p.CreatedUTC),
			Score:     p.Score,
		})
	}
	for _, cm := range comments {
		snap.Items = append(snap.Items, model.ObservedItem{
			Type:      model.ItemTypeComment,
			NaturalID: cm.ID,
			Subreddit: cm.Subreddit,
			Title:     excerpt(cm.Body),
			Permalink: cm.Permalink,
			CreatedAt: epochToTime(cm.CreatedUTC),
			Score:     cm.Score,
		})
	}

	return snap, nil
}

type aboutData struct {
	LinkKarma    int64 `json:"link_karma"`
	CommentKarma int64 `json:"comment_karma"`
	TotalKarma   int64 `json:"total_karma"`
}

type listingChild struct {
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	Score      int64   `json:"score"`
}

func (c *Client) fetchAbout(ctx context.Context, account string) (*aboutData, error) {
	var payload struct {
		Data aboutData `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/user/%s/about.json", c.baseURL, url.PathEscape(account))
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetching about for %s: %w", account, err)
	}
	return &payload.Data, nil
}

func (c *Client) fetchListing(ctx context.Context, account, kind string) ([]listingChild, error) {
	var payload struct {
		Data struct {
			Children []struct {
				Data listingChild `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}

	endpoint := fmt.Sprintf("%s/user/%s/%s.json?limit=%s&sort=new",
		c.baseURL, url.PathEscape(account), kind, strconv.Itoa(c.itemLimit))
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetching %s for %s: %w", kind, account, err)
	}

	children := make([]listingChild, 0, len(payload.Data.Children))
	for _, child := range payload.Data.Children {
		children = append(children, child.Data)
	}
	return children, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func epochToTime(epoch float64) time.Time {
	return time.Unix(int64(epoch), 0).UTC()
}

// excerpt trims a comment body down to its leading runes.
func excerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= commentExcerptLen {
		return body
	}
	return string(runes[:commentExcerptLen])
}

// Compile-time check that Client implements tracker.Fetcher.
var _ tracker.Fetcher = (*Client)(nil)
