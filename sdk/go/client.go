package corsairsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"corsair/internal/domain"
)

// Client is a minimal Corsair worker HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration

	// Read retry policy. Applies to GETs only; mutating calls are
	// never retried. A 404 is returned immediately.
	RetryAttempts int
	RetryDelay    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:       baseURL,
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges a wallet address for a bearer token and installs it
// on the client.
func (c *Client) Login(ctx context.Context, wallet string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "auth/token", map[string]any{"wallet": wallet}, &resp)
	if err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// InitiateMission submits one staged mission group and returns its job.
func (c *Client) InitiateMission(ctx context.Context, am domain.ActiveMission) (domain.Job, error) {
	body := map[string]any{
		"missionPath": am.MissionPath,
		"nfts":        am.NFTIDs,
	}
	var resp domain.Job
	err := c.do(ctx, http.MethodPost, "missions/initiate", body, &resp)
	if err != nil {
		return domain.Job{}, err
	}
	resp.SubmittedAt = time.Now()
	return resp, nil
}

// InitiateArena submits an arena entry; same job contract as missions.
func (c *Client) InitiateArena(ctx context.Context, nftIDs []string) (domain.Job, error) {
	var resp domain.Job
	err := c.do(ctx, http.MethodPost, "arena/initiate", map[string]any{"nfts": nftIDs}, &resp)
	if err != nil {
		return domain.Job{}, err
	}
	resp.SubmittedAt = time.Now()
	return resp, nil
}

// ActiveMissions lists missions currently in progress for the user.
func (c *Client) ActiveMissions(ctx context.Context) ([]domain.ActiveMission, error) {
	var resp struct {
		Items []domain.ActiveMission `json:"items"`
	}
	err := c.get(ctx, "missions/active-missions/", &resp)
	return resp.Items, err
}

// MissionStats fetches live stats for all missions of one kind.
func (c *Client) MissionStats(ctx context.Context, kind domain.MissionKind) ([]domain.MissionStats, error) {
	var resp struct {
		Items []domain.MissionStats `json:"items"`
	}
	endpoint := fmt.Sprintf("missions/stats?kind=%s", url.QueryEscape(string(kind)))
	err := c.get(ctx, endpoint, &resp)
	return resp.Items, err
}

// NFTs returns the caller's inventory snapshot.
func (c *Client) NFTs(ctx context.Context) ([]domain.NFT, error) {
	var resp struct {
		Items []domain.NFT `json:"items"`
	}
	err := c.get(ctx, "nfts", &resp)
	return resp.Items, err
}

// Me returns the caller's balance snapshot.
func (c *Client) Me(ctx context.Context) (domain.Profile, error) {
	var resp domain.Profile
	err := c.get(ctx, "users/me", &resp)
	return resp, err
}

// Leaderboard returns the main leaderboard.
func (c *Client) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var resp struct {
		Items []domain.LeaderboardEntry `json:"items"`
	}
	err := c.get(ctx, "leaderboard/top", &resp)
	return resp.Items, err
}

// ArenaLeaderboard returns the arena leaderboard.
func (c *Client) ArenaLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var resp struct {
		Items []domain.LeaderboardEntry `json:"items"`
	}
	err := c.get(ctx, "arena/leaderboard", &resp)
	return resp.Items, err
}

// Events returns recent activity-feed entries.
func (c *Client) Events(ctx context.Context, limit int) ([]domain.Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp struct {
		Items []domain.Event `json:"items"`
	}
	err := c.get(ctx, endpoint, &resp)
	return resp.Items, err
}

// get performs a GET with the fixed-delay retry policy.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	attempts := c.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}
		lastErr = c.do(ctx, http.MethodGet, endpoint, nil, out)
		if lastErr == nil {
			return nil
		}
		if apiErr, ok := lastErr.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
