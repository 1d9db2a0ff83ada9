// Package powerwall talks to the Tesla owner API to monitor and control a
// Powerwall's backup reserve.
package powerwall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/reservetender/reservetender/pkg/common"
	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/types"
)

const (
	defaultBaseURL = "https://owner-api.teslamotors.com"
	oauthTokenPath = "oauth/token"

	// The owner API refuses requests without the mobile app's user agents.
	teslaUserAgent   = "TeslaApp/3.4.4-350/fad4a582e/android/8.1.0"
	browserUserAgent = "Mozilla/5.0 (Linux; Android 8.1.0; Pixel XL Build/OPM4.171019.021.D1; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/68.0.3440.91 Mobile Safari/537.36"
)

// Gateway is the device API surface the rest of the system depends on.
type Gateway interface {
	// Login performs full interactive authentication.
	Login(ctx context.Context, username, password, mfaPassCode string) (types.Credential, error)

	// Refresh exchanges a refresh token for a fresh credential triple.
	Refresh(ctx context.Context, refreshToken string) (types.Credential, error)

	// UseToken attaches an access token as the bearer credential for
	// subsequent calls.
	UseToken(token string)

	// GetStatus returns a fresh snapshot of the battery site.
	GetStatus(ctx context.Context) (types.SiteStatus, error)

	// SetReserve sets the absolute backup reserve percentage. The call is
	// idempotent; the reserve is never incremented.
	SetReserve(ctx context.Context, siteID string, percent int) error
}

// Client implements Gateway against the owner API.
type Client struct {
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	token string
}

// Configured sets up the owner API client based on flags.
func Configured() *Client {
	baseURL := lflag.String("powerwall-base-url", defaultBaseURL, "Base URL of the Tesla owner API")

	c := New(defaultBaseURL)
	lflag.Do(func() {
		c.baseURL = *baseURL
	})
	return c
}

// New returns a Client pointed at the given base URL.
func New(baseURL string) *Client {
	return &Client{
		client: common.HTTPClientWithHeaders(time.Minute, browserUserAgent, http.Header{
			"x-tesla-user-agent": []string{teslaUserAgent},
		}),
		baseURL: baseURL,
	}
}

// UseToken attaches token as the bearer credential for subsequent calls.
func (c *Client) UseToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (t tokenResult) credential() types.Credential {
	return types.Credential{
		RefreshToken: t.RefreshToken,
		AccessToken:  t.AccessToken,
		ExpiresAt:    time.Unix(t.CreatedAt+t.ExpiresIn, 0),
	}
}

// Login performs a full password+MFA grant and returns the credential triple.
// The token is not attached automatically; callers persist first, then call
// UseToken.
func (c *Client) Login(ctx context.Context, username, password, mfaPassCode string) (types.Credential, error) {
	if username == "" {
		return types.Credential{}, fmt.Errorf("missing username")
	}
	if password == "" {
		return types.Credential{}, fmt.Errorf("missing password")
	}

	body := map[string]string{
		"grant_type": "password",
		"email":      username,
		"password":   password,
	}
	if mfaPassCode != "" {
		body["passcode"] = mfaPassCode
	}

	req, err := c.newPostJSONRequest(ctx, oauthTokenPath, body)
	if err != nil {
		return types.Credential{}, err
	}

	var res tokenResult
	if err := c.doRequest(req, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "powerwall login failed", slog.Any("error", err))
		return types.Credential{}, err
	}
	log.Ctx(ctx).DebugContext(ctx, "powerwall login success", slog.String("username", username))

	return res.credential(), nil
}

// Refresh exchanges refreshToken for a new credential triple. The old triple
// is invalid afterwards, so callers must persist the result before using it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (types.Credential, error) {
	req, err := c.newPostJSONRequest(ctx, oauthTokenPath, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return types.Credential{}, err
	}

	var res tokenResult
	if err := c.doRequest(req, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "powerwall token refresh failed", slog.Any("error", err))
		return types.Credential{}, err
	}
	log.Ctx(ctx).DebugContext(ctx, "powerwall token refreshed", slog.Time("expiresAt", res.credential().ExpiresAt))

	return res.credential(), nil
}

func (c *Client) newGetRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (c *Client) newPostJSONRequest(ctx context.Context, endpoint string, data interface{}) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// ownerResponse is the owner API envelope. Token-grant responses are bare,
// everything else is wrapped in "response".
type ownerResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

// doRequest sends req and decodes the result into dest. A 401 is surfaced to
// the caller rather than retried here; the credential lifecycle manager owns
// re-authentication.
func (c *Client) doRequest(req *http.Request, dest interface{}) error {
	isTokenGrant := req.URL.Path == "/"+oauthTokenPath

	if !isTokenGrant {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &types.UpstreamError{Op: req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.UpstreamError{Op: req.URL.Path, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		log.Ctx(req.Context()).DebugContext(req.Context(), "owner api non-200", slog.Int("status", resp.StatusCode), slog.String("path", req.URL.Path))
		return &types.UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if dest == nil {
		return nil
	}

	if isTokenGrant {
		if err := json.Unmarshal(body, dest); err != nil {
			log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode token response", slog.Any("error", err))
			return &types.UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil
	}

	var env ownerResponse
	if err := json.Unmarshal(body, &env); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode owner response", slog.Any("error", err), slog.String("body", string(body)))
		return &types.UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if env.Error != "" {
		return &types.UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("api error: %s", env.Error)}
	}
	if err := json.Unmarshal(env.Response, dest); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode owner result", slog.Any("error", err))
		return &types.UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("failed to decode result: %w", err)}
	}
	return nil
}

type product struct {
	EnergySiteID int64  `json:"energy_site_id"`
	ResourceType string `json:"resource_type"`
}

type siteInfoResult struct {
	DefaultRealMode      string  `json:"default_real_mode"`
	BackupReservePercent float64 `json:"backup_reserve_percent"`
	TimeZone             string  `json:"installation_time_zone"`
	TOUSettings          struct {
		Schedule []types.ScheduleBlock `json:"schedule"`
	} `json:"tou_settings"`
}

// GetStatus discovers the battery on the account and returns a fresh site
// snapshot.
func (c *Client) GetStatus(ctx context.Context) (types.SiteStatus, error) {
	log.Ctx(ctx).DebugContext(ctx, "getting powerwall status")

	req, err := c.newGetRequest(ctx, "api/1/products")
	if err != nil {
		return types.SiteStatus{}, err
	}

	var products []product
	if err := c.doRequest(req, &products); err != nil {
		return types.SiteStatus{}, err
	}

	var siteID string
	for _, p := range products {
		if p.ResourceType == "battery" {
			siteID = strconv.FormatInt(p.EnergySiteID, 10)
			break
		}
	}
	if siteID == "" {
		return types.SiteStatus{}, &types.UpstreamError{Op: "api/1/products", Err: fmt.Errorf("no battery found in product list")}
	}

	req, err = c.newGetRequest(ctx, "api/1/energy_sites/"+siteID+"/site_info")
	if err != nil {
		return types.SiteStatus{}, err
	}

	var info siteInfoResult
	if err := c.doRequest(req, &info); err != nil {
		return types.SiteStatus{}, err
	}

	loc, err := time.LoadLocation(info.TimeZone)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to load site location, defaulting to UTC", slog.String("tz", info.TimeZone), slog.Any("error", err))
		loc = time.UTC
	}

	status := types.SiteStatus{
		SiteID:       siteID,
		ReserveLevel: int(info.BackupReservePercent),
		TOUEnabled:   info.DefaultRealMode == "autonomous",
		Schedule:     info.TOUSettings.Schedule,
		TimeZone:     info.TimeZone,
		Location:     loc,
	}

	log.Ctx(ctx).DebugContext(ctx, "powerwall status",
		slog.String("siteID", status.SiteID),
		slog.Int("reserveLevel", status.ReserveLevel),
		slog.Bool("touEnabled", status.TOUEnabled),
		slog.Int("scheduleBlocks", len(status.Schedule)),
		slog.String("tz", status.TimeZone),
	)

	return status, nil
}

// SetReserve pushes an absolute backup reserve percentage to the site.
func (c *Client) SetReserve(ctx context.Context, siteID string, percent int) error {
	log.Ctx(ctx).InfoContext(ctx, "setting powerwall reserve", slog.String("siteID", siteID), slog.Int("percent", percent))

	req, err := c.newPostJSONRequest(ctx, "api/1/energy_sites/"+siteID+"/backup", map[string]interface{}{
		"backup_reserve_percent": percent,
	})
	if err != nil {
		return err
	}
	return c.doRequest(req, &struct{}{})
}
