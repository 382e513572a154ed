package ezviz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"ezbridge/internal/core"
)

var (
	ErrAuth        = errors.New("authentication rejected - check app key and secret")
	ErrUnsupported = errors.New("device does not support the lens shutter")
)

// Vendor response codes. The EZVIZ open API wraps every response in
// {code, msg, data} with code returned as a string.
const (
	codeOK           = "200"
	codeTokenExpired = "10002"
	codeKeyNotExist  = "10017"
	codeKeyMismatch  = "10030"
	codeNotSupported = "60020"
)

const (
	// Refresh the token this long before the vendor-reported expiry.
	// The vendor documents tokens as valid for 7 days.
	tokenMargin = 30 * time.Minute

	defaultTimeout = 10 * time.Second
	maxRetries     = 2
)

var retryBackoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// APIError is a non-auth rejection returned by the vendor
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vendor API error %s: %s", e.Code, e.Message)
}

// TokenStore optionally persists the access token across restarts
type TokenStore interface {
	LoadToken(ctx context.Context) (token string, expiresAt time.Time, err error)
	SaveToken(ctx context.Context, token string, expiresAt time.Time) error
}

// Config contains EZVIZ open cloud API configuration
type Config struct {
	AppKey    string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// Client talks to the EZVIZ open cloud API. It owns the access token:
// every call goes through AccessToken, which refreshes behind a single
// in-flight critical section, so concurrent callers never trigger
// duplicate token requests.
type Client struct {
	config     Config
	store      TokenStore
	httpClient *http.Client
	logger     *slog.Logger

	tokenMu     sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new EZVIZ API client. store may be nil, in which
// case the token lives only in process memory.
func NewClient(config Config, store TokenStore, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config,
		store:  store,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// AccessToken returns a valid cached token, refreshing it first when it
// is missing or inside the safety margin of its expiry
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.tokenMu.RLock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenMargin)) {
		token := c.accessToken
		c.tokenMu.RUnlock()
		return token, nil
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Double-check after acquiring the write lock (another goroutine
	// might have refreshed)
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenMargin)) {
		return c.accessToken, nil
	}

	// A persisted token from a previous run may still be usable
	if c.store != nil && c.accessToken == "" {
		token, expiresAt, err := c.store.LoadToken(ctx)
		if err != nil {
			c.logger.Warn("Failed to load persisted token", "error", err)
		} else if token != "" && time.Now().Before(expiresAt.Add(-tokenMargin)) {
			c.accessToken = token
			c.tokenExpiry = expiresAt
			return token, nil
		}
	}

	token, expiresAt, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token
	c.tokenExpiry = expiresAt

	if c.store != nil {
		if err := c.store.SaveToken(ctx, token, expiresAt); err != nil {
			// Not fatal, the token is cached in memory
			c.logger.Warn("Failed to persist access token", "error", err)
		}
	}

	return token, nil
}

// requestToken exchanges the app key/secret for a fresh access token.
// Caller must hold tokenMu.
func (c *Client) requestToken(ctx context.Context) (string, time.Time, error) {
	params := url.Values{}
	params.Set("appKey", c.config.AppKey)
	params.Set("appSecret", c.config.AppSecret)

	var data struct {
		AccessToken string `json:"accessToken"`
		ExpireTime  int64  `json:"expireTime"` // epoch millis
	}

	if err := c.post(ctx, "/lapp/token/get", params, &data); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.Code == codeKeyNotExist || apiErr.Code == codeKeyMismatch {
				return "", time.Time{}, fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
			}
		}
		return "", time.Time{}, fmt.Errorf("failed to get access token: %w", err)
	}

	if data.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty access token in response", ErrAuth)
	}

	expiresAt := time.UnixMilli(data.ExpireTime)
	c.logger.Debug("Obtained new access token", "expires_at", expiresAt)

	return data.AccessToken, expiresAt, nil
}

// invalidateToken drops the cached token so the next call refreshes
func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

// call performs an authenticated form-encoded POST against the vendor
// API with retry/backoff. Network failures and HTTP 5xx are retried up
// to maxRetries; a token-expired response invalidates the cache and
// retries with a fresh token; other vendor rejections return immediately
// as *APIError.
func (c *Client) call(ctx context.Context, path string, params url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff[min(attempt-1, len(retryBackoff)-1)]
			c.logger.Warn("Retrying vendor request",
				"path", path,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", lastErr,
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		token, err := c.AccessToken(ctx)
		if err != nil {
			return err
		}
		params.Set("accessToken", token)

		err = c.post(ctx, path, params, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.Code == codeTokenExpired {
				c.logger.Info("Access token rejected, refreshing", "path", path)
				c.invalidateToken()
				lastErr = err
				continue
			}
			return err
		}

		// Network-level failure, retryable for this cycle only
		lastErr = err
	}

	return lastErr
}

// post sends one form-encoded request and decodes the vendor envelope
func (c *Client) post(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if envelope.Code != codeOK {
		return &APIError{Code: envelope.Code, Message: envelope.Msg}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}

// DeviceInfo is one entry of the vendor device directory
type DeviceInfo struct {
	Serial string `json:"deviceSerial"`
	Name   string `json:"deviceName"`
	Status int    `json:"status"` // 1 online, 0 offline
}

// Online reports whether the directory considers the device reachable
func (d DeviceInfo) Online() bool {
	return d.Status == 1
}

// ListDevices fetches the account's device directory. Depending on the
// API version the payload is either a bare array or wrapped in
// {"deviceInfos": [...]}; both shapes are accepted.
func (c *Client) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	params := url.Values{}
	params.Set("pageStart", "0")
	params.Set("pageSize", "50")

	var raw json.RawMessage
	if err := c.call(ctx, "/lapp/device/list", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var devices []DeviceInfo
	if err := json.Unmarshal(raw, &devices); err == nil {
		return devices, nil
	}

	var wrapped struct {
		DeviceInfos []DeviceInfo `json:"deviceInfos"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected device list format: %w", err)
	}
	return wrapped.DeviceInfos, nil
}

// DeviceDetail is the vendor's per-device info record
type DeviceDetail struct {
	Serial  string `json:"deviceSerial"`
	Name    string `json:"deviceName"`
	Model   string `json:"model"`
	Status  int    `json:"status"`
	Defence int    `json:"defence"`
}

// GetDeviceInfo fetches the detail record for one device
func (c *Client) GetDeviceInfo(ctx context.Context, serial string) (*DeviceDetail, error) {
	params := url.Values{}
	params.Set("deviceSerial", serial)

	var detail DeviceDetail
	if err := c.call(ctx, "/lapp/device/info", params, &detail); err != nil {
		return nil, fmt.Errorf("failed to get device info for %s: %w", serial, err)
	}
	return &detail, nil
}

// PrivacyStatus fetches the current lens shutter state of a device
func (c *Client) PrivacyStatus(ctx context.Context, serial string) (core.PrivacyState, error) {
	params := url.Values{}
	params.Set("deviceSerial", serial)
	params.Set("channelNo", "1")

	var data struct {
		Enable int `json:"enable"`
	}
	if err := c.call(ctx, "/lapp/device/scene/switch/status", params, &data); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNotSupported {
			return "", fmt.Errorf("%w: %s", ErrUnsupported, serial)
		}
		return "", fmt.Errorf("failed to get privacy status for %s: %w", serial, err)
	}

	return core.PrivacyFromEnable(data.Enable)
}

// SetPrivacy sets the lens shutter state of a device
func (c *Client) SetPrivacy(ctx context.Context, serial string, enable bool) error {
	params := url.Values{}
	params.Set("deviceSerial", serial)
	params.Set("channelNo", "1")
	if enable {
		params.Set("enable", "1")
	} else {
		params.Set("enable", "0")
	}

	if err := c.call(ctx, "/lapp/device/scene/switch/set", params, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNotSupported {
			return fmt.Errorf("%w: %s", ErrUnsupported, serial)
		}
		return fmt.Errorf("failed to set privacy for %s: %w", serial, err)
	}
	return nil
}

// Capture requests a fresh snapshot from the device and returns the raw
// image bytes with their content type
func (c *Client) Capture(ctx context.Context, serial string) ([]byte, string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return nil, "", err
		}

		endpoint := fmt.Sprintf("%s/lapp/device/capture?accessToken=%s&deviceSerial=%s&channelNo=1",
			c.config.BaseURL, url.QueryEscape(token), url.QueryEscape(serial))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create capture request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("capture request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read capture response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("capture failed with status %d: %s", resp.StatusCode, string(body))
		}

		contentType := resp.Header.Get("Content-Type")
		if strings.Contains(contentType, "image") {
			return body, contentType, nil
		}

		// Error payload instead of an image. A token-expired code gets
		// one transparent refresh.
		var envelope struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
		}
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr != nil {
			snippet := string(body)
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
			return nil, "", fmt.Errorf("unexpected capture response (%s): %s", contentType, snippet)
		}
		if envelope.Code == codeTokenExpired && attempt == 0 {
			c.invalidateToken()
			continue
		}
		return nil, "", &APIError{Code: envelope.Code, Message: envelope.Msg}
	}

	return nil, "", fmt.Errorf("capture failed for %s after token refresh", serial)
}

// LiveAddress fetches a time-limited live stream URL for a device.
// protocol is one of the vendor's transport names (ezopen, rtsp, hls);
// quality 1 is HD, 2 is SD.
func (c *Client) LiveAddress(ctx context.Context, serial, protocol string, quality int) (string, error) {
	if protocol == "" {
		protocol = "ezopen"
	}
	if quality <= 0 {
		quality = 2
	}

	params := url.Values{}
	params.Set("deviceSerial", serial)
	params.Set("channelNo", "1")
	params.Set("protocol", protocol)
	params.Set("quality", strconv.Itoa(quality))
	params.Set("expireTime", "86400")

	var data struct {
		URL string `json:"url"`
	}
	if err := c.call(ctx, "/lapp/live/address/get", params, &data); err != nil {
		return "", fmt.Errorf("failed to get live address for %s: %w", serial, err)
	}
	return data.URL, nil
}
