package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// BrowserLink is an anchor as reported by the browser driver.
type BrowserLink struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// BrowserImage is an image as reported by the browser driver, including
// render-time facts a plain fetch cannot see.
type BrowserImage struct {
	Src           string `json:"src"`
	Alt           string `json:"alt"`
	IsLoaded      bool   `json:"is_loaded"`
	NaturalWidth  int    `json:"natural_width"`
	NaturalHeight int    `json:"natural_height"`
}

// NavResult is the outcome of a browser navigation.
type NavResult struct {
	OK         bool
	StatusCode int
	Elapsed    time.Duration
}

// Driver is the browser-rendered fetch variant, backed by an external
// browser-automation service. Stop must be called even when Start-ed
// sessions fail midway; callers defer it.
type Driver interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Navigate(ctx context.Context, url string) (NavResult, error)
	Links(ctx context.Context) ([]BrowserLink, error)
	Images(ctx context.Context) ([]BrowserImage, error)
	PageSource(ctx context.Context) (string, error)
}

type remoteDriver struct {
	baseURL   string
	headless  bool
	client    *http.Client
	sessionID string
	logger    *zap.Logger
}

// NewRemoteDriver returns a Driver that talks to a browser-automation
// service over JSON/HTTP. The service owns the actual browser process.
func NewRemoteDriver(driverURL string, headless bool, logger *zap.Logger) Driver {
	return &remoteDriver{
		baseURL:  driverURL,
		headless: headless,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With(zap.String("component", "browser")),
	}
}

func (d *remoteDriver) Start(ctx context.Context) error {
	if d.baseURL == "" {
		return fmt.Errorf("no browser driver URL configured")
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := d.call(ctx, http.MethodPost, "/session", map[string]any{
		"headless":   d.headless,
		"user_agent": userAgent,
	}, &resp)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	d.sessionID = resp.SessionID
	d.logger.Info("browser session started",
		zap.Bool("headless", d.headless),
		zap.String("session_id", d.sessionID))
	return nil
}

func (d *remoteDriver) Stop(ctx context.Context) error {
	if d.sessionID == "" {
		return nil
	}
	err := d.call(ctx, http.MethodDelete, "/session/"+d.sessionID, nil, nil)
	d.sessionID = ""
	if err != nil {
		return fmt.Errorf("failed to stop browser session: %w", err)
	}
	return nil
}

func (d *remoteDriver) Navigate(ctx context.Context, url string) (NavResult, error) {
	var resp struct {
		OK         bool    `json:"ok"`
		StatusCode int     `json:"status_code"`
		ElapsedMS  float64 `json:"elapsed_ms"`
	}
	err := d.call(ctx, http.MethodPost, "/session/"+d.sessionID+"/navigate",
		map[string]any{"url": url}, &resp)
	if err != nil {
		return NavResult{}, err
	}
	return NavResult{
		OK:         resp.OK,
		StatusCode: resp.StatusCode,
		Elapsed:    time.Duration(resp.ElapsedMS * float64(time.Millisecond)),
	}, nil
}

func (d *remoteDriver) Links(ctx context.Context) ([]BrowserLink, error) {
	var links []BrowserLink
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/links", nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

func (d *remoteDriver) Images(ctx context.Context) ([]BrowserImage, error) {
	var images []BrowserImage
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/images", nil, &images); err != nil {
		return nil, err
	}
	return images, nil
}

func (d *remoteDriver) PageSource(ctx context.Context) (string, error) {
	var resp struct {
		Source string `json:"source"`
	}
	if err := d.call(ctx, http.MethodGet, "/session/"+d.sessionID+"/source", nil, &resp); err != nil {
		return "", err
	}
	return resp.Source, nil
}

func (d *remoteDriver) call(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("invalid driver request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("driver request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("driver returned %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode driver response: %w", err)
		}
	}
	return nil
}

// DriverFactory builds a fresh Driver for a checker run. Each run owns one
// driver instance, started before the page loop and stopped after it.
type DriverFactory func(headless bool) Driver
