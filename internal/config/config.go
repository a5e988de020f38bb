package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"site-checker/internal/domain"
)

var validate *validator.Validate

// Placeholder URLs that ship in the sample config. A target left at one of
// these is a fatal configuration error: no meaningful check is possible.
var placeholderURLs = []string{
	"https://yourwordpresssite.com",
	"https://example.com",
}

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("notplaceholder", validateNotPlaceholder); err != nil {
		panic(fmt.Sprintf("failed to register notplaceholder validator: %v", err))
	}
}

type Config struct {
	Website       Website         `yaml:"website" validate:"required"`
	CriticalPages []string        `yaml:"critical_pages"`
	LinkChecker   LinkChecker     `yaml:"link_checker"`
	ImageChecker  ImageChecker    `yaml:"image_checker"`
	VideoChecker  VideoChecker    `yaml:"video_checker"`
	Thresholds    Thresholds      `yaml:"thresholds"`
	Performance   Performance     `yaml:"performance"`
	Retry         Retry           `yaml:"retry"`
	SEOChecks     SEOChecks       `yaml:"seo_checks"`
	WordPress     WordPressChecks `yaml:"wordpress_checks"`
	Forms         []Form          `yaml:"forms"`
	Scheduler     Scheduler       `yaml:"scheduler"`
	Database      Database        `yaml:"database"`
	Alerts        Alerts          `yaml:"alerts"`
	Browser       Browser         `yaml:"browser"`

	IgnoreHeader    bool `yaml:"ignore_header"`
	IgnoreFooter    bool `yaml:"ignore_footer"`
	MainContentOnly bool `yaml:"main_content_only"`
	UseBrowser      bool `yaml:"use_browser"`
	Headless        bool `yaml:"headless"`
}

type Website struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url" validate:"required,url,notplaceholder"`
}

type LinkChecker struct {
	MaxDepth        int      `yaml:"max_depth"`
	MaxLinks        int      `yaml:"max_links"`
	MaxLinksPerPage int      `yaml:"max_links_per_page"` // 0 = unlimited
	TimeoutSeconds  int      `yaml:"timeout"`
	SlowThresholdMS int      `yaml:"slow_threshold_ms"`
	CheckExternal   *bool    `yaml:"check_external"`
	IgnorePatterns  []string `yaml:"ignore_patterns"`
	Concurrency     int      `yaml:"concurrency"`
}

type ImageChecker struct {
	TimeoutSeconds   int   `yaml:"timeout"`
	SlowThresholdMS  int   `yaml:"slow_threshold_ms"`
	MaxImagesPerPage int   `yaml:"max_images_per_page"` // 0 = unlimited
	CheckAltTags     *bool `yaml:"check_alt_tags"`
}

type VideoChecker struct {
	TimeoutSeconds int `yaml:"timeout"`
}

type Thresholds struct {
	ResponseTimeWarningMS  int `yaml:"response_time_warning"`
	ResponseTimeCriticalMS int `yaml:"response_time_critical"`
	SSLExpiryWarningDays   int `yaml:"ssl_expiry_warning"`
	SSLExpiryCriticalDays  int `yaml:"ssl_expiry_critical"`
}

type Performance struct {
	TimeoutSeconds  int    `yaml:"timeout"`
	EnablePagespeed bool   `yaml:"enable_pagespeed"`
	PagespeedAPIKey string `yaml:"pagespeed_api_key"`
}

type Retry struct {
	MaxAttempts         int  `yaml:"max_attempts"`
	InitialDelaySeconds int  `yaml:"initial_delay"`
	ExponentialBackoff  bool `yaml:"exponential_backoff"`
	MaxDelaySeconds     int  `yaml:"max_delay"`
}

type SEOChecks struct {
	CheckSitemap        *bool  `yaml:"check_sitemap"`
	CheckRobotsTxt      *bool  `yaml:"check_robots_txt"`
	CheckCanonical      *bool  `yaml:"check_canonical"`
	CheckStructuredData *bool  `yaml:"check_structured_data"`
	SitemapPath         string `yaml:"sitemap_path"`
}

type WordPressChecks struct {
	AdminPath       string `yaml:"admin_path"`
	RESTAPIEndpoint string `yaml:"rest_api_endpoint"`
}

type Form struct {
	Name       string `yaml:"name"`
	Path       string `yaml:"path" validate:"required"`
	HasCaptcha bool   `yaml:"has_captcha"`
}

type Scheduler struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Alerts struct {
	Webhook WebhookAlert `yaml:"webhook"`
}

type WebhookAlert struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

type Browser struct {
	DriverURL string `yaml:"driver_url" validate:"omitempty,url"`
}

// NewConfig loads the configuration from CONFIG_PATH (default config.yaml),
// applies environment overrides and validates it.
func NewConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML. Split out of NewConfig so tests can
// feed configs without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if url := os.Getenv("MONITOR_TARGET_URL"); url != "" {
		cfg.Website.URL = url
	}

	cfg.applyDefaults()

	if err := validate.Struct(&cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, formatValidationErrors(validationErrors)
		}
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.Website.URL = strings.TrimRight(cfg.Website.URL, "/")
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.CriticalPages) == 0 {
		c.CriticalPages = []string{"/"}
	}
	if c.LinkChecker.MaxDepth == 0 {
		c.LinkChecker.MaxDepth = 3
	}
	if c.LinkChecker.MaxLinks == 0 {
		c.LinkChecker.MaxLinks = 500
	}
	if c.LinkChecker.TimeoutSeconds == 0 {
		c.LinkChecker.TimeoutSeconds = 10
	}
	if c.LinkChecker.SlowThresholdMS == 0 {
		c.LinkChecker.SlowThresholdMS = 3000
	}
	if c.LinkChecker.CheckExternal == nil {
		c.LinkChecker.CheckExternal = boolPtr(true)
	}
	if c.LinkChecker.Concurrency == 0 {
		c.LinkChecker.Concurrency = 10
	}
	if c.ImageChecker.TimeoutSeconds == 0 {
		c.ImageChecker.TimeoutSeconds = 15
	}
	if c.ImageChecker.SlowThresholdMS == 0 {
		c.ImageChecker.SlowThresholdMS = 3000
	}
	if c.ImageChecker.CheckAltTags == nil {
		c.ImageChecker.CheckAltTags = boolPtr(true)
	}
	if c.VideoChecker.TimeoutSeconds == 0 {
		c.VideoChecker.TimeoutSeconds = 15
	}
	if c.Thresholds.ResponseTimeWarningMS == 0 {
		c.Thresholds.ResponseTimeWarningMS = 2000
	}
	if c.Thresholds.ResponseTimeCriticalMS == 0 {
		c.Thresholds.ResponseTimeCriticalMS = 3000
	}
	if c.Thresholds.SSLExpiryWarningDays == 0 {
		c.Thresholds.SSLExpiryWarningDays = 30
	}
	if c.Thresholds.SSLExpiryCriticalDays == 0 {
		c.Thresholds.SSLExpiryCriticalDays = 7
	}
	if c.Performance.TimeoutSeconds == 0 {
		c.Performance.TimeoutSeconds = 30
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelaySeconds == 0 {
		c.Retry.InitialDelaySeconds = 5
		c.Retry.ExponentialBackoff = true
	}
	if c.Retry.MaxDelaySeconds == 0 {
		c.Retry.MaxDelaySeconds = 60
	}
	if c.WordPress.AdminPath == "" {
		c.WordPress.AdminPath = "/wp-admin/"
	}
	if c.WordPress.RESTAPIEndpoint == "" {
		c.WordPress.RESTAPIEndpoint = "/wp-json/"
	}
	if c.SEOChecks.SitemapPath == "" {
		c.SEOChecks.SitemapPath = "/sitemap_index.xml"
	}
	if c.Scheduler.IntervalMinutes == 0 {
		c.Scheduler.IntervalMinutes = 60
	}
	if c.Database.Path == "" {
		c.Database.Path = "monitor.db"
	}
}

// Scope returns the configured content-scope filter.
func (c *Config) Scope() domain.ContentScope {
	return domain.ContentScope{
		IgnoreHeader:    c.IgnoreHeader,
		IgnoreFooter:    c.IgnoreFooter,
		MainContentOnly: c.MainContentOnly,
	}
}

func (l LinkChecker) Timeout() time.Duration  { return time.Duration(l.TimeoutSeconds) * time.Second }
func (i ImageChecker) Timeout() time.Duration { return time.Duration(i.TimeoutSeconds) * time.Second }
func (v VideoChecker) Timeout() time.Duration { return time.Duration(v.TimeoutSeconds) * time.Second }
func (p Performance) Timeout() time.Duration  { return time.Duration(p.TimeoutSeconds) * time.Second }
func (s Scheduler) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func boolPtr(b bool) *bool { return &b }

func validateNotPlaceholder(fl validator.FieldLevel) bool {
	value := strings.TrimRight(fl.Field().String(), "/")
	for _, p := range placeholderURLs {
		if strings.EqualFold(value, p) {
			return false
		}
	}
	return true
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	var errMsgs []string
	for _, err := range errs {
		errMsgs = append(errMsgs, fmt.Sprintf(
			"field '%s' failed validation: %s",
			err.Field(),
			err.Tag(),
		))
	}
	return fmt.Errorf("validation errors: %v", errMsgs)
}
