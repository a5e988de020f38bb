package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

// WordPressChecker inspects a WordPress install for information leaks and
// risky defaults: version disclosure, reachable admin, open REST user
// enumeration, exposed sensitive files and xmlrpc.
type WordPressChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

func NewWordPressChecker(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *WordPressChecker {
	return &WordPressChecker{cfg: cfg, fetcher: fetcher, logger: logger}
}

func (c *WordPressChecker) Name() string { return "wordpress" }

var (
	generatorVersionPattern = regexp.MustCompile(`WordPress\s+([\d.]+)`)
	feedVersionPattern      = regexp.MustCompile(`wordpress\.org/\?v=([\d.]+)`)
)

// Paths that should never be directly retrievable.
var sensitivePaths = []string{
	"/wp-config.php",
	"/wp-config.php.bak",
	"/.htaccess",
	"/wp-content/debug.log",
	"/error_log",
}

func (c *WordPressChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)
	timeout := c.cfg.LinkChecker.Timeout()

	c.logger.Info("starting wordpress checker")

	version := c.detectVersion(ctx, timeout)
	if cancelled(ctx) {
		return rec.findings
	}
	if version != "" {
		rec.add(domain.StatusWarning, domain.SeverityLow,
			fmt.Sprintf("WordPress version %s is publicly visible", version),
			withDetails(map[string]any{
				"version": version,
				"risk":    "Version disclosure helps attackers match known exploits",
			}))
	} else {
		rec.success("WordPress version is not disclosed")
	}

	c.checkAdmin(ctx, rec, timeout)
	c.checkRESTAPI(ctx, rec, timeout)
	c.checkSensitivePaths(ctx, rec, timeout)
	c.checkReadme(ctx, rec, timeout)
	c.checkXMLRPC(ctx, rec, timeout)

	return rec.findings
}

// detectVersion reads the generator meta tag, falling back to the RSS feed
// generator element which many themes forget to strip.
func (c *WordPressChecker) detectVersion(ctx context.Context, timeout time.Duration) string {
	res := c.fetcher.Fetch(ctx, c.cfg.Website.URL, timeout)
	if res.OK {
		if doc, err := extract.Parse(string(res.Body)); err == nil {
			content, _ := doc.Find(`meta[name="generator"]`).First().Attr("content")
			if m := generatorVersionPattern.FindStringSubmatch(content); m != nil {
				return m[1]
			}
		}
	}

	feedURL := urlutil.FullURL(c.cfg.Website.URL, "/feed/")
	res = c.fetcher.Fetch(ctx, feedURL, timeout)
	if res.OK {
		if m := feedVersionPattern.FindStringSubmatch(string(res.Body)); m != nil {
			return m[1]
		}
	}
	return ""
}

func (c *WordPressChecker) checkAdmin(ctx context.Context, rec *recorder, timeout time.Duration) {
	if cancelled(ctx) {
		return
	}
	adminURL := urlutil.FullURL(c.cfg.Website.URL, c.cfg.WordPress.AdminPath)
	res := c.fetcher.Probe(ctx, adminURL, timeout)

	// wp-admin normally redirects to wp-login.php, which itself answers 200.
	// Total unreachability means the login flow is broken.
	if !res.OK && res.StatusCode == 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("Admin page is unreachable: %s", res.Message),
			withURL(adminURL))
		return
	}
	if res.StatusCode == 403 || res.StatusCode == 401 {
		rec.success("Admin page is access-restricted", withURL(adminURL))
		return
	}
	if res.OK {
		rec.success("Admin login page is reachable", withURL(adminURL))
		return
	}
	rec.add(domain.StatusWarning, domain.SeverityMedium,
		fmt.Sprintf("Admin page returned HTTP %d", res.StatusCode),
		withURL(adminURL))
}

func (c *WordPressChecker) checkRESTAPI(ctx context.Context, rec *recorder, timeout time.Duration) {
	if cancelled(ctx) {
		return
	}
	apiURL := urlutil.FullURL(c.cfg.Website.URL, c.cfg.WordPress.RESTAPIEndpoint)
	res := c.fetcher.Probe(ctx, apiURL, timeout)
	if !res.OK {
		rec.success("REST API is not publicly exposed", withURL(apiURL))
		return
	}

	usersURL := urlutil.FullURL(c.cfg.Website.URL,
		strings.TrimRight(c.cfg.WordPress.RESTAPIEndpoint, "/")+"/wp/v2/users")
	usersRes := c.fetcher.Fetch(ctx, usersURL, timeout)
	if usersRes.OK && strings.Contains(string(usersRes.Body), `"slug"`) {
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			"REST API exposes the user list (enumeration possible)",
			withURL(usersURL),
			withDetails(map[string]any{
				"risk": "Usernames feed brute-force login attempts",
			}))
		return
	}

	rec.success("REST API is reachable but does not expose users", withURL(apiURL))
}

func (c *WordPressChecker) checkSensitivePaths(ctx context.Context, rec *recorder, timeout time.Duration) {
	var exposed []string
	for _, path := range sensitivePaths {
		if cancelled(ctx) {
			return
		}
		res := c.fetcher.Probe(ctx, urlutil.FullURL(c.cfg.Website.URL, path), timeout)
		if res.OK {
			exposed = append(exposed, path)
		}
	}

	if len(exposed) > 0 {
		rec.add(domain.StatusCritical, domain.SeverityCritical,
			fmt.Sprintf("%d sensitive files are publicly accessible", len(exposed)),
			withDetails(map[string]any{
				"exposed_paths": exposed,
				"risk":          "These files can leak credentials and configuration",
			}))
		return
	}
	rec.success("No sensitive files are publicly accessible")
}

func (c *WordPressChecker) checkReadme(ctx context.Context, rec *recorder, timeout time.Duration) {
	if cancelled(ctx) {
		return
	}
	readmeURL := urlutil.FullURL(c.cfg.Website.URL, "/readme.html")
	res := c.fetcher.Probe(ctx, readmeURL, timeout)
	if res.OK {
		rec.add(domain.StatusWarning, domain.SeverityLow,
			"readme.html is publicly accessible (discloses WordPress version)",
			withURL(readmeURL))
	}
}

func (c *WordPressChecker) checkXMLRPC(ctx context.Context, rec *recorder, timeout time.Duration) {
	if cancelled(ctx) {
		return
	}
	xmlrpcURL := urlutil.FullURL(c.cfg.Website.URL, "/xmlrpc.php")
	res := c.fetcher.Probe(ctx, xmlrpcURL, timeout)

	// xmlrpc answers 405 to GET when enabled.
	if res.OK || res.StatusCode == 405 {
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			"xmlrpc.php is enabled",
			withURL(xmlrpcURL),
			withDetails(map[string]any{
				"risk": "xmlrpc is a common brute-force and amplification target",
			}))
		return
	}
	rec.success("xmlrpc.php is disabled", withURL(xmlrpcURL))
}
