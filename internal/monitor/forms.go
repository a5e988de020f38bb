package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

// FormChecker verifies that each configured form is present on its page,
// posts to a reachable action URL and carries the expected spam protection.
type FormChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

func NewFormChecker(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *FormChecker {
	return &FormChecker{cfg: cfg, fetcher: fetcher, logger: logger}
}

func (c *FormChecker) Name() string { return "forms" }

var captchaMarkers = []string{"recaptcha", "g-recaptcha", "hcaptcha", "h-captcha", "cf-turnstile", "captcha"}

func (c *FormChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)

	if len(c.cfg.Forms) == 0 {
		rec.add(domain.StatusSuccess, domain.SeverityInfo, "No forms configured, skipping form checks")
		return rec.findings
	}

	c.logger.Info("starting form checker", zap.Int("forms", len(c.cfg.Forms)))

	for _, form := range c.cfg.Forms {
		if cancelled(ctx) {
			c.logger.Warn("form check cancelled")
			break
		}
		c.checkForm(ctx, rec, form)
	}

	return rec.findings
}

func (c *FormChecker) checkForm(ctx context.Context, rec *recorder, form config.Form) {
	name := form.Name
	if name == "" {
		name = form.Path
	}
	pageURL := urlutil.FullURL(c.cfg.Website.URL, form.Path)

	res := c.fetcher.Fetch(ctx, pageURL, c.cfg.LinkChecker.Timeout())
	if !res.OK {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("Form page %q is not reachable: %s", name, res.Message),
			withURL(pageURL))
		return
	}

	doc, err := extract.Parse(string(res.Body))
	if err != nil {
		c.logger.Warn("failed to parse form page", zap.String("url", pageURL), zap.Error(err))
		return
	}

	forms := doc.Find("form")
	if forms.Length() == 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("No form found on page for %q", name),
			withURL(pageURL))
		return
	}

	var issues []string
	details := map[string]any{
		"form":        name,
		"forms_found": forms.Length(),
	}

	first := forms.First()
	method, _ := first.Attr("method")
	if method != "" && !strings.EqualFold(method, "post") {
		issues = append(issues, fmt.Sprintf("form uses method %q instead of POST", method))
	}
	details["method"] = strings.ToUpper(defaultString(method, "get"))

	if action, ok := first.Attr("action"); ok && action != "" && !strings.HasPrefix(action, "#") {
		actionURL, err := urlutil.Resolve(pageURL, action)
		if err == nil {
			probe := c.fetcher.Head(ctx, actionURL, c.cfg.LinkChecker.Timeout())
			// POST endpoints commonly reject GET/HEAD with 405; that still
			// proves the endpoint exists.
			if !probe.OK && probe.StatusCode != 405 {
				issues = append(issues, fmt.Sprintf("form action %s is not reachable (%s)", actionURL, outcomeStatus(probe)))
			}
			details["action"] = actionURL
		}
	}

	required := first.Find("[required]").Length()
	details["required_fields"] = required

	if form.HasCaptcha && !hasCaptcha(doc) {
		issues = append(issues, "expected CAPTCHA protection was not found")
	}

	if len(issues) > 0 {
		details["issues"] = issues
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("%d issues with form %q", len(issues), name),
			withURL(pageURL),
			withDetails(details))
		return
	}

	rec.success(fmt.Sprintf("Form %q is present and configured correctly", name),
		withURL(pageURL),
		withDetails(details))
}

// hasCaptcha scans the whole page since most CAPTCHA providers inject their
// widget outside the form element.
func hasCaptcha(doc *goquery.Document) bool {
	html, _ := doc.Html()
	lower := strings.ToLower(html)
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
