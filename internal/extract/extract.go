// Package extract pulls candidate resources (anchors, images, video embeds)
// out of fetched page markup. Extraction never fails on malformed HTML; it
// degrades to a partial or empty list and lets the caller report page-level
// problems.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"site-checker/internal/domain"
	"site-checker/internal/urlutil"
)

// Link is an extracted anchor target with its display text.
type Link struct {
	URL  string
	Text string
}

// Image is an extracted image reference. Background images carry no alt.
type Image struct {
	URL        string
	Alt        string
	Background bool
}

// Video is an extracted video embed. ID is the provider-specific video
// identifier when one can be derived; EmbedURL is what gets probed when no
// provider-specific check exists.
type Video struct {
	URL      string
	ID       string
	Provider string // youtube, youtube_link, vimeo, wistia, html5
	EmbedURL string
}

var (
	headerSelectors = []string{".header", ".nav", ".navbar", ".navigation", "#header", "#nav", "#navbar"}
	footerSelectors = []string{".footer", "#footer", ".site-footer"}
	mainSelectors   = []string{"main", "article", ".content", ".main-content", "#content", "#main"}

	cssURLPattern = regexp.MustCompile(`url\(["']?([^"')\s]+)["']?\)`)

	youtubeEmbedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube-nocookie\.com/embed/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	}
	youtubeLinkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
	}
	vimeoPattern  = regexp.MustCompile(`player\.vimeo\.com/video/(\d+)`)
	wistiaPattern = regexp.MustCompile(`wistia\.com/embed/iframe/([a-zA-Z0-9]+)`)
)

// Parse builds a document from raw HTML. goquery tolerates malformed
// markup, so the only failure mode is an unreadable input.
func Parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Scope narrows the document to the configured content region and returns
// the selection together with a description for logging. Main-content-only
// wins over header/footer exclusion when it finds a match; otherwise the
// exclusions apply; otherwise the full page.
func Scope(doc *goquery.Document, scope domain.ContentScope) (*goquery.Selection, string) {
	if scope.MainContentOnly {
		for _, sel := range mainSelectors {
			if s := doc.Find(sel).First(); s.Length() > 0 {
				return s, "main content only"
			}
		}
	}

	if scope.IgnoreHeader || scope.IgnoreFooter {
		var desc []string
		if scope.IgnoreHeader {
			doc.Find("header, nav").Remove()
			for _, sel := range headerSelectors {
				doc.Find(sel).Remove()
			}
			desc = append(desc, "no header")
		}
		if scope.IgnoreFooter {
			doc.Find("footer").Remove()
			for _, sel := range footerSelectors {
				doc.Find(sel).Remove()
			}
			desc = append(desc, "no footer")
		}
		return doc.Selection, strings.Join(desc, ", ")
	}

	return doc.Selection, "full page"
}

// Links returns the anchor targets within sel, resolved against pageURL,
// fragment-stripped and deduplicated in document order. javascript:,
// mailto:, tel: and fragment-only hrefs are excluded.
func Links(sel *goquery.Selection, pageURL string) []Link {
	var links []Link
	seen := make(map[string]struct{})

	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || urlutil.Skippable(href) {
			return
		}
		full, err := urlutil.Resolve(pageURL, href)
		if err != nil {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}

		text := strings.TrimSpace(a.Text())
		if text == "" {
			text = href
		}
		links = append(links, Link{URL: full, Text: clip(text, 50)})
	})
	return links
}

// Images returns <img> sources (including the common lazy-load attributes)
// and CSS background-image URLs within sel. data: URIs are not network
// resources and are excluded.
func Images(sel *goquery.Selection, pageURL string) []Image {
	var images []Image
	seen := make(map[string]struct{})

	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := firstAttr(img, "src", "data-src", "data-lazy-src")
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		full, err := urlutil.Resolve(pageURL, src)
		if err != nil {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}

		alt, _ := img.Attr("alt")
		images = append(images, Image{URL: full, Alt: strings.TrimSpace(alt)})
	})

	sel.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style, _ := el.Attr("style")
		if !strings.Contains(style, "background-image") && !strings.Contains(style, "background:") {
			return
		}
		for _, m := range cssURLPattern.FindAllStringSubmatch(style, -1) {
			raw := m[1]
			if strings.HasPrefix(raw, "data:") {
				continue
			}
			full, err := urlutil.Resolve(pageURL, raw)
			if err != nil {
				continue
			}
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			images = append(images, Image{URL: full, Background: true})
		}
	})

	return images
}

// Videos returns video embeds within sel: YouTube/Vimeo/Wistia iframes,
// native <video> elements, and YouTube links styled as popup embeds.
func Videos(sel *goquery.Selection, pageURL string) []Video {
	var videos []Video
	seen := make(map[string]struct{})

	add := func(v Video, key string) {
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		videos = append(videos, v)
	}

	sel.Find("iframe").Each(func(_ int, iframe *goquery.Selection) {
		src := firstAttr(iframe, "src", "data-src")
		if src == "" {
			return
		}

		for _, p := range youtubeEmbedPatterns {
			if m := p.FindStringSubmatch(src); m != nil {
				add(Video{
					URL:      src,
					ID:       m[1],
					Provider: "youtube",
					EmbedURL: "https://www.youtube.com/embed/" + m[1],
				}, m[1])
				return
			}
		}
		if m := vimeoPattern.FindStringSubmatch(src); m != nil {
			add(Video{
				URL:      src,
				ID:       m[1],
				Provider: "vimeo",
				EmbedURL: "https://player.vimeo.com/video/" + m[1],
			}, m[1])
			return
		}
		if m := wistiaPattern.FindStringSubmatch(src); m != nil {
			add(Video{URL: src, ID: m[1], Provider: "wistia", EmbedURL: src}, m[1])
		}
	})

	sel.Find("video").Each(func(_ int, video *goquery.Selection) {
		sources := video.Find("source")
		if sources.Length() > 0 {
			sources.Each(func(_ int, source *goquery.Selection) {
				if src, ok := source.Attr("src"); ok && src != "" {
					addHTML5Video(add, pageURL, src)
				}
			})
			return
		}
		if src, ok := video.Attr("src"); ok && src != "" {
			addHTML5Video(add, pageURL, src)
		}
	})

	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		class, _ := a.Attr("class")
		if !videoLikeClass(class) {
			return
		}
		for _, p := range youtubeLinkPatterns {
			if m := p.FindStringSubmatch(href); m != nil {
				add(Video{
					URL:      href,
					ID:       m[1],
					Provider: "youtube_link",
					EmbedURL: "https://www.youtube.com/embed/" + m[1],
				}, m[1])
				return
			}
		}
	})

	return videos
}

func addHTML5Video(add func(Video, string), pageURL, src string) {
	full, err := urlutil.Resolve(pageURL, src)
	if err != nil {
		return
	}
	add(Video{URL: full, Provider: "html5", EmbedURL: full}, full)
}

// Links displayed as video popups usually mark themselves with one of
// these classes; bare YouTube links in running text are ordinary links.
func videoLikeClass(class string) bool {
	c := strings.ToLower(class)
	for _, marker := range []string{"video", "play", "youtube", "popup"} {
		if strings.Contains(c, marker) {
			return true
		}
	}
	return false
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
