package webcrawl

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// looksLikeMarkdown is used when a server returns a generic text
// content-type instead of an explicit markdown one, per spec §4.4
// step 1's "or plain text that looks like markdown" allowance.
func looksLikeMarkdown(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	signals := 0
	if strings.Contains(trimmed, "```") {
		signals++
	}
	if regexp.MustCompile(`(?m)^#{1,6}\s`).MatchString(trimmed) {
		signals++
	}
	if regexp.MustCompile(`(?m)^\s*[-*]\s`).MatchString(trimmed) {
		signals++
	}
	return signals > 0
}

var selectorsToStrip = []string{
	"nav", "header", "footer", "aside", "script", "style", "noscript",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".sidebar", ".nav", ".navbar", ".breadcrumbs", ".toc",
}

var selectorsForMainContent = []string{
	"article", "main", "[role=main]", ".markdown-body", ".content", "#content",
}

// extractMainHTML implements spec §4.4 step 2's readability-style pass
// with a DOM-select fallback: strip chrome elements, locate the main
// content container (or fall back to body), and convert to Markdown.
func extractMainHTML(htmlBody, pageURL string) (title, markdown string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	for _, sel := range selectorsToStrip {
		doc.Find(sel).Remove()
	}

	var target *goquery.Selection
	for _, sel := range selectorsForMainContent {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			target = node
			break
		}
	}
	if target == nil {
		target = doc.Find("body")
	}

	contentHTML, err := target.Html()
	if err != nil {
		return title, "", err
	}

	converted, err := htmltomarkdown.ConvertString(contentHTML)
	if err != nil {
		return title, "", err
	}
	return title, converted, nil
}

// isSparse reports spec §4.4 step 3's sparse-page heuristic: short
// body or too few outgoing links.
func isSparse(markdown string, linkCount int) bool {
	return len(strings.TrimSpace(markdown)) < sparseBodyThreshold || linkCount < sparseLinkThreshold
}

var spaIndicatorPattern = regexp.MustCompile(`(?i)id=["']__next["']|id=["']root["']|id=["']app["']|ng-version=|data-reactroot`)

// looksLikeSPA flags pages whose body is mostly an empty app-mount
// shell, per spec §4.4 step 3.
func looksLikeSPA(htmlBody string) bool {
	return spaIndicatorPattern.MatchString(htmlBody)
}

var (
	tocHeadingPattern   = regexp.MustCompile(`(?im)^#{1,6}\s*(table of contents|contents)\s*$`)
	anchorOnlyLine      = regexp.MustCompile(`(?m)^\s*[-*]\s*\[[^\]]*\]\(#[^)]*\)\s*$`)
	blankLineCollapse   = regexp.MustCompile(`\n{3,}`)
	setextH1            = regexp.MustCompile(`(?m)^(.+)\n=+\s*$`)
	setextH2            = regexp.MustCompile(`(?m)^(.+)\n-+\s*$`)
	escapedUnderscore   = regexp.MustCompile("`[^`]*`")
	mojibakeReplacer    = strings.NewReplacer("â€™", "'", "â€œ", "“", "â€\x9d", "”", "â€“", "–", "Â ", " ")
	sanitizePolicy      = newHTMLSanitizePolicy()
)

func newHTMLSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "id").Globally()
	p.AllowAttrs("data-reactroot", "ng-version").Globally()
	p.RequireNoFollowOnLinks(true)
	return p
}

// sanitizeMarkdown implements spec §4.4 step 4: strip TOC blocks and
// anchor-only lists, collapse blank-line runs, normalize setext
// headings to ATX, unescape underscores accidentally escaped inside
// code fences, and fix common mojibake.
func sanitizeMarkdown(body string) string {
	body = mojibakeReplacer.Replace(body)
	body = tocHeadingPattern.ReplaceAllString(body, "")
	body = anchorOnlyLine.ReplaceAllString(body, "")
	body = setextH1.ReplaceAllString(body, "# $1")
	body = setextH2.ReplaceAllString(body, "## $1")
	body = escapedUnderscore.ReplaceAllStringFunc(body, func(code string) string {
		return strings.ReplaceAll(code, `\_`, "_")
	})
	body = blankLineCollapse.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// sanitizeHTML strips executable/unsafe content before any further
// processing, using the same whitelist-based approach the rest of the
// corpus's HTML sanitization relies on.
func sanitizeHTML(htmlBody string) string {
	return sanitizePolicy.Sanitize(htmlBody)
}

var markdownLinkPattern = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)

// extractLinks finds every link in a converted Markdown body, both
// HTML-origin (already converted to `[text](url)`) and plain Markdown
// links written in the source.
func extractLinks(markdown, baseURL string) []string {
	var links []string
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(markdown, -1) {
		if resolved := resolveRelative(baseURL, m[1]); resolved != "" {
			links = append(links, resolved)
		}
	}
	return links
}

// extractLinksFromHTML collects raw <a href> targets before Markdown
// conversion, used for the link-count sparse-page check (conversion
// can drop links the readability pass discarded from the main body).
func extractLinksFromHTML(htmlBody, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if resolved := resolveRelative(baseURL, href); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links
}
