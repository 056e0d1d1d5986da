package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	maxBody    = 2 * 1024 * 1024
	defaultMax = 2000
)

// Fetcher retrieves the readable text of a linked page, used as extra
// prompt context for experience entries
type Fetcher struct {
	client   *http.Client
	maxChars int
}

// New creates a Fetcher; maxChars <= 0 keeps the default excerpt size
func New(client *http.Client, maxChars int) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = defaultMax
	}
	return &Fetcher{client: client, maxChars: maxChars}
}

// Excerpt fetches rawURL and returns its text, truncated
func (f *Fetcher) Excerpt(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "cvvault/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text := extractText(string(body))
	if text == "" {
		return "", fmt.Errorf("no text content found")
	}
	if r := []rune(text); len(r) > f.maxChars {
		text = string(r[:f.maxChars]) + "..."
	}
	return text, nil
}

// IsURL reports whether s is an absolute http(s) link
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	skip := map[string]bool{
		"script": true, "style": true, "nav": true,
		"header": true, "footer": true, "aside": true,
		"noscript": true, "iframe": true, "head": true,
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}
