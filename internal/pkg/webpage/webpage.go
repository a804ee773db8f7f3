// Package webpage fetches a URL and extracts its readable article text.
package webpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrTooLarge   = errors.New("page body too large")
)

const userAgent = "docuchat/1.0"

// Article is the readable content extracted from a web page.
type Article struct {
	Title    string
	SiteName string
	Excerpt  string
	Text     string
}

// Fetch downloads rawURL with the given client (the context carries the
// deadline) and extracts the main article text. Bodies larger than
// maxBytes are rejected.
func Fetch(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) (*Article, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch url failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read page body failed: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, ErrTooLarge
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article failed: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = parsed.Host
	}
	return &Article{
		Title:    title,
		SiteName: article.SiteName,
		Excerpt:  article.Excerpt,
		Text:     strings.TrimSpace(article.TextContent),
	}, nil
}
