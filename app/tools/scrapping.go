package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

const maxFetchSize = 5 << 20

type scraper struct {
	sandbox *Sandbox
	client  *http.Client
}

func newScraper(sandbox *Sandbox) *scraper {
	return &scraper{
		sandbox: sandbox,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *scraper) tools() []Tool {
	htmlParams := func(what string) *Parameter {
		return objectParams([]string{"html"}, map[string]any{
			"html":     stringParam("The HTML content to extract " + what + " from."),
			"filename": stringParam("Optional. Save the output to this workspace file."),
		})
	}
	return []Tool{
		{
			Name:        fetch_page,
			Description: `Fetch a web page and return it as markdown. Parameters: {"url": string, "filename": string (optional)}`,
			Parameters: objectParams([]string{"url"}, map[string]any{
				"url":      stringParam("The http(s) URL to fetch."),
				"filename": stringParam("Optional. Save the markdown to this workspace file."),
			}),
			Handler: s.handler(fetch_page, s.fetchPage),
		},
		{
			Name:        extract_links_html,
			Description: `Extract all links from HTML content. Parameters: {"html": string, "filename": string (optional)}`,
			Parameters:  htmlParams("links"),
			Handler:     s.handler(extract_links_html, s.extractLinks),
		},
		{
			Name:        extract_text_content,
			Description: `Extract visible text from HTML content. Parameters: {"html": string, "filename": string (optional)}`,
			Parameters:  htmlParams("text"),
			Handler:     s.handler(extract_text_content, s.extractText),
		},
		{
			Name:        extract_meta_tags,
			Description: `Extract the title and meta tags from HTML content. Parameters: {"html": string, "filename": string (optional)}`,
			Parameters:  htmlParams("meta tags"),
			Handler:     s.handler(extract_meta_tags, s.extractMetaTags),
		},
	}
}

func (s *scraper) handler(op string, f func(context.Context, ExtractAction) (string, error)) HandlerFunc {
	return func(ctx context.Context, p map[string]any) (any, error) {
		return withParsed[ExtractAction](p, op, func(a ExtractAction) (string, error) {
			out, err := f(ctx, a)
			if err != nil || a.Filename == "" {
				return out, err
			}
			if _, err = s.sandbox.writeFile(a.Filename, out); err != nil {
				return "", err
			}
			return out, nil
		})
	}
}

func (s *scraper) fetchPage(ctx context.Context, a ExtractAction) (string, error) {
	if a.URL == "" {
		return "", errors.New("invalid parameters: 'url' is required")
	}
	u, err := url.Parse(a.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid url: %s", a.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", a.URL).Msg("❌ Error fetching URL content")
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("url", a.URL).Msg("⚠️ Unexpected status code")
		return "", fmt.Errorf("failed to fetch URL content: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return "", err
	}

	converter := md.NewConverter(u.Scheme+"://"+u.Host, true, nil)
	markdown, err := converter.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	log.Info().Str("url", a.URL).Int("bytes", len(body)).Msg("✅ Page fetched")
	return markdown, nil
}

func (s *scraper) extractLinks(_ context.Context, a ExtractAction) (string, error) {
	doc, err := parseHTML(a.HTML)
	if err != nil {
		return "", err
	}

	var links []string
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
	})
	return strings.Join(links, " "), nil
}

func (s *scraper) extractText(_ context.Context, a ExtractAction) (string, error) {
	doc, err := parseHTML(a.HTML)
	if err != nil {
		return "", err
	}

	var parts []string
	walk(doc, func(n *html.Node) {
		if n.Type != html.TextNode || n.Parent == nil {
			return
		}
		if n.Parent.Data == "script" || n.Parent.Data == "style" {
			return
		}
		if t := strings.TrimSpace(n.Data); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " "), nil
}

func (s *scraper) extractMetaTags(_ context.Context, a ExtractAction) (string, error) {
	doc, err := parseHTML(a.HTML)
	if err != nil {
		return "", err
	}

	meta := map[string]string{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if n.Data == "title" && n.FirstChild != nil {
			meta["title"] = strings.TrimSpace(n.FirstChild.Data)
		}
		if n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name", "property":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if name != "" {
				meta[name] = content
			}
		}
	})

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+meta[k])
	}
	return strings.Join(lines, "\n"), nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func parseHTML(s string) (*html.Node, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("invalid parameters: 'html' is required")
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		log.Error().Err(err).Msg("❌ Error parsing HTML content")
		return nil, err
	}
	return doc, nil
}
