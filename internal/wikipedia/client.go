// Package wikipedia looks up topic background on Wikipedia: search, REST
// summaries, lead paragraphs from the parse API and full page text.
package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
)

const (
	DefaultUserAgent = "wikiwriter/1.0 (https://github.com/mohammad-safakhou/wikiwriter)"
	DefaultBaseURL   = "https://{lang}.wikipedia.org"
	DefaultMaxChars  = 1600
	defaultCacheSize = 128
	maxLeadParas     = 3
	maxExternalLinks = 5
	minLeadBudget    = 400
)

var (
	// ErrNoResults is returned when a search finds no page in any language tried.
	ErrNoResults = errors.New("no wikipedia results")
	// ErrPageNotFound is returned when a page or summary does not exist.
	ErrPageNotFound = errors.New("wikipedia page not found")
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string // "{lang}" is replaced by the language code
	UserAgent  string
	MaxChars   int
	CacheSize  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to the Wikipedia REST and MediaWiki APIs.
type Client struct {
	baseURL   string
	userAgent string
	maxChars  int
	http      *http.Client
	cache     *lru.Cache[string, Page]
	logger    *log.Logger
}

// New returns a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[WIKI] ", log.LstdFlags)
	}
	cache, err := lru.New[string, Page](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("wikipedia cache: %w", err)
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		maxChars:  opts.MaxChars,
		http:      opts.HTTPClient,
		cache:     cache,
		logger:    opts.Logger,
	}, nil
}

// Summary is the subset of the REST page summary the client uses.
type Summary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Link is an external reference found on a page.
type Link struct {
	Title string
	URL   string
}

// Page is the background gathered for one topic.
type Page struct {
	Language      string
	Title         string
	URL           string
	Extract       string
	Lead          string
	ExternalLinks []Link
}

// Text renders the page as compact research notes.
func (p Page) Text() string {
	parts := []string{fmt.Sprintf("[Wikipedia:%s] %s (%s)", p.Language, p.Title, p.URL)}
	if s := strings.TrimSpace(p.Extract); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(p.Lead); s != "" {
		parts = append(parts, s)
	}
	if len(p.ExternalLinks) > 0 {
		lines := []string{fmt.Sprintf("External references (max %d):", maxExternalLinks)}
		for i, l := range p.ExternalLinks {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, l.URL))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func (c *Client) site(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	return strings.ReplaceAll(c.baseURL, "{lang}", lang)
}

// PageURL returns the canonical article URL for title.
func (c *Client) PageURL(lang, title string) string {
	raw := c.site(lang) + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	if canon, err := helpers.CanonicalURL(raw); err == nil {
		return canon
	}
	return raw
}

// Search returns up to limit page titles matching query.
func (c *Client) Search(ctx context.Context, lang, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(limit))
	params.Set("format", "json")
	params.Set("utf8", "1")

	var resp struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, c.site(lang)+"/w/api.php?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		if hit.Title != "" {
			titles = append(titles, hit.Title)
		}
	}
	return titles, nil
}

// Summary fetches the REST summary of a page.
func (c *Client) Summary(ctx context.Context, lang, title string) (*Summary, error) {
	var s Summary
	endpoint := c.site(lang) + "/api/rest_v1/page/summary/" + url.PathEscape(title)
	if err := c.getJSON(ctx, endpoint, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Lead returns up to three lead paragraphs of a page, cut to maxChars, and up
// to five of its external links.
func (c *Client) Lead(ctx context.Context, lang, title string, maxChars int) (string, []Link, error) {
	if maxChars <= 0 {
		maxChars = c.maxChars
	}
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "text|externallinks")
	params.Set("format", "json")
	params.Set("utf8", "1")

	var resp struct {
		Parse struct {
			Text struct {
				HTML string `json:"*"`
			} `json:"text"`
			ExternalLinks []string `json:"externallinks"`
		} `json:"parse"`
	}
	if err := c.getJSON(ctx, c.site(lang)+"/w/api.php?"+params.Encode(), &resp); err != nil {
		return "", nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Parse.Text.HTML))
	if err != nil {
		return "", nil, fmt.Errorf("parse lead html: %w", err)
	}
	var paras []string
	total := 0
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		inner, err := sel.Html()
		if err != nil {
			return true
		}
		text := helpers.PlainText(inner)
		if text == "" {
			return true
		}
		if total+len(text)+1 > maxChars {
			return false
		}
		paras = append(paras, text)
		total += len(text) + 1
		return len(paras) < maxLeadParas
	})

	links := make([]Link, 0, maxExternalLinks)
	for _, raw := range resp.Parse.ExternalLinks {
		if len(links) >= maxExternalLinks {
			break
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		links = append(links, Link{Title: linkTitle(raw), URL: raw})
	}
	return strings.Join(paras, "\n\n"), links, nil
}

// Document is the readable content of an arbitrary page.
type Document struct {
	URL   string
	Title string
	Text  string
}

// Fetch downloads pageURL and extracts its main text with readability.
func (c *Client) Fetch(ctx context.Context, pageURL string, maxChars int) (Document, error) {
	if maxChars <= 0 {
		maxChars = c.maxChars
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return Document{}, err
	}
	defer body.Close()

	art, err := readability.FromReader(body, parsed)
	if err != nil {
		return Document{}, fmt.Errorf("readability %s: %w", pageURL, err)
	}
	text := strings.TrimSpace(art.TextContent)
	if len(text) > maxChars {
		text = truncate(text, maxChars)
	}
	return Document{URL: pageURL, Title: strings.TrimSpace(art.Title), Text: text}, nil
}

// Lookup searches lang for query, falling back to English when nothing is
// found, and gathers summary, lead and external links of the best hit.
func (c *Client) Lookup(ctx context.Context, lang, query string) (Page, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Page{}, errors.New("empty wikipedia query")
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	key := lang + "|" + strings.ToLower(query)
	if page, ok := c.cache.Get(key); ok {
		return page, nil
	}

	usedLang := lang
	titles, err := c.Search(ctx, lang, query, 5)
	if err != nil {
		return Page{}, err
	}
	if len(titles) == 0 && lang != "en" {
		usedLang = "en"
		if titles, err = c.Search(ctx, usedLang, query, 5); err != nil {
			return Page{}, err
		}
	}
	if len(titles) == 0 {
		return Page{}, fmt.Errorf("%w for %q", ErrNoResults, query)
	}

	title := titles[0]
	page := Page{Language: usedLang, Title: title}
	summary, err := c.Summary(ctx, usedLang, title)
	switch {
	case err == nil:
		page.Extract = strings.TrimSpace(summary.Extract)
		if summary.ContentURLs.Desktop.Page != "" {
			if canon, cerr := helpers.CanonicalURL(summary.ContentURLs.Desktop.Page); cerr == nil {
				page.URL = canon
			}
		}
	case errors.Is(err, ErrPageNotFound):
	default:
		c.logger.Printf("summary %s/%s: %v", usedLang, title, err)
	}
	if page.URL == "" {
		page.URL = c.PageURL(usedLang, title)
	}

	budget := c.maxChars - len(page.Extract)
	if budget < minLeadBudget {
		budget = minLeadBudget
	}
	lead, links, err := c.Lead(ctx, usedLang, title, budget)
	if err != nil {
		c.logger.Printf("lead %s/%s: %v", usedLang, title, err)
	}
	page.Lead = lead
	page.ExternalLinks = links

	c.cache.Add(key, page)
	return page, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("wikipedia %s: status %d", endpoint, resp.StatusCode)
	}
	return resp.Body, nil
}

func linkTitle(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	title := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if title == "" {
		return "link"
	}
	return truncate(title, 60)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
