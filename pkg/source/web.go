package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/quill/internal/models"
)

type WebSourceConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
}

// WebSource crawls a documentation site and exposes its pages as
// documents. The document id is the page URL. The version token is the
// Last-Modified or ETag response header when the server provides one, and
// a content hash otherwise.
type WebSource struct {
	config   WebSourceConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string

	// Page text from the most recent crawl, keyed by URL. Rebuilt on every
	// ListCurrent so Read does not refetch within one ingestion run.
	mu    sync.Mutex
	pages map[string]string
}

func NewWebSourceWithConfig(config WebSourceConfig) (*WebSource, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %s", config.BaseURL)
	}

	return &WebSource{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		pages:    make(map[string]string),
	}, nil
}

func (s *WebSource) SourceID() string {
	return "web:" + s.baseHost
}

// ListCurrent crawls breadth-first from the base URL up to MaxDepth,
// staying on the base host.
func (s *WebSource) ListCurrent(ctx context.Context) ([]models.Listing, error) {
	pages := make(map[string]string)
	var listings []models.Listing

	type item struct {
		url   string
		depth int
	}
	visited := map[string]bool{s.config.BaseURL: true}
	queue := []item{{url: s.config.BaseURL, depth: 0}}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		text, version, links, err := s.fetch(ctx, next.url)
		if err != nil {
			if next.url == s.config.BaseURL {
				return nil, err
			}
			// Linked pages that fail to load are skipped; only the root
			// counts as source unavailability.
			continue
		}

		pages[next.url] = text
		listings = append(listings, models.Listing{DocumentID: next.url, Version: version})

		if next.depth >= s.config.MaxDepth {
			continue
		}
		for _, link := range links {
			if !visited[link] && s.shouldProcessURL(link) {
				visited[link] = true
				queue = append(queue, item{url: link, depth: next.depth + 1})
			}
		}
	}

	s.mu.Lock()
	s.pages = pages
	s.mu.Unlock()

	sort.Slice(listings, func(i, j int) bool { return listings[i].DocumentID < listings[j].DocumentID })
	return listings, nil
}

func (s *WebSource) Read(ctx context.Context, documentID string) ([]byte, error) {
	s.mu.Lock()
	text, ok := s.pages[documentID]
	s.mu.Unlock()
	if ok {
		return []byte(text), nil
	}

	text, _, _, err := s.fetch(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// fetch retrieves one page and returns its text content, version token and
// outgoing same-site links.
func (s *WebSource) fetch(ctx context.Context, pageURL string) (text, version string, links []string, err error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", nil, fmt.Errorf("fetch %s: %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	doc.Find("script, style, nav, footer").Remove()
	text = cleanContent(doc.Find("body").Text())

	base, _ := url.Parse(pageURL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		links = append(links, resolved.String())
	})

	version = resp.Header.Get("Last-Modified")
	if version == "" {
		version = resp.Header.Get("ETag")
	}
	if version == "" {
		sum := sha1.Sum([]byte(text))
		version = hex.EncodeToString(sum[:])
	}
	return text, version, links, nil
}

func (s *WebSource) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Host != s.baseHost {
		return false
	}

	lower := strings.ToLower(parsedURL.Path)
	ext := path.Ext(lower)
	validExt := false
	for _, allowed := range s.config.AllowedExtensions {
		switch allowed {
		case "/":
			validExt = validExt || strings.HasSuffix(lower, "/")
		case "":
			validExt = validExt || ext == ""
		default:
			validExt = validExt || ext == strings.ToLower(allowed)
		}
		if validExt {
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}
	return true
}

func cleanContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}
