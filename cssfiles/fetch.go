package cssfiles

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/h2non/filetype"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"

	"critcss/config"
)

// only the very beginning of the stylesheet may declare its encoding
var charsetRulePattern = regexp.MustCompile(`^@charset\s+"([^"]+)"\s*;`)

// HTTPFetcher retrieves stylesheets over http(s) and from local files
// (file:// scheme).
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	maxSize   int64
	forced    encoding.Encoding
	cache     *lru.Cache[string, string]
	log       *zap.Logger
}

// NewHTTPFetcher creates fetcher from configuration. When forced is not nil
// stylesheet text is always decoded with it.
func NewHTTPFetcher(cfg *config.FetchConfig, forced encoding.Encoding, log *zap.Logger) (*HTTPFetcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))

	f := &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		userAgent: cfg.UserAgent,
		headers:   config.RevealHeaders(cfg.Headers),
		maxSize:   cfg.MaxSize,
		forced:    forced,
		log:       log.Named("css-fetcher"),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, string](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("unable to create fetch cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch returns decoded stylesheet text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cache != nil {
		if text, ok := f.cache.Get(url); ok {
			f.log.Debug("Cached css", zap.String("url", url))
			return text, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Accept", "text/css,*/*;q=0.1")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	// read one byte over the limit to detect oversized content
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("unable to read response: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return "", fmt.Errorf("stylesheet is larger than %d bytes", f.maxSize)
	}

	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return "", fmt.Errorf("binary content (%s) instead of stylesheet", kind.MIME.Value)
	}

	text, err := f.decode(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("unable to decode stylesheet: %w", err)
	}

	f.log.Debug("Fetched css", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Int("bytes", len(data)))
	if f.cache != nil {
		f.cache.Add(url, text)
	}
	return text, nil
}

// decode converts data to UTF-8. Unless encoding is forced it is taken from
// byte order mark, then Content-Type, then @charset rule, then sniffed.
func (f *HTTPFetcher) decode(data []byte, contentType string) (string, error) {
	enc := f.forced
	if enc == nil {
		var name string
		enc, name, _ = charset.DetermineEncoding(data, withCharsetRule(data, contentType))
		f.log.Debug("Detected css encoding", zap.String("encoding", name))
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(out), "\uFEFF"), nil
}

// withCharsetRule adds encoding declared by @charset to content type which
// does not specify one.
func withCharsetRule(data []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
		return contentType
	}
	m := charsetRulePattern.FindSubmatch(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")))
	if m == nil {
		return contentType
	}
	return "text/css; charset=" + string(m[1])
}
