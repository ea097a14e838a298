package commons

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIURL       = "https://commons.wikimedia.org"
	defaultThumbnailURL = "https://tools.wmflabs.org"
	defaultUserAgent    = "CommonsTagBot/1.0"
	defaultMaxBytes     = 5 << 20

	// fileNamespace is the MediaWiki namespace holding uploaded files.
	fileNamespace = 6
)

// Attempt failures. Callers only need to know an attempt failed; the kinds
// exist for logging.
var (
	ErrNetwork     = errors.New("network error")
	ErrBadStatus   = errors.New("bad status")
	ErrParse       = errors.New("parse error")
	ErrMissingData = errors.New("missing data")
	ErrTooLarge    = errors.New("payload too large")
)

// acceptedTypes lists the lower-cased file extensions considered usable.
var acceptedTypes = map[string]struct{}{
	"jpeg": {},
	"png":  {},
	"jpg":  {},
	"gif":  {},
}

// ResolvedImage pairs a file name with a size-bounded download URL.
type ResolvedImage struct {
	Name string
	URL  string
}

// Client talks to the Wikimedia Commons API and the thumbnail metadata service.
type Client struct {
	httpClient   *http.Client
	apiURL       string
	thumbnailURL string
	userAgent    string
	maxBytes     int64
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL sets the Commons API base URL (for testing).
func WithAPIURL(u string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(u, "/")
	}
}

// WithThumbnailURL sets the thumbnail metadata service base URL.
func WithThumbnailURL(u string) Option {
	return func(c *Client) {
		c.thumbnailURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBytes caps the size of downloaded images.
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		c.maxBytes = n
	}
}

// NewClient creates a new Commons client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		apiURL:       defaultAPIURL,
		thumbnailURL: defaultThumbnailURL,
		userAgent:    defaultUserAgent,
		maxBytes:     defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSupportedFileType reports whether name has an accepted image extension.
func IsSupportedFileType(name string) bool {
	if name == "" {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	_, ok := acceptedTypes[ext]
	return ok
}

// FilterSupported keeps the names with an accepted extension, preserving order.
func FilterSupported(names []string) []string {
	supported := make([]string, 0, len(names))
	for _, name := range names {
		if IsSupportedFileType(name) {
			supported = append(supported, name)
		}
	}
	return supported
}

// RandomFiles returns up to limit random file titles with a supported extension.
func (c *Client) RandomFiles(ctx context.Context, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "random")
	q.Set("rnnamespace", strconv.Itoa(fileNamespace))
	q.Set("rnlimit", strconv.Itoa(limit))
	q.Set("format", "json")

	resp, err := c.get(ctx, c.apiURL+"/w/api.php?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch random files: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Query struct {
			Random []struct {
				Title string `json:"title"`
			} `json:"random"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode random files: %w: %w", ErrParse, err)
	}

	names := make([]string, 0, len(result.Query.Random))
	for _, item := range result.Query.Random {
		names = append(names, item.Title)
	}
	return FilterSupported(names), nil
}

type thumbnailResponse struct {
	XMLName  xml.Name `xml:"response"`
	Versions []struct {
		Version []struct {
			ThumbURL []string `xml:"thumburl"`
		} `xml:"version"`
	} `xml:"versions"`
}

// Thumbnail resolves name to a thumbnail URL bounded by width x height.
func (c *Client) Thumbnail(ctx context.Context, name string, width, height int) (*ResolvedImage, error) {
	q := url.Values{}
	q.Set("image", name)
	q.Set("thumbwidth", strconv.Itoa(width))
	q.Set("thumbheight", strconv.Itoa(height))
	// versions is a bare flag; the service only checks for its presence.
	reqURL := c.thumbnailURL + "/magnus-toolserver/commonsapi.php?" + q.Encode() + "&versions"

	resp, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail %q: %w", name, err)
	}
	defer resp.Body.Close()

	var meta thumbnailResponse
	if err := xml.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode thumbnail %q: %w: %w", name, ErrParse, err)
	}

	if len(meta.Versions) == 0 || len(meta.Versions[0].Version) == 0 {
		return nil, fmt.Errorf("thumbnail %q: %w: no versions", name, ErrMissingData)
	}
	thumbs := meta.Versions[0].Version[0].ThumbURL
	if len(thumbs) == 0 || strings.TrimSpace(thumbs[0]) == "" {
		return nil, fmt.Errorf("thumbnail %q: %w: no thumburl", name, ErrMissingData)
	}

	return &ResolvedImage{
		Name: name,
		URL:  strings.TrimSpace(thumbs[0]),
	}, nil
}

// Download returns the raw bytes served at rawURL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w: %w", ErrNetwork, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("download image: %w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}
	return data, nil
}

// get issues a GET and returns the response only when the status is 200.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return resp, nil
}
