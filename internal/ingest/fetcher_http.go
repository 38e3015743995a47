package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrTooLarge   = errors.New("remote file exceeds size limit")
	ErrInvalidURL = errors.New("invalid URL")
)

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("fc00::/7"),
}

var googleSheetRe = regexp.MustCompile(`^/spreadsheets/d/([A-Za-z0-9_-]+)`)

type FetchConfig struct {
	Timeout      time.Duration
	RateLimitRPS float64
	MaxBytes     int64
	MaxRetries   int
	// AllowPrivate disables the private address check. Only tests set it.
	AllowPrivate bool
}

// RemoteFile is a downloaded spreadsheet. Name carries the extension the
// decoder dispatches on.
type RemoteFile struct {
	Name        string
	ContentType string
	Body        []byte
}

// RemoteFetcher downloads spreadsheets for import-by-URL with a per-host
// rate limit and a dialer that refuses private networks.
type RemoteFetcher struct {
	cfg      FetchConfig
	client   *http.Client
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRemoteFetcher(cfg FetchConfig) *RemoteFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 32 << 20
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	dial := safeDialContext
	if cfg.AllowPrivate {
		dial = (&net.Dialer{Timeout: 30 * time.Second}).DialContext
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	checkRedirect := safeCheckRedirect
	if cfg.AllowPrivate {
		checkRedirect = nil
	}
	return &RemoteFetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:       cfg.Timeout,
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *RemoteFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RateLimitRPS), 1)
		f.limiters[host] = l
	}
	return l
}

// Fetch downloads rawURL. Google Sheets edit links are rewritten to their
// xlsx export.
func (f *RemoteFetcher) Fetch(ctx context.Context, rawURL string) (*RemoteFile, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host missing", ErrInvalidURL)
	}
	rewriteGoogleSheet(u)
	limiter := f.limiter(u.Hostname())

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		file, status, err := f.fetchOnce(ctx, u)
		if err == nil {
			return file, nil
		}
		lastErr = err
		if !shouldRetry(err, status) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (f *RemoteFetcher) fetchOnce(ctx context.Context, u *url.URL) (*RemoteFile, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "tender-scout/1.0")
	req.Header.Set("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,text/csv,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, resp.StatusCode, ErrTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, resp.StatusCode, ErrTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	return &RemoteFile{
		Name:        remoteFileName(u, resp.Header.Get("Content-Disposition"), ct),
		ContentType: ct,
		Body:        body,
	}, resp.StatusCode, nil
}

// Reader exposes the body for sheets.Open.
func (r *RemoteFile) Reader() io.Reader { return bytes.NewReader(r.Body) }

func rewriteGoogleSheet(u *url.URL) {
	if !strings.EqualFold(u.Hostname(), "docs.google.com") {
		return
	}
	m := googleSheetRe.FindStringSubmatch(u.Path)
	if m == nil || strings.HasSuffix(u.Path, "/export") {
		return
	}
	u.Path = "/spreadsheets/d/" + m[1] + "/export"
	u.RawQuery = "format=xlsx"
	u.Fragment = ""
}

// remoteFileName prefers the server-supplied name, then the URL path, and
// fills in an extension from the content type when neither carries one.
func remoteFileName(u *url.URL, disposition, contentType string) string {
	name := ""
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			name = path.Base(params["filename"])
		}
	}
	if name == "" || name == "." || name == "/" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	if path.Ext(name) != "" {
		return name
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "text/csv", "application/csv":
		return name + ".csv"
	default:
		return name + ".xlsx"
	}
}

// safeDialContext wraps the default dialer to block private IPs
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// safeCheckRedirect limits redirects and validates destinations
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return fmt.Errorf("redirect host resolved to no addresses")
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}
	return nil
}

// shouldRetry determines if an error or status code should trigger a retry
func shouldRetry(err error, statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	if statusCode == 0 && err != nil {
		var netErr net.Error
		return errors.As(err, &netErr) && netErr.Timeout()
	}
	return false
}
