// Package linkcheck verifies the anchors of the HTML pages of a generated
// site.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultWorkers = 10
)

// ErrBrokenLink is wrapped by every broken-link error returned by CheckSite.
var ErrBrokenLink = errors.New("broken link")

// Result is the outcome of checking one URL.
type Result struct {
	URL    string
	Valid  bool
	Status int
	Err    error
}

// Checker checks links with bounded concurrency.
type Checker struct {
	HTTP    *http.Client
	Workers int
	Logger  *zap.Logger
}

// New returns a Checker with the default timeout and worker count.
func New(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		Workers: DefaultWorkers,
		Logger:  logger,
	}
}

// FindHTMLFiles returns the .html and .htm files below root as slash
// separated paths relative to root, sorted.
func FindHTMLFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".html", ".htm":
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// ExtractLinks returns the href of every anchor in r, resolved against base,
// keeping only http and https URLs.
func ExtractLinks(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var links []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(a.Val))
				if err != nil {
					break
				}
				u := ref
				if base != nil {
					u = base.ResolveReference(ref)
				}
				if u.Scheme == "http" || u.Scheme == "https" {
					links = append(links, u.String())
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return links, nil
}

// Check sends a HEAD request to every URL, following redirects. A status
// below 400 is valid. Results are returned in input order.
func (c *Checker) Check(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	workers := c.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g.SetLimit(workers)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = c.checkOne(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Checker) checkOne(ctx context.Context, u string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return Result{URL: u, Err: err}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{URL: u, Err: err}
	}
	_ = resp.Body.Close()
	return Result{URL: u, Valid: resp.StatusCode < 400, Status: resp.StatusCode}
}

// CheckPage fetches pageURL and checks every link it holds.
func (c *Checker) CheckPage(ctx context.Context, pageURL string) ([]Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cannot fetch %s: HTTP %d", pageURL, resp.StatusCode)
	}
	links, err := ExtractLinks(resp.Body, base)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", pageURL, err)
	}
	return c.Check(ctx, links), nil
}

// CheckEndpoint checks the pages served at endpoint. It returns the number of
// broken links and an aggregate of every failure.
func (c *Checker) CheckEndpoint(ctx context.Context, endpoint string, pages []string) (int, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return 0, err
	}
	var merr *multierror.Error
	broken := 0
	for _, p := range pages {
		pageURL := base.ResolveReference(&url.URL{Path: p}).String()
		c.Logger.Info("checking links", zap.String("page", pageURL))
		results, err := c.CheckPage(ctx, pageURL)
		if err != nil {
			c.Logger.Warn("cannot check page", zap.String("page", pageURL), zap.Error(err))
			merr = multierror.Append(merr, err)
			continue
		}
		for _, r := range results {
			if r.Valid {
				c.Logger.Debug("valid", zap.String("url", r.URL), zap.Int("status", r.Status))
				continue
			}
			broken++
			c.Logger.Warn("broken", zap.String("url", r.URL), zap.Int("status", r.Status), zap.Error(r.Err))
			merr = multierror.Append(merr, brokenErr(pageURL, r))
		}
	}
	return broken, merr.ErrorOrNil()
}

func brokenErr(page string, r Result) error {
	switch {
	case r.Err != nil:
		return fmt.Errorf("%w in %s: %s: %v", ErrBrokenLink, page, r.URL, r.Err)
	default:
		return fmt.Errorf("%w in %s: %s: HTTP %d", ErrBrokenLink, page, r.URL, r.Status)
	}
}

// CheckSite serves root on a loopback port and checks every HTML page below
// it.
func (c *Checker) CheckSite(ctx context.Context, root string) (int, error) {
	pages, err := FindHTMLFiles(root)
	if err != nil {
		return 0, err
	}
	c.Logger.Info("found html files", zap.Int("count", len(pages)), zap.String("root", root))
	if len(pages) == 0 {
		return 0, nil
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("cannot start local server: %w", err)
	}
	srv := &http.Server{
		Handler:           http.FileServer(http.Dir(root)),
		ReadHeaderTimeout: DefaultTimeout,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return c.CheckEndpoint(ctx, "http://"+ln.Addr().String()+"/", pages)
}
