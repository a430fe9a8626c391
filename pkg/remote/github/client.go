// Package github implements remote.Client on top of the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/dyoshikawa/rulesync/pkg/remote"
	"github.com/dyoshikawa/rulesync/pkg/source"
)

const (
	// DefaultBaseURL is the public GitHub API endpoint.
	DefaultBaseURL = "https://api.github.com/"

	rawMediaType = "application/vnd.github.v3.raw"

	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
)

func init() {
	remote.RegisterProvider(source.ProviderGitHub, func(opts remote.Options) (remote.Client, error) {
		return New(opts)
	})
}

// Client is a remote.Client backed by the GitHub REST API.
type Client struct {
	gh          *gh.Client
	httpClient  *http.Client
	maxFileSize int64
	attempts    uint
	delay       time.Duration
}

var _ remote.Client = &Client{}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used as the base transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets how many times a transport failure is attempted and the
// initial backoff between attempts.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts == 0 {
			attempts = 1
		}
		c.attempts = attempts
		c.delay = delay
	}
}

// WithMaxFileSize overrides remote.MaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(c *Client) {
		c.maxFileSize = n
	}
}

// New builds a client. A base URL that is not HTTPS is rejected here rather
// than at request time.
func New(opts remote.Options, clientOpts ...Option) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub API URL %q: %w", base, err)
	}
	if !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return nil, fmt.Errorf("GitHub API URL %q must be an absolute https:// URL", base)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		maxFileSize: remote.MaxFileSize,
		attempts:    defaultRetryAttempts,
		delay:       defaultRetryDelay,
	}
	for _, opt := range clientOpts {
		opt(c)
	}

	hc := &http.Client{}
	if c.httpClient != nil {
		copied := *c.httpClient
		hc = &copied
	}
	hc.Transport = &httpsOnlyTransport{next: hc.Transport}

	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	c.gh = gh.NewClient(hc)
	c.gh.BaseURL = u
	return c, nil
}

func (c *Client) ResolveDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var branch string
	err := c.do(ctx, func() error {
		r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return classify(err)
		}
		branch = r.GetDefaultBranch()
		return nil
	})
	if err != nil {
		return "", err
	}
	if branch == "" {
		return "", &remote.Error{Kind: remote.KindAPI, Message: fmt.Sprintf("repository %s/%s reports no default branch", owner, repo)}
	}
	return branch, nil
}

func (c *Client) ResolveRefToCommit(ctx context.Context, owner, repo, ref string) (string, error) {
	var sha string
	err := c.do(ctx, func() error {
		s, _, err := c.gh.Repositories.GetCommitSHA1(ctx, owner, repo, ref, "")
		if err != nil {
			return classify(err)
		}
		sha = strings.TrimSpace(s)
		return nil
	})
	if err != nil {
		return "", err
	}
	if !remote.IsCommitSHA(sha) {
		return "", &remote.Error{Kind: remote.KindAPI, Message: fmt.Sprintf("ref %q resolved to %q, which is not a commit SHA", ref, sha)}
	}
	return strings.ToLower(sha), nil
}

func (c *Client) ListDirectory(ctx context.Context, owner, repo, path, ref string) ([]remote.Entry, error) {
	var entries []remote.Entry
	err := c.do(ctx, func() error {
		file, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &gh.RepositoryContentGetOptions{Ref: ref})
		if err != nil {
			return classify(err)
		}
		if file != nil {
			return &remote.Error{Kind: remote.KindNotFound, StatusCode: http.StatusNotFound, Message: fmt.Sprintf("%s is not a directory", path)}
		}
		entries = make([]remote.Entry, 0, len(dir))
		for _, item := range dir {
			entries = append(entries, remote.Entry{
				Name: item.GetName(),
				Path: item.GetPath(),
				SHA:  item.GetSHA(),
				Size: int64(item.GetSize()),
				Type: remote.EntryType(item.GetType()),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetFileContent downloads the raw file. The declared Content-Length is
// checked before reading, and the body is read through a limit so an
// undeclared oversized body is never fully buffered.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(repo), escapePath(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var data []byte
	err := c.do(ctx, func() error {
		req, err := c.gh.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("building request for %s: %w", path, err)
		}
		req.Header.Set("Accept", rawMediaType)

		resp, err := c.gh.BareDo(ctx, req)
		if err != nil {
			return classify(err)
		}
		defer resp.Body.Close()

		if resp.ContentLength > c.maxFileSize {
			return &remote.FileTooLargeError{Path: path, Size: resp.ContentLength, Limit: c.maxFileSize}
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFileSize+1))
		if err != nil {
			return remote.NewTransportError(fmt.Errorf("reading %s: %w", path, err))
		}
		if int64(len(body)) > c.maxFileSize {
			return &remote.FileTooLargeError{Path: path, Limit: c.maxFileSize}
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) GetLatestRelease(ctx context.Context, owner, repo string) (*remote.Release, error) {
	var rel *remote.Release
	err := c.do(ctx, func() error {
		r, _, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
		if err != nil {
			return classify(err)
		}
		rel = &remote.Release{TagName: r.GetTagName(), Name: r.GetName()}
		if ts := r.GetPublishedAt(); !ts.Time.IsZero() {
			rel.PublishedAt = ts.Time.UTC().Format(time.RFC3339)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (c *Client) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	err := c.do(ctx, func() error {
		_, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return classify(err)
		}
		return nil
	})
	if remote.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// do runs op, retrying only transport failures.
func (c *Client) do(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return remote.KindOf(err) == remote.KindTransport && ctx.Err() == nil
		}),
	)
}

func classify(err error) error {
	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		return &remote.Error{Kind: remote.KindForbidden, StatusCode: statusOf(rle.Response), Message: rle.Message, RateLimited: true}
	}
	var are *gh.AbuseRateLimitError
	if errors.As(err, &are) {
		return &remote.Error{Kind: remote.KindForbidden, StatusCode: statusOf(are.Response), Message: are.Message, RateLimited: true}
	}
	var er *gh.ErrorResponse
	if errors.As(err, &er) {
		return remote.NewStatusError(statusOf(er.Response), er.Message)
	}
	return remote.NewTransportError(err)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// httpsOnlyTransport refuses to send anything over plain HTTP, including
// requests produced by redirects.
type httpsOnlyTransport struct {
	next http.RoundTripper
}

func (t *httpsOnlyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !strings.EqualFold(req.URL.Scheme, "https") {
		return nil, fmt.Errorf("refusing non-HTTPS request to %s", req.URL.Redacted())
	}
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}
