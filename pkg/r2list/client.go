// Package r2list pages through an S3-compatible bucket listing using the
// ListObjectsV2 API, with SigV4-signed requests and two pagination
// strategies: server continuation tokens, and a start-after fallback for
// backends that omit the token on truncated results.
package r2list

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/datlabs/r2recon/pkg/retry"
	"github.com/datlabs/r2recon/pkg/sigv4"
)

const (
	maxKeysCeiling = 1000
	defaultMaxKeys = 1000
)

// Config wires up a listing client. Endpoint overrides the default R2 host,
// which tests use to point at a local fake server.
type Config struct {
	AccountID   string
	Endpoint    string
	Credentials sigv4.Credentials
	Retry       retry.Policy

	// HTTPClient defaults to a retryablehttp client with transport-level
	// retries disabled; the retry policy above owns all retry behavior so
	// it stays identical for listing and catalog calls.
	HTTPClient *http.Client

	// Now defaults to time.Now. Injectable so signatures are reproducible
	// in tests.
	Now func() time.Time
}

type Client struct {
	endpoint string
	creds    sigv4.Credentials
	policy   retry.Policy
	http     *http.Client
	now      func() time.Time
}

// ListRequest describes one page request. At most one of Cursor and
// StartAfter is sent; Cursor wins when both are set.
type ListRequest struct {
	Bucket     string
	Prefix     string
	Cursor     string
	StartAfter string
	Delimiter  string
	MaxKeys    int
}

func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := retryablehttp.NewClient()
		rc.Logger = stdlog.New(io.Discard, "", 0)
		rc.RetryMax = 0
		httpClient = rc.StandardClient()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		endpoint: endpoint,
		creds:    cfg.Credentials,
		policy:   cfg.Retry,
		http:     httpClient,
		now:      now,
	}
}

// List fetches one page of objects. Transient failures are retried; the
// request is re-signed with a fresh timestamp on every attempt.
func (c *Client) List(ctx context.Context, req ListRequest) (*Page, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	var page *Page
	err = retry.Do(ctx, "list "+req.Bucket, c.policy, func() error {
		signed, err := sigv4.Sign(http.MethodGet, target, c.creds, c.now())
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, signed.Method, signed.URL, nil)
		if err != nil {
			return err
		}
		for name, value := range signed.Headers {
			if name == "Host" {
				httpReq.Host = value
				continue
			}
			httpReq.Header.Set(name, value)
		}

		res, err := c.http.Do(httpReq)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return err
		}
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("list objects: status %d: %s", res.StatusCode, snippet(body))
		}

		page, err = ParsePage(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) buildURL(req ListRequest) (string, error) {
	if req.Bucket == "" {
		return "", fmt.Errorf("list objects: bucket is required")
	}

	q := url.Values{}
	q.Set("list-type", "2")
	q.Set("max-keys", strconv.Itoa(clampMaxKeys(req.MaxKeys)))
	if req.Prefix != "" {
		q.Set("prefix", req.Prefix)
	}
	if req.Delimiter != "" {
		q.Set("delimiter", req.Delimiter)
	}
	switch {
	case req.Cursor != "":
		q.Set("continuation-token", req.Cursor)
	case req.StartAfter != "":
		q.Set("start-after", req.StartAfter)
	}

	return c.endpoint + "/" + req.Bucket + "?" + q.Encode(), nil
}

// Advance computes the request for the next page, or reports false when
// pagination is complete. The primary strategy follows the server's
// continuation token. When the server returns a full page without a token
// (some backends do, even though more data exists), the last key of the
// current page becomes the start-after key; terminating instead would
// silently truncate the scan.
func Advance(req ListRequest, page *Page) (ListRequest, bool) {
	next := req
	next.Cursor = ""
	next.StartAfter = ""

	if page.NextContinuationToken != "" {
		next.Cursor = page.NextContinuationToken
		return next, true
	}

	full := len(page.Objects) == clampMaxKeys(req.MaxKeys)
	if (page.IsTruncated || full) && len(page.Objects) > 0 {
		next.StartAfter = page.Objects[len(page.Objects)-1].Key
		return next, true
	}

	return next, false
}

func clampMaxKeys(n int) int {
	if n <= 0 {
		return defaultMaxKeys
	}
	if n > maxKeysCeiling {
		return maxKeysCeiling
	}
	return n
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
