package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const defaultD1BaseURL = "https://api.cloudflare.com/client/v4"

// D1Config wires up the remote catalog backend. BaseURL is overridable for
// tests.
type D1Config struct {
	AccountID  string
	DatabaseID string
	APIToken   string
	BaseURL    string
	HTTPClient *http.Client
}

// D1Client talks to the catalog's HTTP query API. It performs no retries of
// its own; callers wrap operations in the shared retry policy.
type D1Client struct {
	url   string
	token string
	http  *http.Client
}

func NewD1Client(cfg D1Config) (*D1Client, error) {
	if cfg.AccountID == "" || cfg.DatabaseID == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("catalog: account id, database id and api token are all required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultD1BaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := retryablehttp.NewClient()
		rc.Logger = stdlog.New(io.Discard, "", 0)
		rc.RetryMax = 0
		httpClient = rc.StandardClient()
	}
	return &D1Client{
		url:   fmt.Sprintf("%s/accounts/%s/d1/database/%s/query", base, cfg.AccountID, cfg.DatabaseID),
		token: cfg.APIToken,
		http:  httpClient,
	}, nil
}

func (c *D1Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	res, err := c.query(ctx,
		`SELECT 1 FROM artifacts WHERE r2_bucket = ? AND r2_key = ? LIMIT 1;`,
		bucket, key)
	if err != nil {
		return false, err
	}
	return len(res.Get("results").Array()) > 0, nil
}

func (c *D1Client) Insert(ctx context.Context, a Artifact) (bool, error) {
	res, err := c.query(ctx,
		`INSERT OR IGNORE INTO artifacts (
  artifact_id, source_type, source_url, content_hash, fetched_at, r2_bucket, r2_key, ticker
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ArtifactID, a.SourceType, a.SourceURL, a.ContentHash, a.FetchedAt, a.Bucket, a.Key, a.Ticker)
	if err != nil {
		return false, err
	}
	return res.Get("meta.changes").Int() > 0, nil
}

func (c *D1Client) UpgradeSourceType(ctx context.Context, bucket, key, sourceType string) (bool, error) {
	res, err := c.query(ctx,
		`UPDATE artifacts SET source_type = ?
 WHERE r2_bucket = ? AND r2_key = ?
   AND (source_type = 'unknown' OR source_type IS NULL);`,
		sourceType, bucket, key)
	if err != nil {
		return false, err
	}
	return res.Get("meta.changes").Int() > 0, nil
}

// Count returns the number of artifacts under a key prefix (empty prefix =
// whole bucket).
func (c *D1Client) Count(ctx context.Context, bucket, prefix string) (int64, error) {
	res, err := c.query(ctx,
		`SELECT COUNT(*) AS n FROM artifacts WHERE r2_bucket = ? AND r2_key LIKE ?;`,
		bucket, prefix+"%")
	if err != nil {
		return 0, err
	}
	return res.Get("results.0.n").Int(), nil
}

func (c *D1Client) Close() error { return nil }

// query POSTs one parameterized statement and returns the first result
// object of the envelope. HTTP status codes are embedded in error text so
// the retry layer can classify them.
func (c *D1Client) query(ctx context.Context, sql string, params ...interface{}) (gjson.Result, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"sql":    sql,
		"params": params,
	})
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return gjson.Result{}, err
	}
	if res.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("d1 query: status %d: %s", res.StatusCode, snippet(body))
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.Get("success").Bool() {
		return gjson.Result{}, fmt.Errorf("d1 query: api error: %s", snippet(body))
	}
	return parsed.Get("result.0"), nil
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
