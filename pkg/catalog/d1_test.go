package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type d1Request struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

func newFakeD1(t *testing.T, handler func(req d1Request) string) *D1Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token123" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req d1Request
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(handler(req)))
	}))
	t.Cleanup(srv.Close)

	client, err := NewD1Client(D1Config{
		AccountID:  "acct",
		DatabaseID: "db",
		APIToken:   "token123",
		BaseURL:    srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestD1Exists(t *testing.T) {
	client := newFakeD1(t, func(req d1Request) string {
		if !strings.Contains(req.SQL, "SELECT 1 FROM artifacts") {
			t.Errorf("unexpected sql: %s", req.SQL)
		}
		if len(req.Params) != 2 || req.Params[0] != "bucket" || req.Params[1] != "sec/a.html" {
			t.Errorf("params = %v", req.Params)
		}
		return `{"success":true,"result":[{"results":[{"1":1}],"success":true}]}`
	})

	ok, err := client.Exists(context.Background(), "bucket", "sec/a.html")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected row to exist")
	}
}

func TestD1ExistsEmpty(t *testing.T) {
	client := newFakeD1(t, func(d1Request) string {
		return `{"success":true,"result":[{"results":[],"success":true}]}`
	})
	ok, err := client.Exists(context.Background(), "bucket", "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected row to be absent")
	}
}

func TestD1InsertReportsChanges(t *testing.T) {
	client := newFakeD1(t, func(req d1Request) string {
		if !strings.Contains(req.SQL, "INSERT OR IGNORE INTO artifacts") {
			t.Errorf("unexpected sql: %s", req.SQL)
		}
		if len(req.Params) != 8 {
			t.Errorf("expected 8 params, got %d", len(req.Params))
		}
		if req.Params[2] != nil {
			t.Errorf("nil source_url should marshal as null, got %v", req.Params[2])
		}
		return `{"success":true,"result":[{"results":[],"success":true,"meta":{"changes":1}}]}`
	})

	inserted, err := client.Insert(context.Background(), testArtifact("sec/a.html", "sec"))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("expected insert to report a change")
	}
}

func TestD1UpgradeConditional(t *testing.T) {
	client := newFakeD1(t, func(req d1Request) string {
		if !strings.Contains(req.SQL, "source_type = 'unknown' OR source_type IS NULL") {
			t.Errorf("upgrade must be conditional: %s", req.SQL)
		}
		return `{"success":true,"result":[{"results":[],"success":true,"meta":{"changes":0}}]}`
	})

	upgraded, err := client.UpgradeSourceType(context.Background(), "bucket", "sec/a.html", "sec")
	if err != nil {
		t.Fatal(err)
	}
	if upgraded {
		t.Fatal("changes=0 must report no upgrade")
	}
}

func TestD1APIErrorSurfaces(t *testing.T) {
	client := newFakeD1(t, func(d1Request) string {
		return `{"success":false,"errors":[{"code":7500,"message":"query error"}]}`
	})
	if _, err := client.Exists(context.Background(), "b", "k"); err == nil {
		t.Fatal("expected error for unsuccessful envelope")
	}
}

func TestD1HTTPStatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewD1Client(D1Config{AccountID: "a", DatabaseID: "d", APIToken: "t", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Exists(context.Background(), "b", "k")
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Fatalf("error must carry the http status for retry classification: %v", err)
	}
}

func TestD1ConfigValidation(t *testing.T) {
	if _, err := NewD1Client(D1Config{AccountID: "a", DatabaseID: "d"}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestD1Count(t *testing.T) {
	client := newFakeD1(t, func(req d1Request) string {
		if req.Params[1] != "sec/%" {
			t.Errorf("prefix param = %v", req.Params[1])
		}
		return `{"success":true,"result":[{"results":[{"n":42}],"success":true}]}`
	})
	n, err := client.Count(context.Background(), "bucket", "sec/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Fatalf("count = %d", n)
	}
}
