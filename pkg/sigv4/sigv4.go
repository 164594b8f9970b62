// Package sigv4 implements the AWS signature version 4 signing scheme for
// the read-only listing requests this tool issues against R2's S3-compatible
// endpoint. Only unsigned-payload GET requests are supported.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm = "AWS4-HMAC-SHA256"

	// SHA-256 of the empty string. Listing requests never carry a body.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	signedHeaders = "host;x-amz-content-sha256;x-amz-date"
)

// Credentials holds the symmetric key pair plus the scope the signature is
// valid for.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Service         string
}

// SignedRequest is the output of Sign: the method plus every header the
// caller must attach verbatim.
type SignedRequest struct {
	Method  string
	URL     string
	Headers map[string]string
}

// Sign produces the authenticated headers for a GET request against rawURL.
// The timestamp is an explicit parameter so the canonical request and the
// x-amz-date header can never disagree.
func Sign(method, rawURL string, creds Credentials, at time.Time) (*SignedRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sigv4: bad url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sigv4: url %q has no host", rawURL)
	}

	amzDate := at.UTC().Format("20060102T150405Z")
	dateStamp := at.UTC().Format("20060102")

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	canonicalRequest := strings.Join([]string{
		method,
		path,
		canonicalQuery(u.Query()),
		"host:" + u.Host + "\n" +
			"x-amz-content-sha256:" + emptyPayloadHash + "\n" +
			"x-amz-date:" + amzDate + "\n",
		signedHeaders,
		emptyPayloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, creds.Region, creds.Service, "aws4_request"}, "/")

	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	// Four-layer key derivation: secret -> date -> region -> service -> suffix.
	kDate := hmacSHA256([]byte("AWS4"+creds.SecretAccessKey), dateStamp)
	kRegion := hmacSHA256(kDate, creds.Region)
	kService := hmacSHA256(kRegion, creds.Service)
	kSigning := hmacSHA256(kService, "aws4_request")

	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKeyID, scope, signedHeaders, signature)

	return &SignedRequest{
		Method: method,
		URL:    rawURL,
		Headers: map[string]string{
			"Host":                 u.Host,
			"x-amz-date":           amzDate,
			"x-amz-content-sha256": emptyPayloadHash,
			"Authorization":        authorization,
		},
	}, nil
}

// canonicalQuery renders the query string with keys sorted lexicographically.
// An unsorted query produces a signature the server will reject.
func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

// uriEncode implements the strict RFC 3986 escaping SigV4 requires:
// everything except unreserved characters is percent-encoded, spaces
// included (never "+").
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
