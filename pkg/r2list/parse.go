package r2list

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Object is one entry from a listing page. Size is nil when the server
// omitted it or sent something non-numeric.
type Object struct {
	Key          string
	Size         *int64
	ETag         string
	LastModified string
}

// Page is one parsed listing response.
type Page struct {
	Objects               []Object
	IsTruncated           bool
	NextContinuationToken string
	CommonPrefixes        []string
}

// listBucketResult mirrors the ListObjectsV2 XML. Scalar fields are kept as
// strings and converted leniently afterwards, because R2 and other
// S3-compatible backends are loose about casing and optional fields.
type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	IsTruncated           string   `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		ETag         string `xml:"ETag"`
		Size         string `xml:"Size"`
	} `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

// ParsePage parses a ListObjectsV2 response body. Entries without a key are
// dropped. A truncated page without a continuation token is valid: the
// caller falls back to start-after pagination.
func ParsePage(body []byte) (*Page, error) {
	var raw listBucketResult
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse listing response: %w", err)
	}

	page := &Page{
		IsTruncated:           strings.EqualFold(strings.TrimSpace(raw.IsTruncated), "true"),
		NextContinuationToken: strings.TrimSpace(raw.NextContinuationToken),
	}

	for _, c := range raw.Contents {
		if c.Key == "" {
			continue
		}
		obj := Object{
			Key:          c.Key,
			ETag:         strings.Trim(c.ETag, `"`),
			LastModified: c.LastModified,
		}
		if s := strings.TrimSpace(c.Size); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				obj.Size = &n
			}
		}
		page.Objects = append(page.Objects, obj)
	}

	for _, p := range raw.CommonPrefixes {
		if p.Prefix != "" {
			page.CommonPrefixes = append(page.CommonPrefixes, p.Prefix)
		}
	}

	return page, nil
}
