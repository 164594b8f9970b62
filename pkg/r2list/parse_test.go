package r2list

import "testing"

func TestParsePage(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>dat-artifacts</Name>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>token-abc</NextContinuationToken>
  <Contents>
    <Key>sec/xbrl/mstr-2024.xml</Key>
    <LastModified>2024-12-01T10:00:00.000Z</LastModified>
    <ETag>&quot;d41d8cd98f00b204e9800998ecf8427e&quot;</ETag>
    <Size>12345</Size>
  </Contents>
  <Contents>
    <Key>mstr/8k/2024-12-01.html</Key>
    <ETag>"abc123"</ETag>
  </Contents>
</ListBucketResult>`

	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if !page.IsTruncated {
		t.Fatal("expected truncated page")
	}
	if page.NextContinuationToken != "token-abc" {
		t.Fatalf("token = %q", page.NextContinuationToken)
	}
	if len(page.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(page.Objects))
	}

	first := page.Objects[0]
	if first.Key != "sec/xbrl/mstr-2024.xml" {
		t.Fatalf("key = %q", first.Key)
	}
	if first.ETag != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("etag quotes not stripped: %q", first.ETag)
	}
	if first.Size == nil || *first.Size != 12345 {
		t.Fatalf("size = %v", first.Size)
	}
	if first.LastModified != "2024-12-01T10:00:00.000Z" {
		t.Fatalf("lastModified = %q", first.LastModified)
	}

	second := page.Objects[1]
	if second.Size != nil {
		t.Fatalf("missing size should be nil, got %v", *second.Size)
	}
	if second.ETag != "abc123" {
		t.Fatalf("etag = %q", second.ETag)
	}
	if second.LastModified != "" {
		t.Fatalf("lastModified = %q", second.LastModified)
	}
}

func TestParsePageEmpty(t *testing.T) {
	body := `<ListBucketResult><IsTruncated>false</IsTruncated></ListBucketResult>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if page.IsTruncated {
		t.Fatal("expected non-truncated")
	}
	if len(page.Objects) != 0 {
		t.Fatalf("expected no objects, got %d", len(page.Objects))
	}
	if page.NextContinuationToken != "" {
		t.Fatalf("token = %q", page.NextContinuationToken)
	}
}

func TestParsePageCaseInsensitiveTruncation(t *testing.T) {
	for _, v := range []string{"true", "True", "TRUE"} {
		body := `<ListBucketResult><IsTruncated>` + v + `</IsTruncated></ListBucketResult>`
		page, err := ParsePage([]byte(body))
		if err != nil {
			t.Fatal(err)
		}
		if !page.IsTruncated {
			t.Fatalf("IsTruncated %q not parsed as true", v)
		}
	}

	body := `<ListBucketResult><IsTruncated>garbage</IsTruncated></ListBucketResult>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if page.IsTruncated {
		t.Fatal("garbage truncation flag parsed as true")
	}
}

func TestParsePageTruncatedWithoutToken(t *testing.T) {
	// Some backends omit the continuation token even when truncated; the
	// token must stay empty so the caller can switch to start-after.
	body := `<ListBucketResult>
  <IsTruncated>true</IsTruncated>
  <Contents><Key>a</Key></Contents>
</ListBucketResult>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if !page.IsTruncated {
		t.Fatal("expected truncated")
	}
	if page.NextContinuationToken != "" {
		t.Fatalf("token = %q, want empty", page.NextContinuationToken)
	}
}

func TestParsePageDropsKeylessEntries(t *testing.T) {
	body := `<ListBucketResult>
  <Contents><Size>10</Size></Contents>
  <Contents><Key>kept</Key></Contents>
</ListBucketResult>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Objects) != 1 || page.Objects[0].Key != "kept" {
		t.Fatalf("objects = %+v", page.Objects)
	}
}

func TestParsePageNonNumericSize(t *testing.T) {
	body := `<ListBucketResult>
  <Contents><Key>a</Key><Size>not-a-number</Size></Contents>
</ListBucketResult>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if page.Objects[0].Size != nil {
		t.Fatalf("non-numeric size should be nil, got %v", *page.Objects[0].Size)
	}
}

func TestParsePageCommonPrefixes(t *testing.T) {
	body := `<ListBucketResult>
  <IsTruncated>false</IsTruncated>
  <CommonPrefixes><Prefix>sec/</Prefix></CommonPrefixes>
  <CommonPrefixes><Prefix>mstr/</Prefix></CommonPrefixes>
</ListBucketResult>`
	page, err := ParsePage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(page.CommonPrefixes) != 2 || page.CommonPrefixes[0] != "sec/" || page.CommonPrefixes[1] != "mstr/" {
		t.Fatalf("prefixes = %v", page.CommonPrefixes)
	}
}

func TestParsePageBadXML(t *testing.T) {
	if _, err := ParsePage([]byte("<ListBucketResult><unclosed")); err == nil {
		t.Fatal("expected error for malformed xml")
	}
}
