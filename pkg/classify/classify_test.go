package classify

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		key        string
		sourceType string
		rule       string
	}{
		// Explicit prefixes win over everything.
		{"sec/xbrl/mstr/2024.xml", "sec_xbrl", "prefix-sec-xbrl"},
		{"sec/10k/aapl.html", "sec", "prefix-sec"},
		{"sedar/mstr/annual.pdf", "sedar", "prefix-sedar"},
		{"dashboard/snapshot.json", "dashboard", "prefix-dashboard"},
		{"manual/notes/2024.txt", "manual", "prefix-manual"},

		// Legacy batch-numbered prefixes.
		{"batch-17/mstr/filing.html", "legacy_batch", "legacy-batch"},
		{"batch-003/x.pdf", "legacy_batch", "legacy-batch"},

		// Substring heuristics.
		{"filings/xbrl/mstr.xml", "sec_xbrl", "substr-xbrl"},
		{"edgar/companyfacts/CIK0001050446.json", "sec_companyfacts", "substr-companyfacts"},
		{"archive/10k/2023.html", "sec_filing", "substr-10k"},
		{"archive/10q/q3.html", "sec_filing", "substr-10q"},
		{"old/8k/press.html", "sec_filing", "substr-8k"},
		{"old/424b5/prospectus.html", "sec_filing", "substr-424b5"},
		{"old/proxy/2024.html", "sec_filing", "substr-proxy"},

		// Ticker-like first segment plus a filing-type segment.
		{"mstr/8k/2024-12-01.html", "sec_filing", "substr-8k"},
		{"smlr/def14a/2025.html", "sec_filing", "ticker-filing"},
		{"mara/s1/ipo.html", "sec_filing", "ticker-filing"},

		// Root-level files by extension.
		{"readme.txt", "root_file", "root-file"},
		{"snapshot.json", "root_file", "root-file"},
		{"report.pdf", "root_file", "root-file"},

		// Unclassified.
		{"tmp/scratch.bin", Unknown, ""},
		{"a-very-long-first-segment/misc/file.dat", Unknown, ""},
		{"noextension", Unknown, ""},
		{"mstr/annual-report.pdf", Unknown, ""}, // no filing segment
	}

	for _, c := range cases {
		got := Classify(c.key)
		if got.SourceType != c.sourceType {
			t.Fatalf("Classify(%q).SourceType = %q, want %q", c.key, got.SourceType, c.sourceType)
		}
		if got.MatchedRule != c.rule {
			t.Fatalf("Classify(%q).MatchedRule = %q, want %q", c.key, got.MatchedRule, c.rule)
		}
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// Matches both the explicit sec/xbrl/ prefix and the weaker /xbrl/
	// substring rule; the explicit prefix must win.
	got := Classify("sec/xbrl/foo.xml")
	if got.SourceType != "sec_xbrl" || got.MatchedRule != "prefix-sec-xbrl" {
		t.Fatalf("got %+v, want explicit prefix rule", got)
	}

	// sec/ must win over the /10k/ substring heuristic.
	got = Classify("sec/10k/mstr.html")
	if got.SourceType != "sec" || got.MatchedRule != "prefix-sec" {
		t.Fatalf("got %+v, want prefix-sec", got)
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	got := Classify("SEC/XBRL/Foo.XML")
	if got.SourceType != "sec_xbrl" {
		t.Fatalf("got %+v", got)
	}
	got = Classify("MSTR/8K/2024.HTML")
	if got.SourceType != "sec_filing" {
		t.Fatalf("got %+v", got)
	}
}

func TestStatsRecord(t *testing.T) {
	s := NewStats()
	s.Record("sec/a.html", Result{SourceType: "sec", MatchedRule: "prefix-sec"})
	s.Record("junk/one.bin", Result{SourceType: Unknown})
	s.Record("junk/two.bin", Result{SourceType: Unknown})
	s.Record("other/x.bin", Result{SourceType: Unknown})

	if s.SourceTypeCounts["sec"] != 1 || s.SourceTypeCounts[Unknown] != 3 {
		t.Fatalf("counts = %v", s.SourceTypeCounts)
	}
	if s.UnknownFirstSegCounts["junk"] != 2 || s.UnknownFirstSegCounts["other"] != 1 {
		t.Fatalf("first-seg counts = %v", s.UnknownFirstSegCounts)
	}
	if len(s.UnknownSamples) != 3 {
		t.Fatalf("samples = %v", s.UnknownSamples)
	}
}

func TestStatsSampleCap(t *testing.T) {
	s := NewStats()
	s.sampleCap = 2
	for _, k := range []string{"a/1", "b/2", "c/3", "d/4"} {
		s.Record(k, Result{SourceType: Unknown})
	}
	if len(s.UnknownSamples) != 2 {
		t.Fatalf("sample not capped: %v", s.UnknownSamples)
	}
	if s.UnknownFirstSegCounts["d"] != 1 {
		t.Fatal("counting must continue past the sample cap")
	}
}
