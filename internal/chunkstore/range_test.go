package chunkstore

import "testing"

func TestParseRangeForms(t *testing.T) {
	cases := []struct {
		header           string
		wantStart, wantEnd int64
		total            int64
	}{
		{"bytes=0-99", 0, 99, 1000},
		{"bytes=500-", 500, 999, 1000},
		{"bytes=-100", 900, 999, 1000},
	}
	for _, c := range cases {
		r, err := ParseRange(c.header)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.header, err)
		}
		start, end, err := r.Resolve(c.total)
		if err != nil {
			t.Fatalf("%s: resolve error: %v", c.header, err)
		}
		if start != c.wantStart || end != c.wantEnd {
			t.Fatalf("%s: expected [%d,%d], got [%d,%d]", c.header, c.wantStart, c.wantEnd, start, end)
		}
	}
}

func TestParseRangeEmptyIsNil(t *testing.T) {
	r, err := ParseRange("")
	if err != nil || r != nil {
		t.Fatalf("expected nil range with no error, got %+v %v", r, err)
	}
}

func TestParseRangeMalformed(t *testing.T) {
	for _, h := range []string{"bytes=", "bytes=abc-100", "junk", "bytes=100-50"} {
		if _, err := ParseRange(h); err == nil {
			t.Fatalf("%s: expected an error", h)
		}
	}
}

func TestResolveStartBeyondSize(t *testing.T) {
	r, err := ParseRange("bytes=2000-3000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := r.Resolve(1000); err == nil {
		t.Fatalf("expected range-not-satisfiable for start beyond size")
	}
}

func TestResolveSuffixLargerThanTotal(t *testing.T) {
	r, err := ParseRange("bytes=-5000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start, end, err := r.Resolve(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != 0 || end != 999 {
		t.Fatalf("expected clamped suffix range [0,999], got [%d,%d]", start, end)
	}
}
