package blacklist

import "testing"

func TestDecodeUAPattern(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantPat  string
		wantType UAMatchType
	}{
		{name: "bare_string", raw: "curl", wantPat: "curl", wantType: UAContains},
		{name: "json_exact", raw: `{"pattern":"BadBot/1.0","type":"exact"}`, wantPat: "BadBot/1.0", wantType: UAExact},
		{name: "json_regex", raw: `{"pattern":"^spider","type":"regex"}`, wantPat: "^spider", wantType: UARegex},
		{name: "json_unknown_type", raw: `{"pattern":"x","type":"glob"}`, wantPat: "x", wantType: UAContains},
		{name: "malformed_json_as_contains", raw: `{"pattern":`, wantPat: `{"pattern":`, wantType: UAContains},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DecodeUAPattern(tt.raw)
			if p.Pattern != tt.wantPat || p.Type != tt.wantType {
				t.Fatalf("DecodeUAPattern(%q) = {%q %q}, want {%q %q}",
					tt.raw, p.Pattern, p.Type, tt.wantPat, tt.wantType)
			}
		})
	}
}

func TestUAPatternMatches(t *testing.T) {
	tests := []struct {
		name string
		p    UAPattern
		ua   string
		want bool
	}{
		{name: "contains_case_insensitive", p: UAPattern{Pattern: "CURL", Type: UAContains}, ua: "curl/8.0", want: true},
		{name: "contains_miss", p: UAPattern{Pattern: "wget", Type: UAContains}, ua: "curl/8.0", want: false},
		{name: "exact_hit", p: UAPattern{Pattern: "BadBot/1.0", Type: UAExact}, ua: "BadBot/1.0", want: true},
		{name: "exact_case_sensitive", p: UAPattern{Pattern: "BadBot/1.0", Type: UAExact}, ua: "badbot/1.0", want: false},
		{name: "regex_hit", p: UAPattern{Pattern: `^Mozilla/\d`, Type: UARegex}, ua: "Mozilla/5.0", want: true},
		{name: "regex_invalid_never_matches", p: UAPattern{Pattern: `([`, Type: UARegex}, ua: "anything", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Matches(tt.ua); got != tt.want {
				t.Fatalf("Matches(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestGeoField(t *testing.T) {
	if got := GeoField("us", ""); got != "US" {
		t.Fatalf("GeoField country = %q, want US", got)
	}
	if got := GeoField("us", "ca"); got != "US:CA" {
		t.Fatalf("GeoField region = %q, want US:CA", got)
	}
}
