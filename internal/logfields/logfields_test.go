package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames guards against key drift; log consumers match on these names.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"BuildID", BuildID("b1"), KeyBuildID, "b1"},
		{"Stage", Stage("validate_seo"), KeyStage, "validate_seo"},
		{"Page", Page("pages/outcomes.html"), KeyPage, "pages/outcomes.html"},
		{"BuildKey", BuildKey("pages-outcomes"), KeyBuildKey, "pages-outcomes"},
		{"Partial", Partial("header.html"), KeyPartial, "header.html"},
		{"Path", Path("/tmp/x"), KeyPath, "/tmp/x"},
		{"Asset", Asset("img/hero.jpg"), KeyAsset, "img/hero.jpg"},
		{"URL", URL("https://example.com/"), KeyURL, "https://example.com/"},
		{"Outcome", Outcome("success"), KeyOutcome, "success"},
	}
	for _, tc := range cases {
		if tc.attr.Key != tc.wantKey {
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.wantKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.wantVal {
			t.Fatalf("%s: expected value %s, got %s", tc.name, tc.wantVal, got)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := Count(3); a.Key != KeyCount || a.Value.Int64() != 3 {
		t.Fatalf("Count mismatch: %v", a)
	}
	if a := Bytes(1024); a.Key != KeyBytes || a.Value.Int64() != 1024 {
		t.Fatalf("Bytes mismatch: %v", a)
	}
	if a := DurationMS(12.5); a.Key != KeyDurationMS {
		t.Fatalf("DurationMS key mismatch: %s", a.Key)
	}
}

func TestErrorHelper(t *testing.T) {
	if a := Error(nil); a.Key != KeyError || a.Value.String() != "" {
		t.Fatalf("unexpected nil error attr: %v", a)
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("unexpected error attr: %v", a)
	}
}
