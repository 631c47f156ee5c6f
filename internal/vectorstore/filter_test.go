package vectorstore

import (
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestBuildFilter_Empty(t *testing.T) {
	if got := buildFilter(nil); got != nil {
		t.Errorf("expected nil filter for nil input, got %v", got)
	}
	if got := buildFilter(&SearchFilter{}); got != nil {
		t.Errorf("expected nil filter for zero input, got %v", got)
	}
}

func TestBuildFilter_BoolAndLocations(t *testing.T) {
	f := &SearchFilter{
		IsHiring:  boolPtr(true),
		Locations: []string{"California"},
	}

	qf := buildFilter(f)
	if qf == nil {
		t.Fatal("expected non-nil filter")
	}
	if len(qf.Must) != 2 {
		t.Fatalf("expected 2 must conditions, got %d", len(qf.Must))
	}

	// Location clause: nested OR over city/state/country
	nested := qf.Must[0].GetFilter()
	if nested == nil {
		t.Fatal("expected first condition to be a nested location filter")
	}
	if len(nested.Should) != 3 {
		t.Fatalf("expected 3 should conditions for city/state/country, got %d", len(nested.Should))
	}
	wantKeys := map[string]bool{"city": false, "state": false, "country": false}
	for _, cond := range nested.Should {
		field := cond.GetField()
		if field == nil {
			t.Fatal("expected field condition in location OR")
		}
		if _, ok := wantKeys[field.Key]; !ok {
			t.Errorf("unexpected location field %q", field.Key)
		}
		wantKeys[field.Key] = true
		keywords := field.GetMatch().GetKeywords().GetStrings()
		if len(keywords) != 1 || keywords[0] != "California" {
			t.Errorf("field %q: expected keywords [California], got %v", field.Key, keywords)
		}
	}
	for key, seen := range wantKeys {
		if !seen {
			t.Errorf("missing location condition for %q", key)
		}
	}

	// Boolean clause
	field := qf.Must[1].GetField()
	if field == nil || field.Key != "is_hiring" {
		t.Fatalf("expected is_hiring condition, got %v", qf.Must[1])
	}
	if !field.GetMatch().GetBoolean() {
		t.Error("expected is_hiring match value true")
	}
}

func TestBuildFilter_IndependentFlagWinsOverLegacyEnum(t *testing.T) {
	f := &SearchFilter{
		HiringStatus: "hiring",
		IsHiring:     boolPtr(false),
	}

	qf := buildFilter(f)
	if qf == nil {
		t.Fatal("expected non-nil filter")
	}
	if len(qf.Must) != 1 {
		t.Fatalf("expected exactly 1 condition, got %d", len(qf.Must))
	}
	field := qf.Must[0].GetField()
	if field.Key != "is_hiring" {
		t.Fatalf("expected is_hiring condition, got %q", field.Key)
	}
	if field.GetMatch().GetBoolean() {
		t.Error("expected flag value false to win over legacy enum")
	}
}

func TestBuildFilter_LegacyEnumAlone(t *testing.T) {
	qf := buildFilter(&SearchFilter{HiringStatus: "open_to_work"})
	if qf == nil || len(qf.Must) != 1 {
		t.Fatalf("expected 1 condition, got %v", qf)
	}
	field := qf.Must[0].GetField()
	if field.Key != "is_open_to_work" || !field.GetMatch().GetBoolean() {
		t.Errorf("expected is_open_to_work=true, got %v", field)
	}
}

func TestBuildFilter_Ranges(t *testing.T) {
	after := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &SearchFilter{
		MinFollowers:   intPtr(500),
		MaxFollowers:   intPtr(10000),
		ConnectedAfter: &after,
	}

	qf := buildFilter(f)
	if qf == nil || len(qf.Must) != 2 {
		t.Fatalf("expected 2 conditions, got %v", qf)
	}

	followers := qf.Must[0].GetField()
	if followers.Key != "followers" {
		t.Fatalf("expected followers range, got %q", followers.Key)
	}
	r := followers.GetRange()
	if r.GetGte() != 500 || r.GetLte() != 10000 {
		t.Errorf("expected followers range [500,10000], got gte=%v lte=%v", r.GetGte(), r.GetLte())
	}

	connected := qf.Must[1].GetField()
	if connected.Key != "connected_at" {
		t.Fatalf("expected connected_at range, got %q", connected.Key)
	}
	if connected.GetRange().GetGte() != float64(after.Unix()) {
		t.Errorf("expected connected_at gte %d, got %v", after.Unix(), connected.GetRange().GetGte())
	}
}

func TestBuildFilter_ListMembership(t *testing.T) {
	f := &SearchFilter{
		Industries:   []string{"Software", "Finance"},
		CompanySizes: []string{"11-50"},
	}

	qf := buildFilter(f)
	if qf == nil || len(qf.Must) != 2 {
		t.Fatalf("expected 2 conditions, got %v", qf)
	}

	industries := qf.Must[0].GetField()
	if industries.Key != "industry" {
		t.Fatalf("expected industry condition, got %q", industries.Key)
	}
	got := industries.GetMatch().GetKeywords().GetStrings()
	if len(got) != 2 || got[0] != "Software" || got[1] != "Finance" {
		t.Errorf("expected [Software Finance], got %v", got)
	}
}
