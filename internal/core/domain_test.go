package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-01-10", NewDate(2024, 1, 10), true},
		{" 2024-02-29 ", NewDate(2024, 2, 29), true},
		{"2024-01-10T23:30:00Z", NewDate(2024, 1, 10), true},
		{"2024-01-10T23:30:00+02:00", NewDate(2024, 1, 10), true},
		{"2023-02-29", Date{}, false},
		{"10/01/2024", Date{}, false},
		{"", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want.Time) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}{D: NewDate(2024, 3, 5)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2024-03-05","z":null}` {
		t.Fatalf("unexpected json %s", b)
	}
	var d Date
	if err := json.Unmarshal([]byte(`"2024-03-05"`), &d); err != nil || d.String() != "2024-03-05" {
		t.Fatalf("unmarshal: %v %s", err, d)
	}
}

func TestDateOfUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	got := DateOf(time.Date(2024, 5, 1, 2, 0, 0, 0, loc))
	if got.String() != "2024-05-01" || got.Location() != time.UTC {
		t.Fatalf("unexpected date %s in %s", got, got.Location())
	}
}

func TestTimestampDropsSubMicroseconds(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	got := Timestamp(time.Date(2024, 5, 1, 14, 0, 0, 123456789, loc))
	want := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC || got.Nanosecond() != 123456000 {
		t.Fatalf("Timestamp = %s, want %s", got, want)
	}
}

func TestValidationError(t *testing.T) {
	var verr ValidationError
	if verr.Err() != nil {
		t.Fatalf("empty validation error must be nil")
	}
	verr.Add("title", "title is required")
	verr.Add("amount", "amount must be a positive number")
	err := verr.Err()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 2 {
		t.Fatalf("expected two fields, got %v", err)
	}
	if !strings.Contains(err.Error(), "title: title is required") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestBuiltinCategories(t *testing.T) {
	cats := BuiltinCategories()
	if len(cats) != 8 {
		t.Fatalf("expected 8 built-ins, got %d", len(cats))
	}
	seen := map[string]bool{}
	for _, c := range cats {
		if !c.IsDefault || c.OwnerID != "" || seen[c.Name] {
			t.Fatalf("bad built-in %+v", c)
		}
		seen[c.Name] = true
	}
	cats[0].Name = "mutated"
	if c, _ := BuiltinByID("food-dining"); c.Name != "Food & Dining" {
		t.Fatalf("built-ins must not be mutable through the copy")
	}
	if _, ok := BuiltinByName("Other"); !ok {
		t.Fatalf("expected Other built-in")
	}
	if _, err := NormalizeCategoryName("   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
