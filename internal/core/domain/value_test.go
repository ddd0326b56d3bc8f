package domain

import (
	"encoding/json"
	"testing"
)

func TestFieldsFromAnyDropsUnrepresentableEntries(t *testing.T) {
	raw := map[string]any{
		"name":             "Jane",
		"years_experience": float64(7),
		"remote_ok":        true,
		"skills":           []any{"go", "sql", float64(3)},
		"education":        nil,
		"address":          map[string]any{"city": "Berlin"},
	}

	fields := FieldsFromAny(raw)
	if _, ok := fields["education"]; ok {
		t.Fatalf("null entry must be dropped")
	}
	if _, ok := fields["address"]; ok {
		t.Fatalf("object entry must be dropped")
	}
	if got := fields["name"]; got.Kind != KindString || got.Str != "Jane" {
		t.Fatalf("name = %+v", got)
	}
	if got := fields["years_experience"]; got.Kind != KindNumber || got.Num != 7 {
		t.Fatalf("years_experience = %+v", got)
	}
	skills := fields["skills"]
	if skills.Kind != KindList || len(skills.List) != 3 || skills.List[2] != "3" {
		t.Fatalf("skills = %+v", skills)
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	in := map[string]Value{
		"name":   StringValue("Jane"),
		"years":  NumberValue(7.5),
		"remote": BoolValue(false),
		"skills": ListValue("go", "sql"),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]Value
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for key, want := range in {
		got := out[key]
		if got.Kind != want.Kind || got.String() != want.String() {
			t.Fatalf("%s: got %+v, want %+v", key, got, want)
		}
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{NumberValue(7), "7"},
		{NumberValue(7.5), "7.5"},
		{BoolValue(true), "true"},
		{ListValue("go", "sql"), "go, sql"},
		{StringValue("plain"), "plain"},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("String(%+v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}
