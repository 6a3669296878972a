package audit

import (
	"reflect"
	"testing"
)

func TestMaskSensitiveFields(t *testing.T) {
	m := NewMasker(nil)

	in := map[string]any{
		"username":     "alice",
		"password":     "hunter2",
		"ApiKey":       "abc123",
		"note":         "harmless",
		"authorization": "Bearer xyz",
	}
	got := m.Mask(in)

	want := map[string]any{
		"username":     "alice",
		"password":     MaskToken,
		"ApiKey":       MaskToken,
		"note":         "harmless",
		"authorization": MaskToken,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mask mismatch:\n got %v\nwant %v", got, want)
	}

	// The input must not be modified.
	if in["password"] != "hunter2" {
		t.Fatal("masker mutated its input")
	}
}

func TestMaskRecursesNestedStructures(t *testing.T) {
	m := NewMasker(nil)

	in := map[string]any{
		"request": map[string]any{
			"new_password": "s3cret",
			"field":        "ok",
		},
		"attempts": []any{
			map[string]any{"token": "t1", "when": "today"},
			map[string]any{"token": "t2", "when": "yesterday"},
			"plain string survives",
		},
	}
	got := m.Mask(in)

	request := got["request"].(map[string]any)
	if request["new_password"] != MaskToken || request["field"] != "ok" {
		t.Fatalf("nested map not masked correctly: %v", request)
	}
	attempts := got["attempts"].([]any)
	for i := 0; i < 2; i++ {
		entry := attempts[i].(map[string]any)
		if entry["token"] != MaskToken {
			t.Fatalf("sequence entry %d not masked: %v", i, entry)
		}
	}
	if attempts[2] != "plain string survives" {
		t.Fatalf("non-map sequence element altered: %v", attempts[2])
	}
}

func TestMaskIdempotent(t *testing.T) {
	m := NewMasker(nil)

	in := map[string]any{
		"password": "topsecret",
		"nested":   map[string]any{"secret_key": "k"},
	}
	once := m.Mask(in)
	twice := m.Mask(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("masking is not idempotent:\n once %v\ntwice %v", once, twice)
	}
}

func TestMaskCustomPatterns(t *testing.T) {
	m := NewMasker([]string{"ssn"})

	got := m.Mask(map[string]any{"ssn": "123-45-6789", "password": "visible here"})
	if got["ssn"] != MaskToken {
		t.Fatalf("custom pattern ignored: %v", got)
	}
	if got["password"] != "visible here" {
		t.Fatalf("default pattern applied despite override: %v", got)
	}
}

func TestMaskNilDetail(t *testing.T) {
	m := NewMasker(nil)
	if got := m.Mask(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
