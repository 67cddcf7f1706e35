// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type serverDescription struct {
	Label string `cbor:"label"`
	PID   int    `cbor:"pid"`
	Host  string `cbor:"host,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	value := map[string]any{"zeta": 1, "alpha": "first", "mid": []any{true, 2.5}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic: %x != %x", first, again)
		}
	}
}

func TestStructRoundTrip(t *testing.T) {
	t.Parallel()
	original := serverDescription{Label: "probe", PID: 4242, Host: "linux/amd64"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded serverDescription
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestUntypedMapsDecodeWithStringKeys(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"nested": map[string]any{"x": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("top-level type: got %T, want map[string]any", decoded)
	}
	if _, ok := top["nested"].(map[string]any); !ok {
		t.Errorf("nested type: got %T, want map[string]any", top["nested"])
	}
}

func TestValidRejectsTruncatedItem(t *testing.T) {
	t.Parallel()
	data, err := Marshal("a string long enough to truncate")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := Valid(data); err != nil {
		t.Fatalf("Valid on complete item: %v", err)
	}
	if err := Valid(data[:len(data)-3]); err == nil {
		t.Error("Valid should reject a truncated item")
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"count": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"count": 3`) {
		t.Errorf("diagnostic notation: got %q", text)
	}
}
