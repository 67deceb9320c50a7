package security

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestJoinWithin(t *testing.T) {
	tests := []struct {
		name, rel string
		want      string
		traversal bool
	}{
		{name: "nested", rel: "captures/2024/acc.csv", want: filepath.Join("data", "captures", "2024", "acc.csv")},
		{name: "inner dotdot", rel: "a/../b.csv", want: filepath.Join("data", "b.csv")},
		{name: "escape", rel: "../../etc/passwd", traversal: true},
		{name: "escape after descent", rel: "a/../../x", traversal: true},
		{name: "self", rel: "a/..", traversal: true},
		{name: "absolute", rel: "/etc/passwd", traversal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinWithin("data", tt.rel)
			if tt.traversal {
				if !errors.Is(err, ErrTraversal) {
					t.Fatalf("JoinWithin(%q) error = %v, want ErrTraversal", tt.rel, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("JoinWithin(%q): %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("JoinWithin(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}

	if _, err := JoinWithin("data", ""); err == nil {
		t.Error("empty name should fail")
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"VirtualRide":         "VirtualRide",
		"i42":                 "i42",
		"Ride/../../x":        "Ride_.._.._x",
		"Morning  ride!":      "Morning_ride",
		"..hidden":            "hidden",
		"":                    "unknown",
		"///":                 "unknown",
		"café":                "caf",
		"2024-05-01 10:00:00": "2024-05-01_10_00_00",
	}
	for in, want := range tests {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}

	if got := SafeName(strings.Repeat("a", 300)); len(got) != maxNameLen {
		t.Errorf("long name length = %d, want %d", len(got), maxNameLen)
	}
}
