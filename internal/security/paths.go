// Package security guards local paths built from remote names.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrTraversal is returned when a remote name would resolve outside its
// destination folder.
var ErrTraversal = errors.New("path escapes destination")

const maxNameLen = 128

// JoinWithin joins the slash-separated rel under dir. Names that resolve
// to dir itself or above it are rejected rather than clamped.
func JoinWithin(dir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty name under %s", dir)
	}
	local := filepath.FromSlash(rel)
	if filepath.IsAbs(local) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrTraversal, rel)
	}
	joined := filepath.Join(dir, local)
	back, err := filepath.Rel(filepath.Clean(dir), joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTraversal, err)
	}
	if back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q under %s", ErrTraversal, rel, dir)
	}
	return joined, nil
}

// SafeName reduces s to a single file-name segment: ASCII letters, digits,
// '.', '_' and '-' survive, runs of anything else become one underscore.
func SafeName(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
		if b.Len() >= maxNameLen {
			break
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
