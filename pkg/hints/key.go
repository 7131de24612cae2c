package hints

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key identifies one collection of one workspace.
type Key struct {
	// Workspace is a stable, non-secret workspace identifier. Use
	// Fingerprint to derive it from an API key.
	Workspace string

	// Operation names the collection (accounts, campaigns, leads, emails).
	Operation string

	// Filters narrow the collection; different filters are different sizes.
	Filters map[string]any
}

// String generates a deterministic key string.
// Format: instantly:hints:workspace:operation:filter1=val1:filter2=val2
//
// Example:
//
//	instantly:hints:3f2a9c1b7d4e6a80:leads:campaign=c-1
func (k Key) String() string {
	parts := []string{"instantly", "hints"}

	workspace := k.Workspace
	if workspace == "" {
		workspace = "default"
	}
	parts = append(parts, workspace, strings.ToLower(k.Operation))

	if len(k.Filters) > 0 {
		names := make([]string, 0, len(k.Filters))
		for name := range k.Filters {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, filterValue(k.Filters[name])))
		}
	}

	return strings.Join(parts, ":")
}

func filterValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	// encoding/json sorts map keys, so nested values stay deterministic.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Fingerprint derives a short workspace identifier from a secret so keys
// never contain the secret itself.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}
