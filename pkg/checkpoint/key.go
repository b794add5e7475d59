package checkpoint

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every checkpoint key.
const KeyPrefix = "gphotos:cursor"

// Key identifies one resumable pagination run.
type Key struct {
	// Name is the caller-chosen resume key (e.g. "nightly-backup")
	Name string

	// Params are the request parameters the run was started with. Runs with
	// the same Name but different parameters get different checkpoints.
	Params url.Values
}

// String generates a deterministic Redis key.
// Format: gphotos:cursor:name:param1=val1:param2=val2
//
// Example:
//
//	gphotos:cursor:nightly-backup:albumId=A1:pageSize=100
func (k Key) String() string {
	parts := []string{KeyPrefix}

	name := strings.TrimSpace(k.Name)
	if name != "" {
		parts = append(parts, name)
	}

	// Sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Params[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}
