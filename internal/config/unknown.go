package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid keys in the config file, in dotted form for keys
// inside a section.
var knownKeys = map[string]bool{
	"token_path": true, "device_description": true, "log_level": true, "log_format": true,
	"network": true, "network.timeout": true, "network.user_agent": true,
	"service": true, "service.auth_host": true, "service.discovery_url": true, "service.group": true,
	"journal": true, "journal.enabled": true, "journal.path": true,
}

// knownKeysList is the sorted slice form of knownKeys for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates have
// the same edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. Keys under
// an unknown section are reported once, as the section.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(undecoded))
	for _, key := range undecoded {
		seen[key.String()] = true
	}

	var errs []error

	for _, key := range undecoded {
		if len(key) > 1 && seen[key[0]] {
			continue
		}

		errs = append(errs, buildKeyError(key.String(), key[len(key)-1]))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key, suggesting
// the closest known key. A misplaced key whose leaf name exists in another
// section is pointed at that section.
func buildKeyError(keyStr, leaf string) error {
	suggestion := closestMatch(keyStr, knownKeysList)

	if suggestion == "" {
		for _, k := range knownKeysList {
			if strings.HasSuffix(k, "."+leaf) || k == leaf {
				suggestion = k
				break
			}
		}
	}

	if suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", keyStr, suggestion)
	}

	return fmt.Errorf("unknown config key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: two rows instead of a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
