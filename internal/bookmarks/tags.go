package bookmarks

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTags is the most tags an item may carry
	MaxTags = 20
	// MaxTagLength is the longest tag accepted, in characters
	MaxTagLength = 50
)

// NormalizeTags trims, lowercases, de-duplicates and sorts tags.
// Empty tags are dropped.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, raw := range tags {
		tag := strings.ToLower(strings.Join(strings.Fields(raw), " "))
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, fmt.Errorf("%w: tag %q is longer than %d characters", ErrInvalidTags, tag, MaxTagLength)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	if len(out) > MaxTags {
		return nil, fmt.Errorf("%w: at most %d tags are allowed", ErrInvalidTags, MaxTags)
	}

	sort.Strings(out)
	return out, nil
}
