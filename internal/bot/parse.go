package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxKeywordLen = 50

// ParseKeywordArg returns the keyword given to a command, or def when the
// argument is empty. Inner whitespace is collapsed to single spaces.
func ParseKeywordArg(args, def string) (string, error) {
	kw := strings.Join(strings.Fields(args), " ")
	if kw == "" {
		kw = def
	}
	if kw == "" {
		return "", fmt.Errorf("keyword is required")
	}
	if utf8.RuneCountInString(kw) > maxKeywordLen {
		return "", fmt.Errorf("keyword is longer than %d characters", maxKeywordLen)
	}
	return kw, nil
}

// ParseItemsArgs parses "/items [keyword] [limit]". A trailing number is
// the limit; everything before it is the keyword.
func ParseItemsArgs(args, def string, defLimit int) (string, int, error) {
	parts := strings.Fields(args)
	limit := defLimit
	if n := len(parts); n > 0 {
		if v, err := strconv.Atoi(parts[n-1]); err == nil {
			if v < 1 || v > 50 {
				return "", 0, fmt.Errorf("limit must be between 1 and 50")
			}
			limit = v
			parts = parts[:n-1]
		}
	}
	kw, err := ParseKeywordArg(strings.Join(parts, " "), def)
	if err != nil {
		return "", 0, err
	}
	return kw, limit, nil
}
