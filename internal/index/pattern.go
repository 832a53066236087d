package index

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jtang613/pdbscope/pkg/provider"
)

// ErrPatternSyntax is matched by every *PatternError.
var ErrPatternSyntax = errors.New("invalid search pattern")

// PatternError reports a pattern that failed to compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid search pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap returns the compile error.
func (e *PatternError) Unwrap() error { return e.Err }

// Is reports ErrPatternSyntax as a match.
func (e *PatternError) Is(target error) bool { return target == ErrPatternSyntax }

// SearchResult holds the symbols matching a pattern, in provider order.
type SearchResult struct {
	Pattern   string
	Matches   []SymbolRecord
	Truncated bool
}

// SearchByPattern scans every public symbol of session and returns those whose
// name contains a case-insensitive match for pattern, stopping after limit
// matches. A non-positive limit uses DefaultMaxMatches.
func SearchByPattern(session provider.Session, pattern string, limit int) (*SearchResult, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	if limit <= 0 {
		limit = DefaultMaxMatches
	}

	result := &SearchResult{Pattern: pattern}
	for raw, err := range session.PublicSymbols() {
		if err != nil || raw.Name == "" {
			continue
		}
		if !re.MatchString(raw.Name) {
			continue
		}
		if len(result.Matches) == limit {
			result.Truncated = true
			break
		}
		result.Matches = append(result.Matches, SymbolRecord{
			Name:   raw.Name,
			RVA:    raw.RVA,
			Size:   raw.Size,
			TypeID: raw.TypeID,
		})
	}
	return result, nil
}
