package extractor

import (
	"fmt"
	"strings"
)

// Kind classifies why an extraction produced no article text.
type Kind int

const (
	// KindFetch: the server answered with a non-success status.
	KindFetch Kind = iota + 1
	// KindError: transport, read, decode or parse error.
	KindError
	// KindEmpty: the page was fetched but held no extractable text.
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch_failed"
	case KindError:
		return "fetch_error"
	case KindEmpty:
		return "no_content"
	default:
		return "unknown"
	}
}

// Sentinel prefixes rendered by Failure.Error. Callers that only see text use
// IsFailureText to tell them apart from article content.
const (
	PrefixFetchFailed = "Failed to fetch article"
	PrefixFetchError  = "Error fetching content"
	PrefixNoContent   = "No meaningful content found"
)

// Failure is the typed form of an extraction sentinel.
type Failure struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindFetch:
		return fmt.Sprintf("%s: %d", PrefixFetchFailed, f.Status)
	case KindEmpty:
		return fmt.Sprintf("%s at %s", PrefixNoContent, f.URL)
	default:
		return fmt.Sprintf("%s: %v", PrefixFetchError, f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailureText reports whether s is one of the rendered extraction sentinels.
func IsFailureText(s string) bool {
	return strings.HasPrefix(s, PrefixFetchFailed) ||
		strings.HasPrefix(s, PrefixFetchError) ||
		strings.HasPrefix(s, PrefixNoContent)
}
