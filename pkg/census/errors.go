package census

import (
	"errors"
	"fmt"
	"strings"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 512

var (
	// ErrMissingAPIKey is returned by data queries when no key is configured.
	ErrMissingAPIKey = errors.New("census: API key is required for data queries")

	// ErrNoData is returned when a data query matches nothing or a metadata
	// document comes back empty (HTTP 204).
	ErrNoData = errors.New("census: query returned no data")

	// ErrInvalidQuery is returned when required query inputs are missing.
	ErrInvalidQuery = errors.New("census: invalid query")

	// ErrInvalidResponse is returned when the API answers 2xx with a body
	// that is not JSON, such as the HTML page served for an invalid key.
	ErrInvalidResponse = errors.New("census: invalid response")

	// ErrPlaceNotFound is matched by *PlaceNotFoundError.
	ErrPlaceNotFound = errors.New("census: place not found")
)

// StatusError reports a non-2xx response from the Census API.
type StatusError struct {
	StatusCode int
	URL        string // API key redacted
	Body       string // truncated
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("census API returned HTTP %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("census API returned HTTP %d for %s: %s", e.StatusCode, e.URL, body)
}

// PlaceNotFoundError reports a name lookup miss with the closest names
// available at the requested geography level.
type PlaceNotFoundError struct {
	Name        string
	Geography   string
	Suggestions []string
}

func (e *PlaceNotFoundError) Error() string {
	msg := fmt.Sprintf("no %s named %q", e.Geography, e.Name)
	if len(e.Suggestions) > 0 {
		msg += "; did you mean: " + strings.Join(e.Suggestions, ", ")
	}
	return msg
}

func (e *PlaceNotFoundError) Is(target error) bool {
	return target == ErrPlaceNotFound
}

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "..."
}
