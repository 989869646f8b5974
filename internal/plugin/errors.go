package plugin

import "errors"

// Error taxonomy shared by all source plugins and their API clients.
var (
	// ErrAuthFailed marks HTTP 401/403 responses. Callers should prompt for
	// re-authentication rather than retry.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited is surfaced after the retry budget for HTTP 429
	// responses is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownAction is returned when ExecuteAction receives an action id
	// the plugin does not declare.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownPlugin is returned by the registry for unregistered kinds.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrNotConfigured is returned when a referenced task source does not
	// exist in the store.
	ErrNotConfigured = errors.New("task source not configured")

	// ErrCapabilityUnsupported is returned when an optional capability
	// (user directory, reassignment) is requested from a plugin that does
	// not implement it.
	ErrCapabilityUnsupported = errors.New("capability not supported")
)

// RecordError records a failure to import one remote record. One bad record
// never aborts a sync; its message is appended to the result instead.
type RecordError struct {
	ExternalID string
	Title      string
	Err        error
}

func (e *RecordError) Error() string {
	id := e.ExternalID
	if e.Title != "" {
		id += " (" + e.Title + ")"
	}
	return id + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
