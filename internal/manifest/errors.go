package manifest

import "errors"

// Sentinel errors for manifest operations. Callers should use errors.Is.
var (
	// ErrFetchFailed indicates the manifest request could not be completed.
	ErrFetchFailed = errors.New("manifest: fetch failed")
	// ErrHTTPStatus indicates the service answered with something other than 200.
	ErrHTTPStatus = errors.New("manifest: unexpected HTTP status")
	// ErrDecode indicates the response body was not a valid manifest document.
	ErrDecode = errors.New("manifest: malformed document")
	// ErrInvalidEndpoint is returned by NewClient for a non-absolute endpoint URL.
	ErrInvalidEndpoint = errors.New("manifest: invalid endpoint")
	// ErrMissingAPIKey is returned by NewClient when no bearer token is supplied.
	ErrMissingAPIKey = errors.New("manifest: missing api key")
	// ErrUnsupportedFormat is returned by FileSource for unknown file extensions.
	ErrUnsupportedFormat = errors.New("manifest: unsupported file format")
)
