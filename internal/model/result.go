package model

import "net/http"

// Result is the outcome of a remote write. OK mirrors a 2xx status.
type Result struct {
	OK     bool
	Status int
	ETag   string
	// URL is set on creation to the new document's url.
	URL string
	Err error
}

// NotFound is the result synthesized when a calendar or document cannot be
// resolved locally; no request is made.
func NotFound() Result {
	return Result{Status: http.StatusNotFound}
}
