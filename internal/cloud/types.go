package cloud

import "time"

// DocumentType is the Type value for regular documents (as opposed to
// folders, which are "CollectionType" and not supported here).
const DocumentType = "DocumentType"

// documentVersion is the version of a freshly uploaded document.
const documentVersion = 1

// UploadDirections is the service's answer to an upload slot request.
// Fields are normalized from the JSON response.
type UploadDirections struct {
	DocumentID string
	Version    int
	WriteURL   string    // pre-authenticated, time-limited; NEVER log
	ExpiresAt  time.Time // zero if the service omitted or garbled it
	Success    bool
	Message    string
}

// Expired reports whether the slot can no longer be written at now.
// A zero ExpiresAt never expires.
func (d *UploadDirections) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}
