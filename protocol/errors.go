package protocol

import (
	nlerrors "gitlab.com/NebulousLabs/errors"
)

// Envelope is the wire-level response wrapper every RPC method returns on
// failure: `{ "error": { "message": "..." } }`.
type Envelope struct {
	Error *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the single field the spec's error envelope carries.
type EnvelopeError struct {
	Message string `json:"message"`
}

// mapError wraps err with call context via nlerrors.Extend (so the logged
// message keeps every contextual frame, not just the leaf failure), then
// flattens the result into the plain-message envelope the wire format
// specifies. The returned envelope is lossy by design: callers branch on
// the typed core.Error themselves, before mapError ever runs.
func mapError(context string, err error) Envelope {
	extended := nlerrors.Extend(err, nlerrors.New(context))
	return Envelope{Error: &EnvelopeError{Message: extended.Error()}}
}
