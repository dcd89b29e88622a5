// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldVideoID   = "video_id"
	FieldUser      = "user"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldKind      = "kind"
	FieldReason    = "reason"
	FieldAttempt   = "attempt"

	// Media fields
	FieldResolution = "resolution"
	FieldSegment    = "segment"
	FieldExitCode   = "exit_code"

	// Path / URL fields
	FieldPath         = "path"
	FieldSource       = "source"
	FieldPlaylistPath = "playlist_path"

	// HTTP fields
	FieldMethod   = "method"
	FieldRoute    = "route"
	FieldStatus   = "status"
	FieldBytes    = "bytes"
	FieldDuration = "duration_ms"
	FieldRemote   = "remote_addr"
)
