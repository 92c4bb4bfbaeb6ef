// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldUser          = "user"
	FieldVideoID       = "video_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Labeling fields
	FieldLabel     = "label"
	FieldCount     = "count"
	FieldTarget    = "target"
	FieldRemaining = "remaining"
	FieldReason    = "reason"

	// Path fields
	FieldPath = "path"
)
