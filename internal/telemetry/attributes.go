// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Labeling attributes
	UserKey       = "vlabel.user"
	VideoIDKey    = "vlabel.video_id"
	LabelKey      = "vlabel.label"
	CountKey      = "vlabel.count"
	DoneReasonKey = "vlabel.done_reason"
	TargetKey     = "vlabel.target"
	RemainingKey  = "vlabel.remaining"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// AssignmentAttributes describes one engine call. Empty values are omitted.
func AssignmentAttributes(user, videoID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if user != "" {
		attrs = append(attrs, attribute.String(UserKey, user))
	}
	if videoID != "" {
		attrs = append(attrs, attribute.String(VideoIDKey, videoID))
	}
	return attrs
}

// QuotaAttributes records the balancing outcome for a user.
func QuotaAttributes(target, remaining int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(TargetKey, target),
		attribute.Int(RemainingKey, remaining),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
