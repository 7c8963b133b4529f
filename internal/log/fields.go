// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldJobID         = "job_id"
	FieldICDKey        = "icd_key"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldSegment   = "segment"
	FieldAttempt   = "attempt"

	// Storage fields
	FieldBucket = "bucket"
	FieldObject = "object"
	FieldPath   = "path"

	// Inference fields
	FieldModel   = "model"
	FieldOutcome = "outcome"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
