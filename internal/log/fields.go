// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldCityID    = "city_id"
	FieldActionID  = "action_id"
	FieldVenueID   = "venue_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Cache fields
	FieldCacheKey = "cache_key"
	FieldBackend  = "backend"

	// Network fields
	FieldBaseURL    = "base_url"
	FieldStatusCode = "status_code"
)
