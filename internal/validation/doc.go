// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with custom validators and user-friendly error
// messages. It integrates with the application's API error format for consistent
// error responses.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the application's error format
//   - Built-in validator support (uuid, oneof, gte/lte, datetime, etc.)
//   - A custom "signature" validator for 32-hex identity signatures
//   - Future v11 compatibility with WithRequiredStructEnabled
//
// # Quick Start
//
//	type LinkRequest struct {
//	    Signature string `validate:"required,signature"`
//	    WorkID    string `validate:"required,uuid"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req LinkRequest
//	    if err := json.Decode(r.Body, &req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - min=n: Minimum length n characters
//   - max=n: Maximum length n characters
//   - uuid: Valid UUID string
//   - signature: 32-character lowercase hex identity signature
//
// Numeric validations:
//   - gte=n: Greater than or equal to n
//   - lte=n: Less than or equal to n
//   - gt=n: Greater than n
//   - lt=n: Less than n
//   - min=n: Minimum value n
//   - max=n: Maximum value n
//
// Enum validations:
//   - oneof=a b c: Must be one of the specified values
//
// # Error Types
//
// ValidationError represents a single field validation failure:
//
//	type ValidationError struct {
//	    Field()   string      // Struct field name
//	    Tag()     string      // Validation tag that failed
//	    Param()   string      // Tag parameter (e.g., "100" for max=100)
//	    Value()   interface{} // Actual value that failed
//	    Error()   string      // Human-readable message
//	}
//
// RequestValidationError aggregates multiple field errors:
//
//	type RequestValidationError struct {
//	    Errors() []ValidationError
//	    Error()  string           // Combined message
//	    ToAPIError() *APIError    // Convert to API error format
//	}
//
// # API Error Integration
//
// The ToAPIError method produces errors matching the application format:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "Signature must be a 32-character lowercase hex signature",
//	    "details": {"field": "Signature", "tag": "signature", "value": "abc"}
//	}
//
//	// Multiple field errors
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "Signature: Signature is required; WorkID: WorkID must be a valid UUID",
//	    "details": {
//	        "fields": [
//	            {"field": "Signature", "tag": "required", "message": "..."},
//	            {"field": "WorkID", "tag": "uuid", "message": "..."}
//	        ]
//	    }
//	}
//
// # Error Message Translation
//
// Human-readable messages are generated for common validation tags:
//
//	required   -> "Signature is required"
//	uuid       -> "WorkID must be a valid UUID"
//	min=3      -> "Callsign must be at least 3 characters"
//	max=100    -> "Title must be at most 100 characters"
//	gte=0      -> "Confidence must be greater than or equal to 0"
//	lte=1      -> "Confidence must be less than or equal to 1"
//	oneof=a b  -> "VersionType must be one of: a b"
//	signature  -> "Signature must be a 32-character lowercase hex signature"
//
// # Struct Tag Examples
//
// Queue listing validation:
//
//	type QueueRequest struct {
//	    Limit  int    `validate:"min=1,max=1000"`
//	    Offset int    `validate:"min=0,max=1000000"`
//	    Order  string `validate:"omitempty,oneof=asc desc"`
//	}
//
// Manual bridge creation:
//
//	type CreateBridgeRequest struct {
//	    Signature  string  `validate:"required,signature"`
//	    WorkID     string  `validate:"required,uuid"`
//	    Confidence float64 `validate:"gte=0,lte=1"`
//	}
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # Performance
//
// The validator caches struct reflection information:
//   - First validation of a struct type: ~1ms (reflection + caching)
//   - Subsequent validations: ~10us (cached)
//   - Memory: ~500 bytes per cached struct type
//
// # See Also
//
//   - internal/api: Request handlers using validation
//   - github.com/go-playground/validator/v10: Underlying library
package validation
