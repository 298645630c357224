package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. Operators quote the code from a report or an API
// response; support looks it up here.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	          Action: Split the reference file into smaller files
//	          Patterns: "file too large"
//
//	FILE002 - Malformed file: The header row could not be read
//	          Action: Re-export the file as CSV (UTF-8) or XLSX
//	          Types: tabular.MalformedFileError
//
//	FILE003 - Unsupported format: The file type is not supported
//	          Action: Upload a .csv, .tsv, .txt or .xlsx file
//	          Types: tabular.UnsupportedFormatError
//
//	FILE004 - No file: No file was provided
//	          Action: Select a reference file to upload
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The uploaded file is empty
//	          Action: Upload a file with a header row
//	          Patterns: "file is empty"
//
// # Column Errors (COL001-COL099)
//
//	COL001 - Missing identity column: No "name" column in the header
//	         Action: Add a "name" column holding the asset names
//	         Types: MissingIdentityColumnError
//
//	COL002 - Duplicate identity column: More than one "name" column
//	         Action: Keep exactly one "name" column
//	         Types: DuplicateIdentityColumnError
//
// # Value Errors (VAL001-VAL099)
//
//	VAL001 - Invalid enum: Value is not in the allowed list
//	         Action: Use VERIFIED, DRAFT or DEPRECATED for certificate
//	         Types: InvalidEnumValueError
//
//	VAL002 - Invalid owner: Owner identifier is not valid
//	         Action: Separate owners with commas; identifiers cannot contain control characters
//	         Types: InvalidOwnerError
//
//	VAL003 - Unknown asset type: Asset type is not configured
//	         Action: Choose from the configured asset types
//	         Types: UnknownAssetTypeError
//
// # Catalog Errors (CAT001-CAT099)
//
//	CAT001 - Search failed: The catalog lookup failed
//	CAT002 - Search timeout: The catalog lookup timed out
//	CAT003 - Update rejected: The catalog refused the change
//	CAT004 - Catalog unavailable: The catalog could not process the change
//	CAT005 - Update timeout: The catalog update timed out
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run cancelled
//	RUN002 - System busy: Too many runs in progress
//	RUN003 - Run not found
//	RUN004 - Request cancelled ("context canceled")
//	RUN005 - Request timeout ("context deadline exceeded")
//
// # Request Errors (REQ001)
//
//	REQ001 - Invalid request: The request body or form is malformed
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the application logs for the technical error
//
// Typed errors are matched first with errors.As. Everything else falls back
// to case-insensitive substring patterns, where the first match wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/metascaler/internal/tabular"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the reference file into smaller files",
		Code:    "FILE001",
	}
	msgMalformedFile = UserMessage{
		Message: "The file header could not be read",
		Action:  "Re-export the file as CSV (UTF-8) or XLSX",
		Code:    "FILE002",
	}
	msgUnsupportedFormat = UserMessage{
		Message: "The file type is not supported",
		Action:  "Upload a .csv, .tsv, .txt or .xlsx file",
		Code:    "FILE003",
	}
	msgNoFile = UserMessage{
		Message: "No file was provided",
		Action:  "Select a reference file to upload",
		Code:    "FILE004",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a file with a header row",
		Code:    "FILE005",
	}
	msgMissingIdentity = UserMessage{
		Message: `The file has no "name" column`,
		Action:  `Add a "name" column holding the asset names`,
		Code:    "COL001",
	}
	msgDuplicateIdentity = UserMessage{
		Message: `The file has more than one "name" column`,
		Action:  `Keep exactly one "name" column`,
		Code:    "COL002",
	}
	msgInvalidEnum = UserMessage{
		Message: "Value is not in the allowed list",
		Action:  "Use VERIFIED, DRAFT or DEPRECATED for certificate",
		Code:    "VAL001",
	}
	msgInvalidOwner = UserMessage{
		Message: "Owner identifier is not valid",
		Action:  "Separate owners with commas; identifiers cannot contain control characters",
		Code:    "VAL002",
	}
	msgUnknownAssetType = UserMessage{
		Message: "Asset type is not configured",
		Action:  "Choose from the configured asset types",
		Code:    "VAL003",
	}
	msgSearchFailed = UserMessage{
		Message: "The catalog lookup failed",
		Action:  "Re-run the file once the catalog is reachable",
		Code:    "CAT001",
	}
	msgSearchTimeout = UserMessage{
		Message: "The catalog lookup timed out",
		Action:  "Re-run the file or raise CATALOG_SEARCH_TIMEOUT",
		Code:    "CAT002",
	}
	msgMutationRejected = UserMessage{
		Message: "The catalog rejected the change",
		Action:  "Check custom metadata set and field names and the value format",
		Code:    "CAT003",
	}
	msgMutationTransient = UserMessage{
		Message: "The catalog could not process the change",
		Action:  "Re-run the failed rows later",
		Code:    "CAT004",
	}
	msgMutationTimeout = UserMessage{
		Message: "The catalog update timed out",
		Action:  "Re-run the failed rows or raise CATALOG_MUTATE_TIMEOUT",
		Code:    "CAT005",
	}
	msgTooManyRuns = UserMessage{
		Message: "System is busy processing other runs",
		Action:  "Please wait a moment and try again",
		Code:    "RUN002",
	}
	msgRunNotFound = UserMessage{
		Message: "Run not found",
		Action:  "The run may have expired. Check the run history",
		Code:    "RUN003",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages for errors that carry no type. More specific patterns come first.
var errorPatterns = []errorPattern{
	{pattern: "file too large", msg: msgFileTooLarge},
	{pattern: "request body too large", msg: msgFileTooLarge},
	{pattern: "no file provided", msg: msgNoFile},
	{pattern: "too many concurrent runs", msg: msgTooManyRuns},
	{pattern: "run not found", msg: msgRunNotFound},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request is not valid",
			Action:  "Check the request fields and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "run cancelled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Start a new run when ready",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "RUN005",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check the application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. For a
// NormalizationError the first failure in header order decides the code.
//
// Example:
//
//	msg := MapError(&InvalidEnumValueError{Column: "certificate", Value: "bogus"})
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ne *NormalizationError
	if errors.As(err, &ne) && len(ne.Errs) > 0 {
		err = ne.Errs[0]
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// mapTyped matches the error types this module defines.
func mapTyped(err error) (UserMessage, bool) {
	var (
		malformed   *tabular.MalformedFileError
		unsupported *tabular.UnsupportedFormatError
		missing     *MissingIdentityColumnError
		duplicate   *DuplicateIdentityColumnError
		enum        *InvalidEnumValueError
		owner       *InvalidOwnerError
		assetType   *UnknownAssetTypeError
		search      *SearchError
		mutation    *MutationError
	)

	switch {
	case errors.As(err, &malformed):
		if malformed.Reason == "file is empty" {
			return msgEmptyFile, true
		}
		return msgMalformedFile, true
	case errors.As(err, &unsupported):
		return msgUnsupportedFormat, true
	case errors.As(err, &missing):
		return msgMissingIdentity, true
	case errors.As(err, &duplicate):
		return msgDuplicateIdentity, true
	case errors.As(err, &enum):
		return msgInvalidEnum, true
	case errors.As(err, &owner):
		return msgInvalidOwner, true
	case errors.As(err, &assetType):
		return msgUnknownAssetType, true
	case errors.As(err, &search):
		if search.Timeout {
			return msgSearchTimeout, true
		}
		return msgSearchFailed, true
	case errors.As(err, &mutation):
		switch mutation.Kind {
		case MutationRejected:
			return msgMutationRejected, true
		case MutationTimeout:
			return msgMutationTimeout, true
		default:
			return msgMutationTransient, true
		}
	}
	return UserMessage{}, false
}

// isFileError reports whether err comes from decoding the reference file.
func isFileError(err error) bool {
	var (
		malformed   *tabular.MalformedFileError
		unsupported *tabular.UnsupportedFormatError
	)
	return errors.As(err, &malformed) || errors.As(err, &unsupported)
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error maps to a specific code rather
// than the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a
// user-friendly message. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
