package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	coreerrors "github.com/davidahmann/archiveprep/core/errors"
)

// Exit codes are a stable contract shared by every subcommand.
const (
	exitOK                = 0
	exitInternalFailure   = 1
	exitVerifyFailed      = 2
	exitPolicyBlocked     = 3
	exitApprovalRequired  = 4
	exitRegressFailed     = 5
	exitInvalidInput      = 6
	exitMissingDependency = 7
	exitUnsafeOperation   = 8
)

// errorDetails is embedded in every subcommand output so classified errors
// keep their code, category and hint in the JSON envelope.
type errorDetails struct {
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

func detailsFor(err error) errorDetails {
	if err == nil {
		return errorDetails{}
	}
	return errorDetails{
		Error:         err.Error(),
		ErrorCode:     coreerrors.CodeOf(err),
		ErrorCategory: string(coreerrors.CategoryOf(err)),
		Hint:          coreerrors.HintOf(err),
	}
}

func messageDetails(message string) errorDetails {
	return errorDetails{Error: message}
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func writeErrorText(command string, details errorDetails) {
	fmt.Printf("%s error: %s\n", command, details.Error)
	if details.Hint != "" {
		fmt.Printf("hint: %s\n", details.Hint)
	}
}

func marshalOutputWithErrorEnvelope(output any, exitCode int) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(asString(result["correlation_id"])) == "" {
		if correlationID := currentCorrelationID(); correlationID != "" {
			result["correlation_id"] = correlationID
		}
	}
	if strings.TrimSpace(asString(result["error"])) == "" {
		return json.Marshal(result)
	}
	if strings.TrimSpace(asString(result["error_code"])) == "" {
		result["error_code"] = defaultErrorCode(exitCode)
	}
	if strings.TrimSpace(asString(result["error_category"])) == "" {
		result["error_category"] = string(defaultErrorCategory(exitCode))
	}
	if _, exists := result["retryable"]; !exists {
		result["retryable"] = defaultRetryable(coreerrors.Category(asString(result["error_category"])))
	}
	if strings.TrimSpace(asString(result["hint"])) == "" {
		result["hint"] = defaultHint(exitCode)
	}
	return json.Marshal(result)
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case coreerrors.CategoryVerification:
		return exitVerifyFailed
	case coreerrors.CategoryDependencyMissing:
		return exitMissingDependency
	case coreerrors.CategoryIOFailure, coreerrors.CategoryNetworkTransient, coreerrors.CategoryNetworkPermanent, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return exitInternalFailure
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitVerifyFailed:
		return coreerrors.CategoryVerification
	case exitMissingDependency:
		return coreerrors.CategoryDependencyMissing
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultErrorCode(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "invalid_input"
	case exitVerifyFailed:
		return "verification_failed"
	case exitPolicyBlocked:
		return "policy_blocked"
	case exitApprovalRequired:
		return "approval_required"
	case exitMissingDependency:
		return "dependency_missing"
	case exitUnsafeOperation:
		return "unsafe_operation"
	case exitRegressFailed:
		return "regress_failed"
	default:
		return "internal_failure"
	}
}

func defaultHint(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "check command usage and the archive link"
	case exitVerifyFailed:
		return "regenerate the artifact and retry"
	case exitMissingDependency:
		return "install or configure the missing dependency and retry"
	default:
		return "retry after checking local environment and logs"
	}
}

func defaultRetryable(category coreerrors.Category) bool {
	return category == coreerrors.CategoryNetworkTransient
}

func asString(value any) string {
	text, _ := value.(string)
	return text
}
