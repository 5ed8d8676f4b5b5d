package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrQuizCompleted        ErrCode = "QUIZ_COMPLETED"
	ErrQuizNotReady         ErrCode = "QUIZ_NOT_READY"
	ErrQuizNotStarted       ErrCode = "QUIZ_NOT_STARTED"
	ErrQuestionOutOfRange   ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrUnknownOption        ErrCode = "UNKNOWN_OPTION"
	ErrQuestionsUnavailable ErrCode = "QUESTIONS_UNAVAILABLE"
	ErrReportNotFound       ErrCode = "REPORT_NOT_FOUND"

	// ─── AI ────────────────────────────────────────────────────────────
	ErrAIUnavailable ErrCode = "AI_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token required."
	case ErrTokenInvalid:
		return "Invalid authentication token."
	case ErrTokenExpired:
		return "Authentication token expired. Please start again."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrQuizCompleted:
		return "This quiz has already been submitted."
	case ErrQuizNotReady:
		return "Questions are still loading."
	case ErrQuizNotStarted:
		return "No quiz session is active. Start the quiz first."
	case ErrQuestionOutOfRange:
		return "Question index out of range."
	case ErrUnknownOption:
		return "The option does not belong to this question."
	case ErrQuestionsUnavailable:
		return "Could not load questions. Please retry."
	case ErrReportNotFound:
		return "No finished quiz to report on."

	// ─── AI ────────────────────────────────────────────────────────────
	case ErrAIUnavailable:
		return "AI service currently busy."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}
