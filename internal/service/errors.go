package service

import "errors"

// Sentinel errors callers can classify with errors.Is
var (
	// ErrForbidden means the acting user lacks access to the resource
	ErrForbidden = errors.New("forbidden")
	// ErrWindowClosed means the conversation's window does not accept messages
	ErrWindowClosed = errors.New("window is not accepting messages")
	// ErrOutsideTimeWindow means the provider's allowed hours exclude now
	ErrOutsideTimeWindow = errors.New("outside allowed messaging hours")
	// ErrDailyLimitReached means the patient hit their daily message cap
	ErrDailyLimitReached = errors.New("daily message limit reached")
	// ErrMessageLimitReached means the conversation hit its template cap
	ErrMessageLimitReached = errors.New("conversation message limit reached")
	// ErrModelNotAllowed means provider settings exclude the requested model
	ErrModelNotAllowed = errors.New("model not allowed by provider settings")
	// ErrReportExists means a report was already generated for the window
	ErrReportExists = errors.New("report already exists for window")
	// ErrWindowNotEnded means report generation was requested before end time
	ErrWindowNotEnded = errors.New("window has not ended yet")
	// ErrNoModelAvailable means no chat model could be reached
	ErrNoModelAvailable = errors.New("no model available")
	// ErrWindowHasConversations means a window with chat activity cannot be
	// deleted, only deactivated
	ErrWindowHasConversations = errors.New("window has conversations")
)
