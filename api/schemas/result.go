package schemas

import "time"

// ActionResult records the outcome of one actuation attempt. Failures are
// reported through this type rather than as errors so that the execution
// engine can apply its retry policy uniformly.
type ActionResult struct {
	Success              bool       `json:"success"`
	ActionType           ActionType `json:"action_type"`
	Details              string     `json:"details,omitempty"`
	Error                string     `json:"error,omitempty"`
	ConfirmationRequired bool       `json:"confirmation_required,omitempty"`
	Timestamp            time.Time  `json:"timestamp"`
}

// FailedResult builds a failure record for the given action.
func FailedResult(a Action, reason string) ActionResult {
	return ActionResult{
		Success:    false,
		ActionType: a.Type(),
		Error:      reason,
		Timestamp:  time.Now().UTC(),
	}
}

// OKResult builds a success record for the given action.
func OKResult(a Action, details string) ActionResult {
	return ActionResult{
		Success:    true,
		ActionType: a.Type(),
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
}
