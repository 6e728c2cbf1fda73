package recovery

import "fmt"

// Notification is the user-facing rendering of a failure.
type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

var categoryTitles = map[Category]string{
	CategoryNetwork:       "Connection problem",
	CategoryServer:        "Service unavailable",
	CategoryClient:        "Request rejected",
	CategoryValidation:    "Invalid data",
	CategoryAuthorization: "Authorization failed",
	CategoryIntegration:   "Integration error",
	CategoryTimeout:       "Operation timed out",
	CategoryConfiguration: "Scenario misconfigured",
}

var categoryHints = map[Category]string{
	CategoryNetwork:       "Check that the connected service is reachable.",
	CategoryServer:        "The connected service reported an internal error. It usually recovers on its own.",
	CategoryClient:        "The connected service rejected the request.",
	CategoryValidation:    "Review the data mapped into this step.",
	CategoryAuthorization: "Reconnect the account or refresh its credentials.",
	CategoryIntegration:   "The integration returned an unexpected response.",
	CategoryTimeout:       "The step took too long to respond.",
	CategoryConfiguration: "Review the scenario's steps and their dependencies.",
}

// FormatNotification renders a classified failure of nodeName in scenarioName.
func FormatNotification(c Classification, scenarioName, nodeName string) Notification {
	title, ok := categoryTitles[c.Category]
	if !ok {
		title = "Scenario failed"
	}

	message := fmt.Sprintf("Scenario %q failed at step %q: %s", scenarioName, nodeName, c.Message)
	if hint, ok := categoryHints[c.Category]; ok {
		message += " " + hint
	}

	return Notification{
		Title:    title,
		Message:  message,
		Severity: c.Severity,
	}
}
