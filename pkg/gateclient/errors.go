package gateclient

import "fmt"

// AuthRequiredError is returned when the current user is anonymous. The SDK
// never calls the network for anonymous users; it produces this locally with
// the login redirect the UI should navigate to.
type AuthRequiredError struct {
	RedirectTo string
}

func (e *AuthRequiredError) Error() string {
	return "authentication required, redirect to " + e.RedirectTo
}

// ActivationRejectedError carries the server's refusal message verbatim, so
// the UI shows exactly what the platform said ("Solde insuffisant" and
// friends) rather than a paraphrase.
type ActivationRejectedError struct {
	ModuleID string
	Message  string
}

func (e *ActivationRejectedError) Error() string {
	if e.ModuleID == "" {
		return e.Message
	}
	return fmt.Sprintf("activation of %q rejected: %s", e.ModuleID, e.Message)
}
