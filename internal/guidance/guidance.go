package guidance

import "context"

// Generator produces step-by-step troubleshooting guidance for an
// issue category and the reporter's free-text description. Any
// transport, auth or rate-limit failure is returned as a single error;
// the caller treats all failures uniformly.
type Generator interface {
	GenerateGuidance(ctx context.Context, issueType, description string) (string, error)
}
