// Package llm is the escalation backend: a collaborator model that receives
// unresolved mapping fragments and returns spec corrections, converter code
// or fill values inside tagged blocks.
package llm

import "context"

// Collaborator generates a reply for an escalation prompt.
type Collaborator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
