package escalate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v60/github"
)

// GitHubReporter files an issue when a spec exhausts its escalation budget,
// so a human picks up where the collaborator gave up.
type GitHubReporter struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubReporter creates a reporter for owner/repo using a token.
func NewGitHubReporter(token, owner, repo string) (*GitHubReporter, error) {
	if token == "" {
		return nil, fmt.Errorf("escalate: github reporter needs a token")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("escalate: github reporter needs owner and repo")
	}
	return &GitHubReporter{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		repo:   repo,
	}, nil
}

// Report creates the issue. The body mirrors the escalation payload minus
// the prompt scaffolding.
func (r *GitHubReporter) Report(ctx context.Context, req *Request) error {
	title := fmt.Sprintf("conversion spec %q exhausted escalation budget", req.SpecName)
	body := issueBody(req)
	labels := []string{"ffi-harness", "escalation-exhausted"}

	_, _, err := r.client.Issues.Create(ctx, r.owner, r.repo, &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	})
	if err != nil {
		return fmt.Errorf("escalate: create issue for %q: %w", req.SpecName, err)
	}
	return nil
}

func issueBody(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "All %d escalation attempts for %s `%s` failed.\n\n", req.Attempt-1, req.Kind, req.SpecName)

	if r := req.Result; r != nil {
		fmt.Fprintf(&b, "Last outcome: **%s**", r.Status)
		if r.Cause != "" {
			fmt.Fprintf(&b, " (%s)", r.Cause)
		}
		b.WriteString("\n")
		if len(r.MismatchPaths) > 0 {
			fmt.Fprintf(&b, "Mismatched fields: `%s`\n", strings.Join(r.MismatchPaths, "`, `"))
		}
		if r.Output != "" {
			fmt.Fprintf(&b, "\n<details><summary>Harness output</summary>\n\n```\n%s\n```\n</details>\n", r.Output)
		}
	}

	if len(req.Unresolved) > 0 {
		b.WriteString("\nUnresolved fragments:\n")
		for _, u := range req.Unresolved {
			fmt.Fprintf(&b, "- `%s`: %s\n", u.Field, u.Reason)
		}
	}

	if len(req.SpecJSON) > 0 {
		fmt.Fprintf(&b, "\n<details><summary>Current spec</summary>\n\n```json\n%s\n```\n</details>\n", req.SpecJSON)
	}
	return b.String()
}
