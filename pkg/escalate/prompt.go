package escalate

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the escalation payload: the current spec document,
// every unresolved fragment with its author note, and the verification
// outcome that triggered the round. The reply contract mirrors what
// parseReply accepts.
func BuildPrompt(req *Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A generated FFI conversion harness for %s %q failed verification.\n\n",
		req.Kind, req.SpecName)

	b.WriteString("Current mapping spec:\n----SPEC----\n")
	b.Write(req.SpecJSON)
	b.WriteString("\n----END SPEC----\n\n")

	if len(req.Unresolved) > 0 {
		b.WriteString("Unresolved fragments:\n")
		for _, u := range req.Unresolved {
			fmt.Fprintf(&b, "- field %q: %s\n", u.Field, u.Reason)
			if u.Note != "" {
				fmt.Fprintf(&b, "  author note: %s\n", u.Note)
			}
		}
		b.WriteString("\n")
	}

	if r := req.Result; r != nil {
		fmt.Fprintf(&b, "Verification outcome: %s", r.Status)
		if r.Cause != "" {
			fmt.Fprintf(&b, " (%s)", r.Cause)
		}
		b.WriteString("\n")
		if len(r.MismatchPaths) > 0 {
			fmt.Fprintf(&b, "Mismatched fields: %s\n", strings.Join(r.MismatchPaths, ", "))
		}
		if r.Output != "" {
			fmt.Fprintf(&b, "Harness output (tail):\n%s\n", r.Output)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Attempt %d. Reply with any of:\n", req.Attempt)
	b.WriteString("----SPEC----\n<corrected mapping spec JSON>\n----END SPEC----\n")
	b.WriteString("----CODE----\n<replacement Rust converter code>\n----END CODE----\n")
	b.WriteString("----FILL----\n<Rust statements populating the test input c0>\n----END FILL----\n")
	return b.String()
}
