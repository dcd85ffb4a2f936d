package escalate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crossffi/bridgen/pkg/codegen"
	"github.com/crossffi/bridgen/pkg/verify"
)

type fakeCollab struct {
	replies []string
	calls   int
	prompts []string
}

func (f *fakeCollab) Name() string { return "fake" }

func (f *fakeCollab) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.calls >= len(f.replies) {
		return "", errors.New("no scripted reply")
	}
	reply := f.replies[f.calls]
	f.calls++
	return reply, nil
}

type fakeReporter struct {
	reported []*Request
}

func (f *fakeReporter) Report(_ context.Context, req *Request) error {
	f.reported = append(f.reported, req)
	return nil
}

const validSpecReply = "Adjusting the mapping.\n" +
	"----SPEC----\n" +
	`{"struct_name": "Record", "fields": [` +
	`{"u_field": {"name": "count", "type": "libc::c_int", "shape": "scalar"}, ` +
	`"i_field": {"name": "count", "type": "i32"}}]}` + "\n" +
	"----END SPEC----\n"

func baseRequest() *Request {
	return &Request{
		SpecName: "Record",
		Kind:     KindStruct,
		SpecJSON: []byte(`{"struct_name": "Record"}`),
		Unresolved: []codegen.Unresolved{
			{Spec: "Record", Field: "hdr.alias", Reason: "dot-path unidiomatic field names are not supported",
				Note: "aliases the first header entry"},
		},
		Result: &verify.Result{
			Spec: "Record", Status: verify.StatusMismatch,
			MismatchPaths: []string{"scores.len"},
			Output:        "assertion failed: field scores.len mismatch",
		},
		Attempt: 1,
	}
}

func TestEscalateParsesSpecPatch(t *testing.T) {
	collab := &fakeCollab{replies: []string{validSpecReply}}
	c := NewController(collab)

	patch, err := c.Escalate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if patch.Struct == nil || patch.Struct.StructName != "Record" {
		t.Errorf("patch = %+v", patch)
	}

	prompt := collab.prompts[0]
	for _, want := range []string{
		"hdr.alias",
		"aliases the first header entry",
		"scores.len",
		"----SPEC----",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestEscalateInvalidSpecReply(t *testing.T) {
	// Parseable JSON, but fails re-validation (no fields).
	collab := &fakeCollab{replies: []string{
		"----SPEC----\n{\"struct_name\": \"Record\"}\n----END SPEC----",
	}}
	c := NewController(collab)

	_, err := c.Escalate(context.Background(), baseRequest())
	if !errors.Is(err, ErrInvalidReply) {
		t.Errorf("err = %v, want ErrInvalidReply", err)
	}
}

func TestEscalateNoBlocksIsInvalid(t *testing.T) {
	collab := &fakeCollab{replies: []string{"I think the spec looks fine, honestly."}}
	c := NewController(collab)

	_, err := c.Escalate(context.Background(), baseRequest())
	if !errors.Is(err, ErrInvalidReply) {
		t.Errorf("err = %v, want ErrInvalidReply", err)
	}
}

func TestEscalateUnbalancedCode(t *testing.T) {
	collab := &fakeCollab{replies: []string{
		"----CODE----\npub unsafe fn broken( {\n----END CODE----",
	}}
	c := NewController(collab)

	_, err := c.Escalate(context.Background(), baseRequest())
	if !errors.Is(err, ErrInvalidReply) {
		t.Errorf("err = %v, want ErrInvalidReply", err)
	}
}

func TestEscalateFillOnlyPatch(t *testing.T) {
	collab := &fakeCollab{replies: []string{
		"----FILL----\nc0.count = 4 as libc::c_int;\n----END FILL----",
	}}
	c := NewController(collab)

	patch, err := c.Escalate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if len(patch.Fill) != 1 || patch.Struct != nil {
		t.Errorf("patch = %+v", patch)
	}
}

func TestEscalateExhaustionReports(t *testing.T) {
	collab := &fakeCollab{}
	reporter := &fakeReporter{}
	c := NewController(collab, WithMaxAttempts(2), WithReporter(reporter))

	req := baseRequest()
	req.Attempt = 3
	_, err := c.Escalate(context.Background(), req)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if len(reporter.reported) != 1 || reporter.reported[0].SpecName != "Record" {
		t.Errorf("reporter calls = %+v", reporter.reported)
	}
	if collab.calls != 0 {
		t.Error("collaborator must not be called past the budget")
	}
}

func TestIssueBody(t *testing.T) {
	req := baseRequest()
	req.Attempt = 4
	body := issueBody(req)
	for _, want := range []string{"mismatch", "scores.len", "hdr.alias", "Current spec"} {
		if !strings.Contains(body, want) {
			t.Errorf("issue body missing %q:\n%s", want, body)
		}
	}
}
