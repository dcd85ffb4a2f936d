// Package escalate routes verification failures back to a collaborator
// model under a bounded attempt budget. Replies are untrusted: a corrected
// spec is re-validated and replacement code is structurally checked before
// either is allowed back into the loop.
package escalate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/crossffi/bridgen/internal/llm"
	"github.com/crossffi/bridgen/pkg/codegen"
	"github.com/crossffi/bridgen/pkg/spec"
	"github.com/crossffi/bridgen/pkg/verify"
)

// ErrExhausted is returned when a spec has used up its attempt budget. The
// pipeline stops escalating and surfaces the last result.
var ErrExhausted = errors.New("escalate: attempt budget exhausted")

// ErrInvalidReply is returned when the collaborator's reply fails
// re-validation. The attempt is consumed.
var ErrInvalidReply = errors.New("escalate: invalid collaborator reply")

// DefaultMaxAttempts bounds escalation rounds per spec.
const DefaultMaxAttempts = 3

// Spec kinds.
const (
	KindStruct   = "struct"
	KindFunction = "function"
)

// Request is one escalation: the failing spec, the fragments codegen could
// not resolve, and the verification result that triggered it.
type Request struct {
	SpecName   string
	Kind       string
	SpecJSON   []byte
	Unresolved []codegen.Unresolved
	Result     *verify.Result
	Attempt    int
}

// Patch is the usable content of a collaborator reply. Any combination of
// the three may be present; at least one always is.
type Patch struct {
	Struct   *spec.StructSpec
	Function *spec.FunctionSpec
	SpecJSON []byte
	Code     string
	Fill     []string
}

// Reporter receives specs that exhausted their budget.
type Reporter interface {
	Report(ctx context.Context, req *Request) error
}

// Controller runs the escalation loop for the pipeline.
type Controller struct {
	collab      llm.Collaborator
	maxAttempts int
	reporter    Reporter
	log         *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAttempts overrides the per-spec attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithReporter installs a reporter for exhausted specs.
func WithReporter(r Reporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithLogger installs a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// NewController creates a controller around a collaborator.
func NewController(collab llm.Collaborator, opts ...Option) *Controller {
	c := &Controller{
		collab:      collab,
		maxAttempts: DefaultMaxAttempts,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxAttempts returns the per-spec budget.
func (c *Controller) MaxAttempts() int {
	return c.maxAttempts
}

// Escalate sends one failure to the collaborator and parses the reply.
// Attempts beyond the budget return ErrExhausted (after notifying the
// reporter, if any); malformed replies return ErrInvalidReply and consume
// the attempt.
func (c *Controller) Escalate(ctx context.Context, req *Request) (*Patch, error) {
	if req.Attempt > c.maxAttempts {
		c.log.Warn("escalation budget exhausted",
			zap.String("spec", req.SpecName),
			zap.Int("attempts", c.maxAttempts))
		if c.reporter != nil {
			if err := c.reporter.Report(ctx, req); err != nil {
				c.log.Error("exhaustion report failed",
					zap.String("spec", req.SpecName), zap.Error(err))
			}
		}
		return nil, fmt.Errorf("spec %q: %w", req.SpecName, ErrExhausted)
	}

	prompt := BuildPrompt(req)
	c.log.Info("escalating to collaborator",
		zap.String("spec", req.SpecName),
		zap.String("collaborator", c.collab.Name()),
		zap.Int("attempt", req.Attempt))

	reply, err := c.collab.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("escalate %q: %w", req.SpecName, err)
	}
	return c.parseReply(req, reply)
}

func (c *Controller) parseReply(req *Request, reply string) (*Patch, error) {
	patch := &Patch{}

	if body, ok := llm.ExtractBlock(reply, "SPEC"); ok {
		raw := []byte(body)
		switch req.Kind {
		case KindFunction:
			fs, err := spec.ParseFunction(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
			}
			if v := spec.ValidateFunction(fs, req.SpecName); !v.Valid() {
				return nil, fmt.Errorf("%w: %s", ErrInvalidReply, v.Error())
			}
			patch.Function = fs
		default:
			ss, err := spec.ParseStruct(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
			}
			if v := spec.ValidateStruct(ss, req.SpecName); !v.Valid() {
				return nil, fmt.Errorf("%w: %s", ErrInvalidReply, v.Error())
			}
			patch.Struct = ss
		}
		patch.SpecJSON = raw
	}

	if code, ok := llm.ExtractBlock(reply, "CODE"); ok {
		if err := llm.CheckBalanced(code); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
		}
		patch.Code = code
	}

	patch.Fill = llm.ExtractFill(reply)

	if patch.Struct == nil && patch.Function == nil && patch.Code == "" && len(patch.Fill) == 0 {
		return nil, fmt.Errorf("%w: no SPEC, CODE or FILL block", ErrInvalidReply)
	}
	return patch, nil
}
