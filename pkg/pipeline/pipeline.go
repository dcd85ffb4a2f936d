// Package pipeline drives a mapping spec through validation, assembly,
// verification and escalation, and registers converters that pass. Specs
// are processed sequentially within themselves and concurrently across each
// other, bounded by a worker pool; cross-struct references are scheduled so
// that a referenced struct verifies before its referrers assemble.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/crossffi/bridgen/pkg/codegen"
	"github.com/crossffi/bridgen/pkg/escalate"
	"github.com/crossffi/bridgen/pkg/events"
	"github.com/crossffi/bridgen/pkg/registry"
	"github.com/crossffi/bridgen/pkg/spec"
	"github.com/crossffi/bridgen/pkg/verify"
)

// defaultWorkers bounds concurrent spec processing.
const defaultWorkers = 4

// Verifier runs one verification attempt. Satisfied by verify.Engine.
type Verifier interface {
	VerifyStruct(ctx context.Context, req *verify.Request) (*verify.Result, error)
}

// Escalator runs the bounded correction loop. Satisfied by
// escalate.Controller.
type Escalator interface {
	Escalate(ctx context.Context, req *escalate.Request) (*escalate.Patch, error)
	MaxAttempts() int
}

// Job is one struct spec plus the Rust type definitions its harness needs
// (the unidiomatic struct and the translated idiomatic type).
type Job struct {
	Spec     *spec.StructSpec
	TypeDefs string
}

// Outcome is the terminal state of one spec's run.
type Outcome struct {
	Spec       string
	Result     *verify.Result
	Unresolved []codegen.Unresolved
	Attempts   int
	Registered bool
	Exhausted  bool
	Err        error
}

// Pipeline wires the stages together.
type Pipeline struct {
	registry  *registry.Registry
	store     *registry.Store
	verifier  Verifier
	escalator Escalator
	bus       events.Bus
	workers   int
	log       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEscalator installs the correction loop. Without one, the first
// failure is terminal.
func WithEscalator(e Escalator) Option {
	return func(p *Pipeline) { p.escalator = e }
}

// WithStore persists registered converters and attempt history.
func WithStore(s *registry.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithBus publishes progress events.
func WithBus(b events.Bus) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.bus = b
		}
	}
}

// WithWorkers sets the concurrency bound for RunAll.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger installs a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a pipeline around a registry and a verifier.
func New(reg *registry.Registry, v Verifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: reg,
		verifier: v,
		bus:      events.NopBus{},
		workers:  defaultWorkers,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunStruct processes one spec to its terminal state: validate (hard stop),
// assemble, verify, escalate on failure, and register on pass. Escalation
// patches feed the next attempt: a corrected spec replaces the current one,
// replacement code overrides assembly, fill values override the harness
// input.
func (p *Pipeline) RunStruct(ctx context.Context, job Job) *Outcome {
	s := job.Spec
	out := &Outcome{Spec: s.StructName}

	if v := spec.ValidateStruct(s, s.StructName); !v.Valid() {
		out.Err = errors.New(v.Error())
		p.bus.Publish(events.NewEvent(events.EventSpecRejected, s.StructName, v.Error()))
		return out
	}
	p.bus.Publish(events.NewEvent(events.EventSpecValidated, s.StructName, nil))

	current := s
	var patchCode string
	var fill []string

	maxLoops := 1
	if p.escalator != nil {
		maxLoops = p.escalator.MaxAttempts() + 1
	}

	// The attempt ceiling spans runs: history recorded by an earlier process
	// counts against this spec's budget.
	base := 0
	if p.store != nil {
		if hist, err := p.store.Attempts(s.StructName); err == nil {
			base = len(hist)
		}
	}

	for n := 1; n <= maxLoops; n++ {
		attempt := base + n
		out.Attempts = attempt

		var pair *codegen.ConverterPair
		if patchCode != "" {
			pair = &codegen.ConverterPair{
				StructName:    current.StructName,
				IdiomaticType: current.IdiomaticType(),
				CType:         codegen.CTypeName(current.StructName),
				Source:        patchCode,
			}
		} else {
			assembled, err := codegen.AssembleStruct(current, p.registry)
			if err != nil {
				out.Err = err
				return out
			}
			pair = assembled
		}
		out.Unresolved = pair.Unresolved
		p.bus.Publish(events.NewEvent(events.EventSpecAssembled, s.StructName, len(pair.Unresolved)))

		// Delegated converters may themselves delegate; the harness needs
		// the whole closure, dependencies first.
		deps := p.registry.CombinedSource(p.registry.Closure(codegen.StructDeps(current)...)...)
		ev := events.NewEvent(events.EventVerifyStart, s.StructName, nil)
		ev.Attempt = attempt
		p.bus.Publish(ev)

		res, err := p.verifier.VerifyStruct(ctx, &verify.Request{
			Spec:     current,
			Pair:     pair,
			TypeDefs: job.TypeDefs,
			Deps:     deps,
			Fill:     fill,
			Attempt:  attempt,
		})
		if err != nil {
			out.Err = err
			return out
		}
		out.Result = res

		ev = events.NewEvent(events.EventVerifyResult, s.StructName, res.Status)
		ev.Attempt = attempt
		p.bus.Publish(ev)
		p.recordAttempt(s.StructName, attempt, res)

		if res.Passed() {
			entry := &registry.Entry{
				StructName:    current.StructName,
				IdiomaticType: pair.IdiomaticType,
				Source:        pair.Source,
				SpecVersion:   current.Version,
				Deps:          codegen.StructDeps(current),
				Attempts:      attempt,
			}
			if err := p.registry.Register(entry); err != nil {
				out.Err = err
				return out
			}
			if p.store != nil {
				if err := p.store.SaveEntry(entry); err != nil {
					p.log.Error("persist converter", zap.String("spec", s.StructName), zap.Error(err))
				}
			}
			out.Registered = true
			p.bus.Publish(events.NewEvent(events.EventSpecPass, s.StructName, nil))
			p.bus.Publish(events.NewEvent(events.EventConverterRegistered, s.StructName, nil))
			return out
		}

		if p.escalator == nil {
			return out
		}

		specJSON, _ := json.Marshal(current)
		patch, err := p.escalator.Escalate(ctx, &escalate.Request{
			SpecName:   s.StructName,
			Kind:       escalate.KindStruct,
			SpecJSON:   specJSON,
			Unresolved: pair.Unresolved,
			Result:     res,
			Attempt:    attempt,
		})
		switch {
		case errors.Is(err, escalate.ErrExhausted):
			out.Exhausted = true
			p.bus.Publish(events.NewEvent(events.EventSpecExhausted, s.StructName, nil))
			return out
		case errors.Is(err, escalate.ErrInvalidReply):
			p.log.Warn("collaborator reply rejected",
				zap.String("spec", s.StructName), zap.Error(err))
			continue
		case err != nil:
			out.Err = err
			return out
		}

		p.bus.Publish(events.NewEvent(events.EventSpecEscalated, s.StructName, nil))
		if patch.Struct != nil {
			current = patch.Struct
			patchCode = ""
		}
		if patch.Code != "" {
			patchCode = patch.Code
		}
		if len(patch.Fill) > 0 {
			fill = patch.Fill
		}
	}

	return out
}

// RunAll processes a batch of specs. Dependency diagnostics (a ref into the
// void, a cycle between distinct structs) fail the whole batch up front;
// they are authoring errors, not per-spec failures. Independent specs run
// concurrently; a spec is scheduled only after everything it references has
// finished.
func (p *Pipeline) RunAll(ctx context.Context, jobs map[string]Job) (map[string]*Outcome, error) {
	specs := make(map[string]*spec.StructSpec, len(jobs))
	for name, job := range jobs {
		specs[name] = job.Spec
	}
	if _, err := codegen.Order(specs); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p.bus.Publish(events.NewEvent(events.EventPipelineStart, "", len(jobs)))
	defer p.bus.Publish(events.NewEvent(events.EventPipelineEnd, "", nil))

	dependents := make(map[string][]string)
	indegree := make(map[string]int, len(jobs))
	for name, s := range specs {
		deps := codegen.StructDeps(s)
		n := 0
		for _, dep := range deps {
			if _, ok := specs[dep]; ok {
				dependents[dep] = append(dependents[dep], name)
				n++
			}
		}
		indegree[name] = n
	}

	ready := make(chan string, len(jobs))
	outcomes := make(map[string]*Outcome, len(jobs))
	var mu sync.Mutex
	completed := 0

	for name, n := range indegree {
		if n == 0 {
			ready <- name
		}
	}

	var wg sync.WaitGroup
	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range ready {
				out := p.RunStruct(ctx, jobs[name])

				mu.Lock()
				outcomes[name] = out
				completed++
				for _, dep := range dependents[name] {
					indegree[dep]--
					if indegree[dep] == 0 {
						ready <- dep
					}
				}
				if completed == len(jobs) {
					close(ready)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return outcomes, nil
}

// GenerateFunction assembles a function harness, escalating unresolved
// arguments once when a collaborator is available. Function harnesses are
// compile-checked as part of the crate they ship in; there is no standalone
// roundtrip for them.
func (p *Pipeline) GenerateFunction(ctx context.Context, fs *spec.FunctionSpec) (*codegen.FunctionHarness, error) {
	if v := spec.ValidateFunction(fs, fs.FunctionName); !v.Valid() {
		return nil, errors.New(v.Error())
	}

	h, err := codegen.AssembleFunction(fs, p.registry)
	if err != nil {
		return nil, err
	}
	if len(h.Unresolved) == 0 || p.escalator == nil {
		return h, nil
	}

	specJSON, _ := json.Marshal(fs)
	patch, err := p.escalator.Escalate(ctx, &escalate.Request{
		SpecName:   fs.FunctionName,
		Kind:       escalate.KindFunction,
		SpecJSON:   specJSON,
		Unresolved: h.Unresolved,
		Attempt:    1,
	})
	if err != nil {
		// The original harness, TODO markers included, is still useful.
		p.log.Warn("function escalation failed",
			zap.String("spec", fs.FunctionName), zap.Error(err))
		return h, nil
	}
	if patch.Function != nil {
		return codegen.AssembleFunction(patch.Function, p.registry)
	}
	if patch.Code != "" {
		h.Source = patch.Code
		h.Unresolved = nil
	}
	return h, nil
}

func (p *Pipeline) recordAttempt(specName string, attempt int, res *verify.Result) {
	if p.store == nil {
		return
	}
	detail := res.Cause
	if len(res.MismatchPaths) > 0 {
		detail = fmt.Sprintf("fields: %v", res.MismatchPaths)
	}
	if err := p.store.RecordAttempt(&registry.Attempt{
		Spec:   specName,
		Number: attempt,
		Status: res.Status,
		Detail: detail,
	}); err != nil {
		p.log.Error("record attempt", zap.String("spec", specName), zap.Error(err))
	}
}
