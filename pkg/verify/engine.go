package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/crossffi/bridgen/internal/sandbox"
	"github.com/crossffi/bridgen/pkg/codegen"
	"github.com/crossffi/bridgen/pkg/spec"
)

// CargoRunner executes cargo test in a crate directory. Satisfied by
// sandbox.Runner; tests substitute stubs.
type CargoRunner interface {
	CargoTest(ctx context.Context, dir string) (*sandbox.RunResult, error)
}

// Engine verifies converter pairs in temporary cargo crates.
type Engine struct {
	runner    CargoRunner
	box       *sandbox.Sandbox
	workDir   string
	samples   *SampleStore
	keepCrate bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner sets the cargo runner.
func WithRunner(r CargoRunner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithWorkDir sets the root under which harness crates are materialized.
func WithWorkDir(dir string) Option {
	return func(e *Engine) { e.workDir = dir }
}

// WithSandbox sets the filesystem sandbox checked before writing crates.
func WithSandbox(s *sandbox.Sandbox) Option {
	return func(e *Engine) { e.box = s }
}

// WithSamples sets the recorded-fill store.
func WithSamples(s *SampleStore) Option {
	return func(e *Engine) { e.samples = s }
}

// WithKeepCrates disables crate cleanup after a run, for debugging.
func WithKeepCrates() Option {
	return func(e *Engine) { e.keepCrate = true }
}

// NewEngine creates a verification engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		runner:  &sandbox.Runner{},
		workDir: filepath.Join(os.TempDir(), "bridgen"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one verification job. TypeDefs carries the Rust definitions of
// the unidiomatic struct and its idiomatic counterpart (from the translated
// code under test); Deps carries already-verified converters the pair
// delegates to. Fill, when set, overrides both samples and the synthesized
// default.
type Request struct {
	Spec     *spec.StructSpec
	Pair     *codegen.ConverterPair
	TypeDefs string
	Deps     string
	Fill     []string
	Attempt  int
}

// VerifyStruct builds the harness crate for one converter pair, runs its
// roundtrip test under the deadline, and classifies the outcome. Fill
// precedence: request fill, then recorded samples, then the synthesized
// default.
func (e *Engine) VerifyStruct(ctx context.Context, req *Request) (*Result, error) {
	name := req.Spec.StructName
	dir := filepath.Join(e.workDir, fmt.Sprintf("%s_attempt%d", strings.ToLower(name), req.Attempt))

	if e.box != nil {
		if err := e.box.CheckCrateDir(dir); err != nil {
			return nil, err
		}
	}

	fill := req.Fill
	if len(fill) == 0 {
		fill = e.samples.Fill(name)
	}
	if len(fill) == 0 {
		fill = DefaultFill(req.Spec)
	}

	data := &harnessData{
		StructName:   name,
		CType:        req.Pair.CType,
		IType:        req.Pair.IdiomaticType,
		ForwardName:  codegen.ForwardName(name, req.Pair.IdiomaticType),
		BackwardName: codegen.BackwardName(name, req.Pair.IdiomaticType),
		TypeDefs:     req.TypeDefs,
		Converters:   strings.TrimSpace(req.Deps + "\n" + req.Pair.Source),
		FillLines:    fill,
		CompareLines: CompareLines(req.Spec),
	}

	if e.box != nil {
		if err := e.box.CheckFileSize(int64(len(data.Converters) + len(data.TypeDefs))); err != nil {
			return nil, err
		}
	}

	crateName := "harness_" + strings.ToLower(name)
	if err := BuildCrate(dir, crateName, data); err != nil {
		return nil, err
	}
	if !e.keepCrate {
		defer os.RemoveAll(dir)
	}

	log.Debug("running roundtrip harness",
		zap.String("struct", name),
		zap.Int("attempt", req.Attempt),
		zap.String("dir", dir))

	run, err := e.runner.CargoTest(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("verify: run cargo for %q: %w", name, err)
	}

	res := Classify(name, run)
	res.Attempt = req.Attempt
	log.Info("verification attempt finished",
		zap.String("struct", name),
		zap.String("status", res.Status),
		zap.String("cause", res.Cause),
		zap.Duration("duration", res.Duration))
	return res, nil
}
