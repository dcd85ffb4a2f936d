package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crossffi/bridgen/internal/config"
	"github.com/crossffi/bridgen/internal/llm"
	"github.com/crossffi/bridgen/internal/sandbox"
	"github.com/crossffi/bridgen/pkg/codegen"
	"github.com/crossffi/bridgen/pkg/escalate"
	"github.com/crossffi/bridgen/pkg/events"
	"github.com/crossffi/bridgen/pkg/pipeline"
	"github.com/crossffi/bridgen/pkg/registry"
	"github.com/crossffi/bridgen/pkg/spec"
	"github.com/crossffi/bridgen/pkg/verify"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Credentials may live in a local .env during development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: loading config: %v\n", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	verify.SetLogger(logger)

	switch os.Args[1] {
	case "validate":
		err = handleValidate(cfg, os.Args[2:])
	case "generate":
		err = handleGenerate(cfg, os.Args[2:])
	case "verify":
		err = handleVerify(cfg, logger, os.Args[2:])
	case "run":
		err = handleRun(cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: bridgen <command> [args]

commands:
  validate [name...]   check mapping specs without generating anything
  generate <name>      assemble a converter pair and print it
  verify <name>        generate, build and roundtrip one struct spec (no escalation)
  run [dir]            process every struct spec, dependency-ordered`)
}

func configPath() string {
	if p := os.Getenv("BRIDGEN_CONFIG"); p != "" {
		return p
	}
	return "bridgen.yaml"
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func handleValidate(cfg config.Config, names []string) error {
	structs, err := spec.ListStructs(cfg.SpecRoot)
	if err != nil {
		return err
	}
	functions, err := spec.ListFunctions(cfg.SpecRoot)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = append(structs, functions...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no specs under %s", cfg.SpecRoot)
	}

	isFunction := make(map[string]bool, len(functions))
	for _, name := range functions {
		isFunction[name] = true
	}

	failed := 0
	for _, name := range names {
		var v spec.ValidationResult
		if isFunction[name] {
			fs, err := spec.LoadFunction(cfg.SpecRoot, name)
			if err != nil {
				return err
			}
			v = spec.ValidateFunction(fs, name)
		} else {
			s, err := spec.LoadStruct(cfg.SpecRoot, name)
			if err != nil {
				return err
			}
			v = spec.ValidateStruct(s, name)
		}
		if !v.Valid() {
			failed++
			fmt.Printf("%s: %s\n", name, v.Error())
			continue
		}
		fmt.Printf("%s: ok\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d spec(s) failed validation", failed)
	}
	return nil
}

func handleGenerate(cfg config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("generate takes exactly one spec name")
	}
	name := args[0]

	reg, store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// A name resolves to a struct spec first, then to a function spec.
	if s, err := spec.LoadStruct(cfg.SpecRoot, name); err == nil {
		if v := spec.ValidateStruct(s, name); !v.Valid() {
			return fmt.Errorf("%s", v.Error())
		}
		pair, err := codegen.AssembleStruct(s, reg)
		if err != nil {
			return err
		}
		fmt.Println(pair.Source)
		printUnresolved(pair.Unresolved)
		return nil
	}

	fs, err := spec.LoadFunction(cfg.SpecRoot, name)
	if err != nil {
		return fmt.Errorf("no struct or function spec named %q under %s", name, cfg.SpecRoot)
	}
	if v := spec.ValidateFunction(fs, name); !v.Valid() {
		return fmt.Errorf("%s", v.Error())
	}
	h, err := codegen.AssembleFunction(fs, reg)
	if err != nil {
		return err
	}
	fmt.Println(h.Source)
	printUnresolved(h.Unresolved)
	return nil
}

func printUnresolved(us []codegen.Unresolved) {
	for _, u := range us {
		fmt.Fprintf(os.Stderr, "unresolved: %s: %s\n", u.Field, u.Reason)
	}
}

func handleVerify(cfg config.Config, logger *zap.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("verify takes exactly one spec name")
	}
	name := args[0]

	s, err := spec.LoadStruct(cfg.SpecRoot, name)
	if err != nil {
		return err
	}

	// verify is a single-shot diagnostic: no escalation loop.
	p, store, err := buildPipeline(cfg, logger, nil, false)
	if err != nil {
		return err
	}
	defer store.Close()

	out := p.RunStruct(context.Background(), pipeline.Job{
		Spec:     s,
		TypeDefs: loadTypeDefs(cfg.SpecRoot, name),
	})
	printOutcome(name, out)
	if out.Err != nil {
		return out.Err
	}
	if !out.Registered {
		return fmt.Errorf("spec %q did not verify", name)
	}
	return nil
}

func handleRun(cfg config.Config, logger *zap.Logger, args []string) error {
	if len(args) > 0 {
		cfg.SpecRoot = args[0]
	}
	names, err := spec.ListStructs(cfg.SpecRoot)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no struct specs under %s", cfg.SpecRoot)
	}

	bus := events.NewMemoryBus()
	p, store, err := buildPipeline(cfg, logger, bus, true)
	if err != nil {
		return err
	}
	defer store.Close()

	// Long batches report per-spec progress as it happens; the summary at
	// the end covers the final state.
	progress := bus.Subscribe(
		events.EventVerifyResult,
		events.EventSpecEscalated,
		events.EventSpecExhausted,
	)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for e := range progress {
			switch e.Type {
			case events.EventVerifyResult:
				fmt.Fprintf(os.Stderr, "%s: attempt %d: %v\n", e.Spec, e.Attempt, e.Data)
			case events.EventSpecEscalated:
				fmt.Fprintf(os.Stderr, "%s: escalated to collaborator\n", e.Spec)
			case events.EventSpecExhausted:
				fmt.Fprintf(os.Stderr, "%s: escalation budget exhausted\n", e.Spec)
			}
		}
	}()
	defer func() {
		bus.Unsubscribe(progress)
		<-progressDone
	}()

	jobs := make(map[string]pipeline.Job, len(names))
	for _, name := range names {
		s, err := spec.LoadStruct(cfg.SpecRoot, name)
		if err != nil {
			return err
		}
		jobs[name] = pipeline.Job{Spec: s, TypeDefs: loadTypeDefs(cfg.SpecRoot, name)}
	}

	outcomes, err := p.RunAll(context.Background(), jobs)
	if err != nil {
		return err
	}

	failed := 0
	for _, name := range names {
		out := outcomes[name]
		printOutcome(name, out)
		if !out.Registered {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d spec(s) did not verify", failed, len(names))
	}
	return nil
}

func printOutcome(name string, out *pipeline.Outcome) {
	switch {
	case out.Err != nil:
		fmt.Printf("%s: error: %v\n", name, out.Err)
	case out.Registered:
		fmt.Printf("%s: pass (%d attempt(s))\n", name, out.Attempts)
	case out.Exhausted:
		fmt.Printf("%s: exhausted after %d attempt(s)\n", name, out.Attempts)
	default:
		status := "failed"
		if out.Result != nil {
			status = out.Result.Status
			if out.Result.Cause != "" {
				status += ": " + out.Result.Cause
			}
		}
		fmt.Printf("%s: %s\n", name, status)
	}
}

// loadTypeDefs reads the Rust type definitions that accompany a spec:
// <root>/types/<name>.rs, holding the unidiomatic struct and its translated
// idiomatic counterpart. A missing file leaves the harness to fail its build,
// which surfaces as a roundtrip failure rather than a CLI error.
func loadTypeDefs(root, name string) string {
	data, err := os.ReadFile(filepath.Join(root, "types", name+".rs"))
	if err != nil {
		return ""
	}
	return string(data)
}

func openRegistry(cfg config.Config) (*registry.Registry, *registry.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Registry.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create registry dir: %w", err)
	}
	store, err := registry.OpenStore(cfg.Registry.Path)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New()
	if err := store.LoadInto(reg); err != nil {
		store.Close()
		return nil, nil, err
	}
	return reg, store, nil
}

func buildPipeline(cfg config.Config, logger *zap.Logger, bus events.Bus, escalation bool) (*pipeline.Pipeline, *registry.Store, error) {
	reg, store, err := openRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []verify.Option{
		verify.WithWorkDir(cfg.WorkDir),
		verify.WithRunner(&sandbox.Runner{
			CargoBin: cfg.Verifier.CargoBin,
			Timeout:  time.Duration(cfg.Verifier.TimeoutSeconds) * time.Second,
		}),
	}
	if cfg.Verifier.KeepCrates {
		engineOpts = append(engineOpts, verify.WithKeepCrates())
	}
	if len(cfg.Sandbox.AllowedRoots) > 0 || len(cfg.Sandbox.DeniedPaths) > 0 {
		sb, err := sandbox.New(sandbox.Config{
			AllowedRoots: cfg.Sandbox.AllowedRoots,
			DeniedPaths:  cfg.Sandbox.DeniedPaths,
			MaxFileSize:  cfg.Sandbox.MaxFileSize,
		})
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("sandbox init: %w", err)
		}
		engineOpts = append(engineOpts, verify.WithSandbox(sb))
	}
	if cfg.Verifier.SamplesPath != "" {
		samples, err := verify.LoadSamples(cfg.Verifier.SamplesPath)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		engineOpts = append(engineOpts, verify.WithSamples(samples))
	}
	engine := verify.NewEngine(engineOpts...)

	opts := []pipeline.Option{
		pipeline.WithStore(store),
		pipeline.WithWorkers(cfg.Verifier.Workers),
		pipeline.WithLogger(logger),
	}
	if bus != nil {
		opts = append(opts, pipeline.WithBus(bus))
	}

	if escalation {
		if esc := buildEscalator(cfg, logger); esc != nil {
			opts = append(opts, pipeline.WithEscalator(esc))
		}
	}

	return pipeline.New(reg, engine, opts...), store, nil
}

// buildEscalator wires the collaborator loop when an API key is present.
// Without one the pipeline still runs; failures are just terminal on the
// first attempt.
func buildEscalator(cfg config.Config, logger *zap.Logger) *escalate.Controller {
	apiKey := cfg.Escalation.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil
	}

	collab, err := llm.NewGemini(context.Background(), apiKey, cfg.Escalation.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: collaborator init: %v\n", err)
		return nil
	}

	opts := []escalate.Option{
		escalate.WithMaxAttempts(cfg.Escalation.MaxAttempts),
		escalate.WithLogger(logger),
	}

	gh := cfg.Escalation.GitHub
	token := gh.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token != "" && gh.Owner != "" && gh.Repo != "" {
		reporter, err := escalate.NewGitHubReporter(token, gh.Owner, gh.Repo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: issue reporter init: %v\n", err)
		} else {
			opts = append(opts, escalate.WithReporter(reporter))
		}
	}

	return escalate.NewController(collab, opts...)
}
