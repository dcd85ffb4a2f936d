package registry

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestRegisterAppendOnly(t *testing.T) {
	r := New()
	e := &Entry{StructName: "Record", IdiomaticType: "Record", Source: "fn a() {}"}
	if err := r.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&Entry{StructName: "Record"}); err == nil {
		t.Error("second registration for the same struct must fail")
	}

	got, ok := r.Lookup("Record")
	if !ok || got.Source != "fn a() {}" {
		t.Errorf("Lookup = %+v, %v", got, ok)
	}
	if got.RegisteredAt.IsZero() {
		t.Error("RegisteredAt not stamped")
	}
	if !r.Has("Record") || r.Has("Missing") {
		t.Error("Has misreports membership")
	}
}

func TestNamesSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		if err := r.Register(&Entry{StructName: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	names := r.Names()
	if len(names) != 3 || names[0] != "Alpha" || names[2] != "Zeta" {
		t.Errorf("Names = %v", names)
	}
}

func TestCombinedSourceOrderAndSkips(t *testing.T) {
	r := New()
	r.Register(&Entry{StructName: "A", Source: "// a"})
	r.Register(&Entry{StructName: "B", Source: "// b"})
	got := r.CombinedSource("B", "Missing", "A")
	want := "// b\n// a\n"
	if got != want {
		t.Errorf("CombinedSource = %q, want %q", got, want)
	}
}

func TestClosureExpandsTransitiveDeps(t *testing.T) {
	r := New()
	r.Register(&Entry{StructName: "Inner", Source: "// inner"})
	r.Register(&Entry{StructName: "Meta", Source: "// meta", Deps: []string{"Inner"}})
	r.Register(&Entry{StructName: "Tree", Source: "// tree", Deps: []string{"Meta"}})

	got := r.Closure("Meta")
	if len(got) != 2 || got[0] != "Inner" || got[1] != "Meta" {
		t.Errorf("Closure(Meta) = %v, want deps first", got)
	}

	got = r.Closure("Tree", "Meta")
	if len(got) != 3 || got[0] != "Inner" || got[1] != "Meta" || got[2] != "Tree" {
		t.Errorf("Closure(Tree, Meta) = %v, want each name once, deps first", got)
	}

	// Unknown names pass through for the caller to diagnose.
	got = r.Closure("Missing")
	if len(got) != 1 || got[0] != "Missing" {
		t.Errorf("Closure(Missing) = %v", got)
	}

	src := r.CombinedSource(r.Closure("Tree")...)
	if src != "// inner\n// meta\n// tree\n" {
		t.Errorf("closure source = %q", src)
	}
}

func TestRegisterConcurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Register(&Entry{StructName: "Same"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d concurrent registrations succeeded, want exactly 1", ok)
	}
}

func TestStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	e := &Entry{StructName: "Record", IdiomaticType: "Record", Source: "fn a() {}", Attempts: 2}
	if err := s.SaveEntry(e); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	if err := s.SaveEntry(e); err == nil {
		t.Error("persisted entries must be append-only")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	r := New()
	if err := s.LoadInto(r); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}
	got, ok := r.Lookup("Record")
	if !ok || got.Attempts != 2 {
		t.Errorf("reloaded entry = %+v, %v", got, ok)
	}
}

func TestStoreAttemptHistory(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()

	for i, status := range []string{"mismatch", "mismatch", "pass"} {
		if err := s.RecordAttempt(&Attempt{Spec: "Record", Number: i + 1, Status: status}); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}
	history, err := s.Attempts("Record")
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(history) != 3 || history[2].Status != "pass" {
		t.Errorf("history = %+v", history)
	}
	if history[0].When.IsZero() {
		t.Error("attempt timestamp not stamped")
	}

	empty, err := s.Attempts("Nothing")
	if err != nil || len(empty) != 0 {
		t.Errorf("Attempts(unknown) = %v, %v", empty, err)
	}
}
