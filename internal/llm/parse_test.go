package llm

import (
	"strings"
	"sync"
	"testing"
)

func TestExtractBlock(t *testing.T) {
	reply := strings.Join([]string{
		"Here is the corrected mapping.",
		"----SPEC----",
		`{"struct_name": "Record"}`,
		"----END SPEC----",
		"Let me know if it fails again.",
	}, "\n")

	body, ok := ExtractBlock(reply, "SPEC")
	if !ok {
		t.Fatal("SPEC block not found")
	}
	if body != `{"struct_name": "Record"}` {
		t.Errorf("body = %q", body)
	}

	if _, ok := ExtractBlock(reply, "CODE"); ok {
		t.Error("absent block reported as present")
	}
}

func TestExtractBlockConcurrent(t *testing.T) {
	reply := strings.Join([]string{
		"----SPEC----",
		`{"struct_name": "Record"}`,
		"----END SPEC----",
		"----CODE----",
		"fn x() {}",
		"----END CODE----",
		"----FILL----",
		"c0.count = 2 as libc::c_int;",
		"----END FILL----",
	}, "\n")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, tag := range []string{"SPEC", "CODE", "FILL"} {
				if _, ok := ExtractBlock(reply, tag); !ok {
					t.Errorf("%s block not found", tag)
				}
			}
		}()
	}
	wg.Wait()
}

func TestExtractBlockStripsFences(t *testing.T) {
	reply := strings.Join([]string{
		"----CODE----",
		"```rust",
		"fn x() {}",
		"```",
		"----END CODE----",
	}, "\n")
	body, ok := ExtractBlock(reply, "CODE")
	if !ok || body != "fn x() {}" {
		t.Errorf("body = %q, ok = %v", body, ok)
	}
}

func TestExtractFill(t *testing.T) {
	reply := strings.Join([]string{
		"----FILL----",
		"c0.count = 2 as libc::c_int;",
		"",
		"c0.scratch = 9 as libc::c_int;",
		"----END FILL----",
	}, "\n")
	lines := ExtractFill(reply)
	if len(lines) != 2 || lines[0] != "c0.count = 2 as libc::c_int;" {
		t.Errorf("lines = %v", lines)
	}
	if ExtractFill("no blocks here") != nil {
		t.Error("missing FILL block must yield nil")
	}
}

func TestCheckBalanced(t *testing.T) {
	if err := CheckBalanced("fn x() { let v = [1, 2]; }"); err != nil {
		t.Errorf("balanced code rejected: %v", err)
	}
	if err := CheckBalanced("fn x() { let v = [1, 2];"); err == nil {
		t.Error("truncated code accepted")
	}
}
