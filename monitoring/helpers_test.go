package monitoring

import (
	"strings"
	"sync"
	"time"
)

// fakeRunner implements hostexec.Runner with canned outputs keyed by the
// joined argv.
type fakeRunner struct {
	mu        sync.Mutex
	sandboxed bool
	procRoot  string
	outputs   map[string]string
	errs      map[string]error
	calls     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		procRoot: "/proc",
		outputs:  make(map[string]string),
		errs:     make(map[string]error),
	}
}

func (f *fakeRunner) set(output string, cmd ...string) {
	f.outputs[strings.Join(cmd, " ")] = output
}

func (f *fakeRunner) Run(cmd []string, timeout time.Duration) string {
	out, _ := f.RunChecked(cmd, timeout)
	return out
}

func (f *fakeRunner) RunChecked(cmd []string, timeout time.Duration) (string, error) {
	key := strings.Join(cmd, " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	return f.outputs[key], nil
}

func (f *fakeRunner) callCount(cmd ...string) int {
	key := strings.Join(cmd, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call == key {
			count++
		}
	}
	return count
}

func (f *fakeRunner) Sandboxed() bool { return f.sandboxed }

func (f *fakeRunner) ProcRoot() string { return f.procRoot }
