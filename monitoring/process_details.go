package monitoring

import (
	"fmt"
	"strconv"
	"strings"
)

// environLimit caps how much of a process environment the details view
// carries. Environments can be huge and the UI shows a preview only.
const environLimit = 2000

// ProcessDetails inspects one process through individual host commands.
// Every query degrades independently: a permission failure on one field
// never hides the others.
func (pr *ProcessReader) ProcessDetails(pid int32) ProcessDetails {
	pidStr := strconv.FormatInt(int64(pid), 10)
	details := ProcessDetails{
		Cmdline: "N/A",
		Cwd:     "N/A",
		Exe:     "N/A",
		Environ: "N/A",
		Threads: 1,
	}

	if out := strings.TrimSpace(pr.runner.Run([]string{"ps", "-p", pidStr, "-o", "args="}, pr.timeout)); out != "" {
		details.Cmdline = out
	} else {
		details.Cmdline = "[kernel thread]"
	}

	// pwdx prints "pid: /path".
	if out := strings.TrimSpace(pr.runner.Run([]string{"pwdx", pidStr}, pr.timeout)); strings.Contains(out, ":") {
		details.Cwd = strings.TrimSpace(strings.SplitN(out, ":", 2)[1])
	}

	if out := strings.TrimSpace(pr.runner.Run([]string{"readlink", "-f", fmt.Sprintf("/proc/%d/exe", pid)}, pr.timeout)); out != "" {
		details.Exe = out
	}

	if out, err := pr.runner.RunChecked([]string{"cat", fmt.Sprintf("/proc/%d/environ", pid)}, pr.timeout); err == nil && out != "" {
		environ := strings.ReplaceAll(out, "\x00", "\n")
		if len(environ) > environLimit {
			environ = environ[:environLimit]
		}
		details.Environ = environ
	} else if err != nil {
		details.Environ = "N/A (permission denied or process not accessible)"
	}

	if out := strings.TrimSpace(pr.runner.Run([]string{"ls", "-1", fmt.Sprintf("/proc/%d/fd", pid)}, pr.timeout)); out != "" {
		details.FDCount = len(strings.Split(out, "\n"))
	}

	if out := strings.TrimSpace(pr.runner.Run([]string{"ps", "-p", pidStr, "-o", "nlwp="}, pr.timeout)); out != "" {
		if threads, err := strconv.Atoi(out); err == nil {
			details.Threads = threads
		}
	}

	return details
}
