package process

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// pidMeta is the optional second line of a PID file. Start time lets a
// later reader detect PID reuse.
type pidMeta struct {
	Name      string `json:"name"`
	StartUnix int64  `json:"start_unix"`
}

// WritePIDFile writes "<pid>\n<meta json>\n" to the configured path.
// Best-effort: a job without a PIDFile path, or one that was never
// started, is a no-op.
func (r *Process) WritePIDFile() {
	r.mu.Lock()
	pidFile := r.spec.PIDFile
	name := r.spec.Name
	pid := 0
	if r.cmd != nil && r.cmd.Process != nil {
		pid = r.cmd.Process.Pid
	}
	r.mu.Unlock()

	if pidFile == "" || pid == 0 {
		return
	}
	meta := pidMeta{Name: name, StartUnix: time.Now().Unix()}
	mb, _ := json.Marshal(meta)
	_ = os.MkdirAll(filepath.Dir(pidFile), 0o750)
	_ = os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"+string(mb)+"\n"), 0o600)
}

// RemovePIDFile removes the PID file, best-effort.
func (r *Process) RemovePIDFile() {
	r.mu.Lock()
	pidFile := r.spec.PIDFile
	r.mu.Unlock()

	if pidFile == "" {
		return
	}
	_ = os.Remove(pidFile)
}

// ReadPIDFile reads a PID file written by WritePIDFile. For files that
// contain only the PID, meta will be nil.
func ReadPIDFile(path string) (int, *pidMeta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	pidLine, rest, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, nil, err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return pid, nil, nil
	}
	var meta pidMeta
	if err := json.Unmarshal([]byte(rest), &meta); err != nil {
		// Return PID even if meta cannot be parsed.
		return pid, nil, nil
	}
	return pid, &meta, nil
}
