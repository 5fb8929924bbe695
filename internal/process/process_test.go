package process

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/plotup/plotup/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func TestTryStartWritesPIDAndStatus(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "p1.pid")
	spec := Spec{Name: "p1", Command: "sleep 0.2", PIDFile: pidfile}
	r := New(spec)
	if err := r.TryStart(r.ConfigureCmd(nil)); err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	defer func() { _ = r.Wait() }()
	st := r.Snapshot()
	if !st.Running || st.PID <= 0 || st.Name != "p1" {
		t.Fatalf("status not set after start: %+v", st)
	}
	if r.PID() != st.PID {
		t.Fatalf("PID() = %d, snapshot = %d", r.PID(), st.PID)
	}
	b, err := os.ReadFile(pidfile)
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		t.Fatalf("pidfile not written: %v, content=%q", err, string(b))
	}
}

func TestConfigureCmdAppliesEnvWorkdirLogging(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	_ = os.MkdirAll(work, 0o755)
	logs := filepath.Join(dir, "logs")

	spec := Spec{
		Name:    "cfg",
		Command: "sh -c 'echo out; echo err 1>&2'",
		WorkDir: work,
		Log:     logger.Config{Dir: logs},
	}
	r := New(spec)
	mergedEnv := []string{"FOO=bar"}
	cmd := r.ConfigureCmd(mergedEnv)

	if cmd.Dir != work {
		t.Fatalf("workdir not applied: got %q want %q", cmd.Dir, work)
	}
	if len(cmd.Env) != len(mergedEnv) || cmd.Env[0] != "FOO=bar" {
		t.Fatalf("env not applied: got %#v", cmd.Env)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("SysProcAttr Setpgid not set")
	}

	if err := r.TryStart(cmd); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(logs, "cfg.stdout.log"))
	if err != nil || !strings.Contains(string(b), "out") {
		t.Fatalf("stdout log missing: err=%v content=%q", err, string(b))
	}
}

func TestConfigureCmdInheritsParentStreams(t *testing.T) {
	spec := Spec{Name: "inh", Command: "sleep 0.1"}
	r := New(spec)
	cmd := r.ConfigureCmd(nil)
	if cmd.Stdout != os.Stdout || cmd.Stderr != os.Stderr {
		t.Fatalf("expected inherited stdio when no log destination is set")
	}
}

func TestWaitReturnsExitError(t *testing.T) {
	requireUnix(t)
	r := New(Spec{Name: "fail", Command: "sh -c 'exit 3'"})
	if err := r.TryStart(r.ConfigureCmd(nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := r.Wait()
	if err == nil {
		t.Fatalf("expected exit error")
	}
	st := r.Snapshot()
	if st.Running || st.ExitErr == nil {
		t.Fatalf("status not updated on exit: %+v", st)
	}
}

func TestTerminateStopsProcess(t *testing.T) {
	requireUnix(t)
	r := New(Spec{Name: "sleepy", Command: "sleep 30"})
	if err := r.TryStart(r.ConfigureCmd(nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.DetectAlive() {
		t.Fatalf("process should be alive after start")
	}
	if err := r.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	r.Reap(2 * time.Second)
	if r.DetectAlive() {
		t.Fatalf("process still alive after terminate+reap")
	}
	st := r.Snapshot()
	if st.Running {
		t.Fatalf("status still running after reap: %+v", st)
	}
}

func TestTerminateAfterExitIsSilentlyAbsorbed(t *testing.T) {
	requireUnix(t)
	r := New(Spec{Name: "gone", Command: "sleep 0.05"})
	if err := r.TryStart(r.ConfigureCmd(nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	// The job is already reaped; a further termination request must not
	// panic and any error it reports is ignorable by design of callers.
	_ = r.Terminate()
	r.Reap(100 * time.Millisecond)
}

func TestTryStartRefusesLivePIDFile(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	pidfile := filepath.Join(dir, "dup.pid")
	first := New(Spec{Name: "dup", Command: "sleep 30", PIDFile: pidfile})
	if err := first.TryStart(first.ConfigureCmd(nil)); err != nil {
		t.Fatalf("first start: %v", err)
	}
	second := New(Spec{Name: "dup", Command: "sleep 30", PIDFile: pidfile})
	err := second.TryStart(second.ConfigureCmd(nil))
	if err == nil {
		_ = second.Terminate()
		second.Reap(time.Second)
		t.Fatalf("second start should be refused while the pidfile is live")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = first.Terminate()
	first.Reap(2 * time.Second)
}

func TestTerminateNeverStartedIsNoop(t *testing.T) {
	r := New(Spec{Name: "never"})
	if err := r.Terminate(); err != nil {
		t.Fatalf("terminate on never-started job: %v", err)
	}
	if r.PID() != 0 {
		t.Fatalf("PID of never-started job should be 0")
	}
}
