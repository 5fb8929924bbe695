package process

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/plotup/plotup/internal/detector"
)

// Process is a single spawned job: the auxiliary plot server or the
// primary development server. Unlike a supervisor there is no restart
// logic; a Process is started once, optionally waited on, and torn down
// with a single best-effort termination request.
type Process struct {
	spec      Spec
	cmd       *exec.Cmd
	status    Status
	mu        sync.Mutex
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

func New(spec Spec) *Process { return &Process{spec: spec} }

// ConfigureCmd builds and configures *exec.Cmd for this job using mergedEnv.
// It sets workdir, environment, stdio and process group attributes. When no
// log destination is configured, the child inherits the parent's stdout and
// stderr so its output interleaves with the orchestrator's own.
func (r *Process) ConfigureCmd(mergedEnv []string) *exec.Cmd {
	r.mu.Lock()
	spec := r.spec
	r.mu.Unlock()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd, spec)
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		r.ensureLogClosers(outW, errW)
		ow, ew := r.outErrClosers()
		if ow != nil {
			cmd.Stdout = ow
		} else {
			cmd.Stdout = os.Stdout
		}
		if ew != nil {
			cmd.Stderr = ew
		} else {
			cmd.Stderr = os.Stderr
		}
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	return cmd
}

// TryStart atomically starts the command and updates internal state and PID file.
// When the spec carries a PID file, a live process recorded there blocks the
// start so two runs never fight over the same job.
func (r *Process) TryStart(cmd *exec.Cmd) error {
	r.mu.Lock()
	pidFile := r.spec.PIDFile
	name := r.spec.Name
	r.mu.Unlock()
	if pidFile != "" {
		alive, err := detector.PIDFileDetector{PIDFile: pidFile}.Alive()
		if err == nil && alive {
			r.CloseWriters()
			return fmt.Errorf("%s already running per %s", name, pidFile)
		}
	}
	if err := cmd.Start(); err != nil {
		r.CloseWriters()
		return err
	}
	r.setStarted(cmd)
	// Write PID file synchronously so it is available immediately after Start returns.
	r.WritePIDFile()
	return nil
}

func (r *Process) setStarted(cmd *exec.Cmd) {
	r.mu.Lock()
	r.cmd = cmd
	r.status.Name = r.spec.Name
	r.status.Running = true
	r.status.PID = cmd.Process.Pid
	r.status.StartedAt = time.Now()
	r.mu.Unlock()
}

// PID returns the OS process identifier captured at start time, or 0 when
// the job was never started.
func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.PID
}

// Wait blocks until the job exits for any reason and returns the exit error,
// if any. It is the orchestrator's single suspension point.
func (r *Process) Wait() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return nil
	}
	err := cmd.Wait()
	r.markExited(err)
	r.CloseWriters()
	return err
}

func (r *Process) markExited(err error) {
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	r.status.ExitErr = err
	r.mu.Unlock()
}

// Terminate sends a graceful termination signal to the job's process group
// via the captured PID. The request is best-effort: a stale PID or an
// already-exited process is not an error and nothing is retried or
// escalated. The signal error is returned only for callers that want to
// observe it; the orchestrator discards it.
func (r *Process) Terminate() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return killProcess(-cmd.Process.Pid, syscall.SIGTERM)
}

// Signal forwards an OS signal to the job's process group. Non-signal
// values and never-started jobs are ignored.
func (r *Process) Signal(sig os.Signal) error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return nil
	}
	return killProcess(-cmd.Process.Pid, s)
}

// Reap waits briefly for a terminated background job so it does not linger
// as a zombie. Failures are ignored.
func (r *Process) Reap(wait time.Duration) {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		r.markExited(err)
		done <- err
	}()
	select {
	case <-done:
	case <-time.After(wait):
		// best-effort
	}
	r.CloseWriters()
	r.RemovePIDFile()
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	s := r.status
	r.mu.Unlock()
	return s
}

// DetectAlive probes liveness avoiding races with os/exec internals.
func (r *Process) DetectAlive() bool {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	pid := cmd.Process.Pid
	// On Linux, a quickly-exiting child can be a zombie; treat that as not alive.
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return processExists(pid)
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z) on Linux.
func isZombieLinux(pid int) bool {
	path := "/proc/" + strconv.Itoa(pid) + "/status"
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

func (r *Process) outErrClosers() (io.WriteCloser, io.WriteCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outCloser, r.errCloser
}

func (r *Process) ensureLogClosers(stdout, stderr io.WriteCloser) {
	r.mu.Lock()
	if r.outCloser == nil && stdout != nil {
		r.outCloser = stdout
	}
	if r.errCloser == nil && stderr != nil {
		r.errCloser = stderr
	}
	r.mu.Unlock()
}

// CloseWriters closes any rotating log writers attached to the job.
func (r *Process) CloseWriters() {
	r.mu.Lock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
	r.mu.Unlock()
}
