// Package orchestrator sequences the two jobs of a development session:
// the auxiliary plot server started in the background and the primary
// development server run in the foreground. When the primary job exits,
// the auxiliary job is torn down with a single best-effort termination
// request whose failure is deliberately ignored.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/plotup/plotup/internal/history"
	"github.com/plotup/plotup/internal/metrics"
	"github.com/plotup/plotup/internal/process"
)

// State is the orchestrator's position in its strictly linear life cycle.
type State string

const (
	StateIdle             State = "idle"
	StateAuxiliaryStarted State = "auxiliary_started"
	StatePrimaryRunning   State = "primary_running"
	StateTearingDown      State = "tearing_down"
	StateDone             State = "done"
)

// The announcement lines are the wrapper's user-facing contract and are
// printed verbatim, in order, on every run.
const (
	msgStartingAux     = "Starting plot server..."
	msgStartingPrimary = "Starting LangGraph server..."
	msgStoppingAux     = "Stopping plot server..."
	msgAllStopped      = "All servers stopped."
)

// Options configures a single orchestrator run.
type Options struct {
	Aux      process.Spec
	Primary  process.Spec
	Env      []string      // merged environment for both jobs; nil inherits the parent env
	Out      io.Writer     // announcement stream; defaults to os.Stdout
	Logger   *slog.Logger  // structured log output; defaults to slog.Default()
	History  history.Sink  // optional lifecycle audit sink
	ReapWait time.Duration // how long to wait for the auxiliary job after teardown
}

// Orchestrator runs one auxiliary/primary job pair. It is single-use:
// Run may be called once.
type Orchestrator struct {
	opts  Options
	runID string

	mu    sync.Mutex
	state State

	aux     *process.Process
	primary *process.Process
}

func New(opts Options) *Orchestrator {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReapWait <= 0 {
		opts.ReapWait = 2 * time.Second
	}
	return &Orchestrator{
		opts:  opts,
		runID: uuid.NewString(),
		state: StateIdle,
	}
}

// State returns the current life-cycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// AuxPID returns the captured PID of the auxiliary job, 0 when it never started.
func (o *Orchestrator) AuxPID() int {
	o.mu.Lock()
	aux := o.aux
	o.mu.Unlock()
	if aux == nil {
		return 0
	}
	return aux.PID()
}

// Run executes the full sequence and returns the exit code to propagate:
// the primary job's exit code when it exited non-zero, otherwise 0.
//
// Launch of the auxiliary job is fire-and-forget: there is no readiness
// check and a failed launch is only visible through the job's own output.
// Teardown failures are swallowed; the closing message is printed
// unconditionally once the primary job's wait has returned.
func (o *Orchestrator) Run(ctx context.Context) int {
	out := o.opts.Out
	log := o.opts.Logger

	fmt.Fprintln(out, msgStartingAux)
	aux := process.New(o.opts.Aux)
	o.mu.Lock()
	o.aux = aux
	o.mu.Unlock()
	auxStarted := false
	if err := aux.TryStart(aux.ConfigureCmd(o.opts.Env)); err != nil {
		// Mirrors the shell's "cmd &": the failure shows up in the shared
		// output stream and the run proceeds with an invalid identifier.
		fmt.Fprintf(out, "%s: %v\n", o.opts.Aux.Name, err)
	} else {
		auxStarted = true
		metrics.IncStart(o.opts.Aux.Name)
		metrics.SetAuxRunning(true)
		o.record(ctx, history.EventStart, aux.Snapshot())
	}
	o.setState(StateAuxiliaryStarted)

	fmt.Fprintf(out, "Plot server PID: %d\n", aux.PID())

	fmt.Fprintln(out, msgStartingPrimary)
	primary := process.New(o.opts.Primary)
	o.mu.Lock()
	o.primary = primary
	o.mu.Unlock()

	var waitErr error
	if err := primary.TryStart(primary.ConfigureCmd(o.opts.Env)); err != nil {
		// The foreground job could not start at all. The wait below would
		// have returned immediately; carry the error as the exit status.
		fmt.Fprintf(out, "%s: %v\n", o.opts.Primary.Name, err)
		waitErr = err
	} else {
		metrics.IncStart(o.opts.Primary.Name)
		o.record(ctx, history.EventStart, primary.Snapshot())
		o.setState(StatePrimaryRunning)

		// Terminal interrupts land on the orchestrator; relay them to the
		// primary job's process group so Ctrl+C behaves as if the job ran
		// directly in the foreground. The wait below then returns normally
		// and teardown still runs.
		stopRelay := relaySignals(primary)
		waitErr = primary.Wait()
		stopRelay()
		metrics.IncStop(o.opts.Primary.Name)
		o.record(ctx, history.EventStop, primary.Snapshot())
	}

	o.setState(StateTearingDown)
	fmt.Fprintln(out, msgStoppingAux)
	// Best-effort: the auxiliary job may already be gone, the PID may be
	// stale. Nothing is retried and nothing escalates to SIGKILL.
	_ = aux.Terminate()
	aux.Reap(o.opts.ReapWait)
	if auxStarted {
		metrics.IncStop(o.opts.Aux.Name)
		metrics.SetAuxRunning(false)
		o.record(ctx, history.EventStop, aux.Snapshot())
	}

	fmt.Fprintln(out, msgAllStopped)
	o.setState(StateDone)

	if waitErr != nil {
		log.Debug("primary job exited with error", "name", o.opts.Primary.Name, "error", waitErr)
	}
	return exitCode(waitErr)
}

// record sends one lifecycle event to the configured history sink.
// Failures are logged and never affect the run.
func (o *Orchestrator) record(ctx context.Context, t history.EventType, st process.Status) {
	if o.opts.History == nil {
		return
	}
	rec := history.Record{
		Name:      st.Name,
		PID:       st.PID,
		StartedAt: st.StartedAt,
		StoppedAt: st.StoppedAt,
		Running:   st.Running,
		Uniq:      o.runID,
	}
	if st.ExitErr != nil {
		rec.ExitErr = st.ExitErr.Error()
	}
	e := history.Event{Type: t, OccurredAt: time.Now(), Record: rec}
	if err := o.opts.History.Send(ctx, e); err != nil {
		o.opts.Logger.Warn("failed to record history event", "type", string(t), "name", rec.Name, "error", err)
	}
}

// relaySignals forwards SIGINT/SIGTERM received by the orchestrator to the
// primary job while it runs. The returned func stops the relay.
func relaySignals(p *process.Process) func() {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				_ = p.Signal(sig)
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// exitCode maps the primary job's wait error to the orchestrator exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if c := ee.ExitCode(); c > 0 {
			return c
		}
	}
	return 1
}
