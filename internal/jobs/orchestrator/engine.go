package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"gorm.io/datatypes"

	jobrt "github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/observability"
)

// -------------------- Public API --------------------

type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(err error) bool

	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 30s
	JitterFrac float64       // default 0.20
}

// Stage is one step of a pipeline. Stages run in order; a stage that has
// already succeeded (per the persisted state) is skipped on re-entry, so a
// reclaimed job resumes instead of redoing finished work. Run must be safe
// to call again after a crash mid-stage.
type Stage struct {
	Name string

	Timeout  time.Duration
	StartPct int
	EndPct   int
	Retry    RetryPolicy

	// IsDone short-circuits the stage when its effect is already present,
	// e.g. a load that was finalized before a crash. Optional.
	IsDone func(jc *jobrt.Context, st *State) (bool, error)
	Run    func(jc *jobrt.Context, st *State) (map[string]any, error)
}

type Engine struct {
	StateVersion int // default 1
}

func NewEngine() *Engine {
	return &Engine{StateVersion: 1}
}

// Run drives a stage list for one job. It owns the job's terminal
// transition: on any exit the row is succeeded, failed, or requeued with a
// next_attempt_at, so the returned error is always nil and exists only to
// satisfy the handler signature.
//
// Stage retries never sleep in-process. The engine stamps the backoff into
// next_attempt_at and yields the job back to the queue; the claim query
// does the waiting.
func (e *Engine) Run(jc *jobrt.Context, stages []Stage, finalResult func(jc *jobrt.Context, st *State) map[string]any) error {
	st, ok := e.preflight(jc, stages)
	if !ok {
		return nil
	}
	for i := range stages {
		def := stages[i]
		ss := st.EnsureStage(def.Name)
		if ss.Status == StageSucceeded || ss.Status == StageSkipped {
			continue
		}
		if e.backoffGate(jc, st, def, ss) {
			return nil
		}
		e.startStage(jc, st, def, ss)
		if yielded := e.runStage(jc, st, def, ss); yielded {
			return nil
		}
	}
	e.succeed(jc, st, stages, finalResult)
	return nil
}

// -------------------- run loop helpers --------------------

func (e *Engine) preflight(jc *jobrt.Context, stages []Stage) (*State, bool) {
	if jc == nil || jc.Job == nil {
		return nil, false
	}
	if len(stages) == 0 {
		jc.Succeed("done", nil)
		return nil, false
	}
	if err := validateStages(stages); err != nil {
		jc.Fail("validate", err)
		return nil, false
	}
	st, _ := LoadState(jc, e.StateVersion)
	return st, true
}

// backoffGate yields the job back to the queue when the stage's scheduled
// retry time is still in the future.
func (e *Engine) backoffGate(jc *jobrt.Context, st *State, def Stage, ss *StageState) bool {
	if ss == nil || ss.NextRunAt == nil {
		return false
	}
	at := *ss.NextRunAt
	if time.Now().Before(at) {
		_ = SaveState(jc, st)
		jc.Requeue("retry_"+def.Name, st.LastProgress, at)
		return true
	}
	ss.NextRunAt = nil
	return false
}

func (e *Engine) startStage(jc *jobrt.Context, st *State, def Stage, ss *StageState) {
	setProgress(jc, st, def.Name, def.StartPct)
	ss.Status = StageRunning
	markStarted(ss)
	_ = SaveState(jc, st)
}

// runStage executes one stage and reports whether the engine yielded
// (retry scheduled or job failed). false means the stage finished and the
// loop moves on.
func (e *Engine) runStage(jc *jobrt.Context, st *State, def Stage, ss *StageState) bool {
	t0 := time.Now()
	if def.IsDone != nil {
		done, derr := safeIsDone(def, jc, st)
		if derr != nil {
			return e.handleStageErr(jc, st, ss, def, derr, t0)
		}
		if done {
			e.finishStage(jc, st, def, ss, StageSkipped)
			observeStage(jc, def.Name, "skipped", time.Since(t0))
			return false
		}
	}
	outs, runErr := runWithTimeout(def, jc, st)
	if runErr != nil {
		return e.handleStageErr(jc, st, ss, def, runErr, t0)
	}
	mergeOutputs(ss, outs)
	e.finishStage(jc, st, def, ss, StageSucceeded)
	observeStage(jc, def.Name, "succeeded", time.Since(t0))
	return false
}

func (e *Engine) finishStage(jc *jobrt.Context, st *State, def Stage, ss *StageState, status StageStatus) {
	ss.Status = status
	markFinished(ss)
	setProgress(jc, st, def.Name, def.EndPct)
	_ = SaveState(jc, st)
}

func (e *Engine) succeed(jc *jobrt.Context, st *State, stages []Stage, finalResult func(jc *jobrt.Context, st *State) map[string]any) {
	out := map[string]any{}
	for _, sdef := range stages {
		if ss := st.Stages[sdef.Name]; ss != nil && len(ss.Outputs) > 0 {
			out[sdef.Name] = ss.Outputs
		}
	}
	final := map[string]any{
		"orchestrator": st,
		"outputs":      out,
	}
	if finalResult != nil {
		for k, v := range finalResult(jc, st) {
			final[k] = v
		}
	}
	jc.Succeed("done", final)
}

// -------------------- stage error handling --------------------

func (e *Engine) handleStageErr(jc *jobrt.Context, st *State, ss *StageState, def Stage, err error, t0 time.Time) bool {
	if ss == nil {
		return true
	}
	ss.Attempts++
	ss.LastError = errString(err)
	ss.Status = StageFailed
	markFinished(ss)
	if shouldRetry(def.Retry, ss.Attempts, err) {
		when := time.Now().Add(Backoff(def.Retry, ss.Attempts))
		ss.NextRunAt = &when
		_ = SaveState(jc, st)
		observeStage(jc, def.Name, "retried", time.Since(t0))
		observability.Current().IncStageRetry(jobKind(jc), def.Name)
		jc.Requeue("retry_"+def.Name, st.LastProgress, when)
		return true
	}
	_ = SaveState(jc, st)
	observeStage(jc, def.Name, "failed", time.Since(t0))
	jc.Fail(def.Name, err)
	return true
}

// -------------------- state persistence --------------------

// LoadState reads the orchestrator snapshot out of the job's result column.
// Missing or foreign result payloads yield a fresh state rather than an
// error; an unparseable snapshot is recorded in Meta and the pipeline
// restarts from stage one.
func LoadState(jc *jobrt.Context, version int) (*State, error) {
	st := &State{Version: version, Stages: map[string]*StageState{}, Meta: map[string]any{}}
	if jc == nil || jc.Job == nil {
		st.ensure()
		return st, nil
	}
	raw := jc.Job.Result
	if len(raw) == 0 || string(raw) == "null" {
		st.ensure()
		return st, nil
	}
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err == nil {
		if v, ok := probe["orchestrator"]; ok {
			b, _ := json.Marshal(v)
			if err := json.Unmarshal(b, st); err != nil {
				st.Meta["state_unmarshal_error"] = err.Error()
			}
			st.ensure()
			return st, nil
		}
	}
	if err := json.Unmarshal(raw, st); err != nil {
		st.Meta["state_unmarshal_error"] = err.Error()
	}
	st.ensure()
	return st, nil
}

func SaveState(jc *jobrt.Context, st *State) error {
	if jc == nil || jc.Job == nil || st == nil {
		return nil
	}
	st.ensure()
	b, err := json.Marshal(map[string]any{"orchestrator": st})
	if err != nil {
		return err
	}
	if err := jc.Update(map[string]any{"result": datatypes.JSON(b)}); err != nil {
		return err
	}
	jc.Job.Result = datatypes.JSON(b)
	return nil
}

// -------------------- safety + validation --------------------

func validateStages(stages []Stage) error {
	seen := map[string]bool{}
	lastEnd := -1
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage missing Name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
		if s.StartPct < 0 || s.StartPct > 100 || s.EndPct < 0 || s.EndPct > 100 {
			return fmt.Errorf("stage %q: progress must be 0..100", s.Name)
		}
		if s.EndPct < s.StartPct {
			return fmt.Errorf("stage %q: EndPct must be >= StartPct", s.Name)
		}
		if s.EndPct < lastEnd {
			return fmt.Errorf("stage %q: EndPct must be >= previous stage EndPct", s.Name)
		}
		if s.Run == nil {
			return fmt.Errorf("stage %q: Run is nil", s.Name)
		}
		lastEnd = s.EndPct
	}
	return nil
}

func safeIsDone(def Stage, jc *jobrt.Context, st *State) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done = false
			err = fmt.Errorf("stage %q: IsDone panic: %v", def.Name, r)
		}
	}()
	return def.IsDone(jc, st)
}

// runWithTimeout runs the stage, bounding it by def.Timeout when set. The
// deadline is delivered through the context handed to Run; a stage that
// ignores its context keeps running in the background after the engine
// moves on, so long stages must be context-aware.
func runWithTimeout(def Stage, jc *jobrt.Context, st *State) (outs map[string]any, err error) {
	if def.Timeout <= 0 {
		defer func() {
			if r := recover(); r != nil {
				outs = nil
				err = fmt.Errorf("stage %q: panic: %v", def.Name, r)
			}
		}()
		return def.Run(jc, st)
	}
	tctx, cancel := context.WithTimeout(jc.Ctx, def.Timeout)
	defer cancel()
	scoped := *jc
	scoped.Ctx = tctx
	type out struct {
		m map[string]any
		e error
	}
	ch := make(chan out, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- out{e: fmt.Errorf("stage %q: panic: %v", def.Name, r)}
			}
		}()
		m, e := def.Run(&scoped, st)
		ch <- out{m: m, e: e}
	}()
	select {
	case <-tctx.Done():
		return nil, fmt.Errorf("stage %q timed out: %w", def.Name, tctx.Err())
	case o := <-ch:
		return o.m, o.e
	}
}

// -------------------- progress + timestamps --------------------

// setProgress is monotonic: a resumed pipeline never reports less progress
// than it already showed.
func setProgress(jc *jobrt.Context, st *State, stage string, pct int) {
	if jc == nil || st == nil {
		return
	}
	if pct < st.LastProgress {
		pct = st.LastProgress
	} else {
		st.LastProgress = pct
	}
	jc.Progress(stage, pct)
}

func markStarted(ss *StageState) {
	if ss == nil || ss.StartedAt != nil {
		return
	}
	now := time.Now().UTC()
	ss.StartedAt = &now
}

func markFinished(ss *StageState) {
	if ss == nil {
		return
	}
	now := time.Now().UTC()
	ss.FinishedAt = &now
}

func mergeOutputs(ss *StageState, outs map[string]any) {
	if ss == nil || len(outs) == 0 {
		return
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	for k, v := range outs {
		ss.Outputs[k] = v
	}
}

// -------------------- retry/backoff --------------------

func shouldRetry(r RetryPolicy, attempts int, err error) bool {
	if r.MaxAttempts <= 0 || attempts >= r.MaxAttempts {
		return false
	}
	if r.Retryable == nil {
		return true
	}
	return r.Retryable(err)
}

// Backoff returns the delay before the next attempt: exponential from
// MinBackoff, capped at MaxBackoff, with +/-JitterFrac jitter. The zero
// policy yields 1s..30s with 20% jitter.
func Backoff(r RetryPolicy, attempts int) time.Duration {
	minB := r.MinBackoff
	maxB := r.MaxBackoff
	j := r.JitterFrac
	if minB <= 0 {
		minB = 1 * time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

// -------------------- misc --------------------

func observeStage(jc *jobrt.Context, stage, status string, dur time.Duration) {
	observability.Current().ObserveStage(jobKind(jc), stage, status, dur)
}

func jobKind(jc *jobrt.Context) string {
	if jc == nil || jc.Job == nil {
		return ""
	}
	return jc.Job.Kind
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
