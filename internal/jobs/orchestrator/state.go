package orchestrator

import (
	"time"
)

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageState is the persisted record of one stage inside a job's state
// snapshot. Attempts and NextRunAt drive the retry schedule; Outputs carry
// whatever the stage wants later stages and the final result to see.
type StageState struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Attempts   int            `json:"attempts"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
}

// State is the orchestrator's snapshot, persisted into job_runs.result under
// the "orchestrator" key after every transition. A reclaimed job resumes
// from here: succeeded stages are skipped, the failed one runs again.
type State struct {
	Version      int                    `json:"version"`
	Stages       map[string]*StageState `json:"stages"`
	LastProgress int                    `json:"last_progress"`
	Meta         map[string]any         `json:"meta,omitempty"`
}

func (s *State) ensure() {
	if s.Version <= 0 {
		s.Version = 1
	}
	if s.Stages == nil {
		s.Stages = map[string]*StageState{}
	}
	if s.Meta == nil {
		s.Meta = map[string]any{}
	}
}

func (s *State) EnsureStage(name string) *StageState {
	s.ensure()
	ss := s.Stages[name]
	if ss == nil {
		ss = &StageState{
			Name:    name,
			Status:  StagePending,
			Outputs: map[string]any{},
		}
		s.Stages[name] = ss
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	return ss
}
