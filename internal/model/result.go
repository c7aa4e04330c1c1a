package model

import "time"

// Status is the lifecycle state of a stage or step within a run
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Reason qualifies a terminal status
type Reason string

const (
	ReasonExecFailure        Reason = "exec-failure"
	ReasonTimeout            Reason = "timeout"
	ReasonConfigurationError Reason = "configuration-error"
	ReasonConditionFalse     Reason = "condition-false"
	ReasonConditionError     Reason = "condition-error"
	ReasonDependencyFailed   Reason = "dependency-failed"
	ReasonCancelled          Reason = "cancelled"
)

// StepResult records the outcome of one step. It is never mutated after
// being set.
type StepResult struct {
	Name       string    `yaml:"name" json:"name"`
	Status     Status    `yaml:"status" json:"status"`
	Reason     Reason    `yaml:"reason,omitempty" json:"reason,omitempty"`
	ExitCode   int       `yaml:"exitCode" json:"exitCode"`
	Message    string    `yaml:"message,omitempty" json:"message,omitempty"`
	StartedAt  time.Time `yaml:"startedAt" json:"startedAt"`
	FinishedAt time.Time `yaml:"finishedAt" json:"finishedAt"`
}

// Duration is the wall time the step spent between start and finish.
func (r StepResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageResult aggregates the step outcomes of one stage
type StageResult struct {
	Name       string       `yaml:"name" json:"name"`
	Status     Status       `yaml:"status" json:"status"`
	Reason     Reason       `yaml:"reason,omitempty" json:"reason,omitempty"`
	Message    string       `yaml:"message,omitempty" json:"message,omitempty"`
	Steps      []StepResult `yaml:"steps,omitempty" json:"steps,omitempty"`
	StartedAt  time.Time    `yaml:"startedAt" json:"startedAt"`
	FinishedAt time.Time    `yaml:"finishedAt" json:"finishedAt"`
}

// Duration is the wall time the stage spent between start and finish.
func (r StageResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunReport is the structured summary emitted at the end of a run
type RunReport struct {
	RunID      string        `yaml:"runId" json:"runId"`
	Pipeline   string        `yaml:"pipeline" json:"pipeline"`
	Success    bool          `yaml:"success" json:"success"`
	Stages     []StageResult `yaml:"stages" json:"stages"`
	StartedAt  time.Time     `yaml:"startedAt" json:"startedAt"`
	FinishedAt time.Time     `yaml:"finishedAt" json:"finishedAt"`
}

// StageByName returns the result for the named stage, if present.
func (r *RunReport) StageByName(name string) (*StageResult, bool) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i], true
		}
	}
	return nil, false
}
