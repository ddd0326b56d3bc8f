package domain

import "time"

type Stage string

const (
	StageParseExtract Stage = "parse_extract"
	StageFilter       Stage = "filter"
	StageStore        Stage = "store"
	StageCache        Stage = "cache"
)

// Stages in execution order.
var Stages = []Stage{StageParseExtract, StageFilter, StageStore, StageCache}

type RunState string

const (
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunFailed  RunState = "failed"
)

// PipelineRun tracks one pass of a candidate through the ingestion stages.
// Attempts counts tries of the current stage only and resets on advance.
type PipelineRun struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	Stage       Stage     `json:"stage"`
	State       RunState  `json:"state"`
	Attempts    int       `json:"attempts"`
	Condition   Condition `json:"condition,omitzero"`
	ErrorStage  Stage     `json:"error_stage,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// NextStage reports the stage after s, or false when s is the last one.
func NextStage(s Stage) (Stage, bool) {
	for i, cur := range Stages {
		if cur == s && i+1 < len(Stages) {
			return Stages[i+1], true
		}
	}
	return "", false
}
