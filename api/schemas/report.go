package schemas

import "time"

// -- Run Report Schemas --

// StepOutcome records what happened when one step was executed.
type StepOutcome struct {
	Index      int    `json:"index" yaml:"index"`
	StepID     string `json:"step_id" yaml:"step_id"`
	Action     string `json:"action" yaml:"action"`
	TargetText string `json:"target_text,omitempty" yaml:"target_text,omitempty"`
	Status     string `json:"status" yaml:"status"`
	Stage      string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Selector   string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Detail     string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// RunReport summarizes a headless walkthrough run.
type RunReport struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Steps      string         `json:"steps" yaml:"steps"`
	Page       string         `json:"page" yaml:"page"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Outcomes   []StepOutcome  `json:"outcomes" yaml:"outcomes"`
	Summary    map[string]int `json:"summary" yaml:"summary"`
	Alerts     []string       `json:"alerts,omitempty" yaml:"alerts,omitempty"`
}
