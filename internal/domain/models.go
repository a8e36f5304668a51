package domain

import "time"

// Status is the classification of a single probe instance.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusWarning  Status = "warning"
	StatusDetected Status = "detected"
	StatusError    Status = "error"
)

// Reason explains a Detected result.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonConnect: no response was observed before the deadline.
	ReasonConnect Reason = "CONN"
	// ReasonRead: a response was observed but the body never reached the threshold.
	ReasonRead Reason = "READ"
)

// Detail values recorded on a result to tell inconclusive outcomes apart.
const (
	DetailThreshold   = "threshold"
	DetailEOF         = "eof"
	DetailNoBody      = "no_body"
	DetailTimeout     = "timeout"
	DetailAborted     = "aborted"
	DetailStreamError = "stream_error"
	DetailPanic       = "panic"
)

type ProbeDefinition struct {
	ID          string `json:"id" mapstructure:"id"`
	Provider    string `json:"provider" mapstructure:"provider"`
	URL         string `json:"url" mapstructure:"url"`
	RepeatCount int    `json:"repeat_count" mapstructure:"repeat_count"`
}

type ProbeInstance struct {
	InstanceID   string `json:"instance_id"`
	DefinitionID string `json:"definition_id"`
	Provider     string `json:"provider"`
	URL          string `json:"url"`
	Index        int    `json:"index"`
}

type ProbeResult struct {
	Status     Status  `json:"status"`
	DurationMS float64 `json:"duration_ms"`
	Reason     Reason  `json:"reason,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	HTTPStatus int     `json:"http_status,omitempty"`
	Bytes      int64   `json:"bytes"`
	DNSClass   string  `json:"dns_class,omitempty"`
}

// Passed reports whether the result counts toward the success total.
func (r ProbeResult) Passed() bool { return r.Status == StatusSuccess }

// RunState describes the single active (or last finished) run.
type RunState struct {
	RunID          string     `json:"run_id"`
	Epoch          uint64     `json:"epoch"`
	InProgress     bool       `json:"in_progress"`
	TotalInstances int        `json:"total_instances"`
	CompletedCount int        `json:"completed_count"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// RunSnapshot is a copy of the run state plus results, safe to hand to readers.
type RunSnapshot struct {
	RunState
	SuccessCount int                    `json:"success_count"`
	Instances    []ProbeInstance        `json:"instances"`
	Results      map[string]ProbeResult `json:"results"`
}
