package keypool

import (
	"time"
)

// Status represents the health of a credential.
type Status string

const (
	// StatusActive indicates the credential answered its last call successfully.
	StatusActive Status = "active"

	// StatusRateLimited indicates the credential was throttled or ran out of quota.
	// It becomes eligible for probing again once its cooldown window has passed.
	StatusRateLimited Status = "rate_limited"

	// StatusFailed indicates the credential was rejected or its last call failed.
	// It becomes eligible for probing again once its cooldown window has passed.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRateLimited, StatusFailed:
		return true
	}
	return false
}

// Credential is a caller-supplied secret used to authenticate to the upstream service.
type Credential struct {
	// ID is the unique identifier of the credential.
	ID string

	// OwnerID identifies the principal that owns the credential.
	OwnerID string

	// Provider tags the upstream service the credential belongs to (e.g. "gemini").
	Provider string

	// Secret is the opaque key material. It must never be logged.
	Secret string

	// Status is the current health of the credential.
	Status Status

	// LastUsed is when the credential was last handed out or used successfully.
	// Nil means never used.
	LastUsed *time.Time

	// LastFailed is when the credential last failed. Nil means never failed.
	LastFailed *time.Time

	// FailureCount is the number of consecutive failures.
	FailureCount int

	// CreatedAt is when the credential was created.
	CreatedAt time.Time
}

// Redacted returns a log-safe rendering of the secret, keeping the last four characters.
func (c Credential) Redacted() string {
	if len(c.Secret) <= 4 {
		return "****"
	}
	return "****" + c.Secret[len(c.Secret)-4:]
}

// CooledDown reports whether the credential's cooldown window has elapsed at now.
// A credential that never failed is immediately eligible.
func (c Credential) CooledDown(now time.Time, window time.Duration) bool {
	if c.LastFailed == nil {
		return true
	}
	return now.Sub(*c.LastFailed) >= window
}

// Operation is a named unit of work: one upstream call.
type Operation struct {
	// Name identifies the operation in logs and results.
	Name string

	// Payload is the message sent to the model.
	Payload string

	// Model is the target model identifier.
	Model string

	// FallbackModels are tried in order when Model is unavailable or returns unusable output.
	FallbackModels []string

	// Timeout bounds a single upstream call. Zero means the executor default.
	Timeout time.Duration

	// MaxTokens caps the response length. Zero means the provider default.
	MaxTokens int
}

// Request builds the CallRequest for the given model.
func (o Operation) Request(model string) CallRequest {
	return CallRequest{
		Payload:   o.Payload,
		Model:     model,
		Timeout:   o.Timeout,
		MaxTokens: o.MaxTokens,
	}
}

// CallRequest is what a Caller receives for a single call.
type CallRequest struct {
	Payload   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// WorkflowInput describes the content the pipeline should produce.
type WorkflowInput struct {
	// Topic is the subject of the generated content (required).
	Topic string

	// Audience optionally narrows the tone of the generated content.
	Audience string

	// Keywords are optional terms the content should cover.
	Keywords []string
}

// Metadata is the structured output of the foundation stage.
// Every branch depends on it.
type Metadata struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
	FAQs     []string `json:"faqs"`
}

// PipelineStatus is the terminal state of a pipeline run.
type PipelineStatus string

const (
	// PipelineCompleted indicates every branch produced output.
	PipelineCompleted PipelineStatus = "completed"

	// PipelinePartiallyCompleted indicates only optional branches are missing.
	PipelinePartiallyCompleted PipelineStatus = "partially_completed"

	// PipelineFailed indicates the foundation stage or a required branch failed.
	PipelineFailed PipelineStatus = "failed"
)

// BranchStatus is the outcome of one branch.
type BranchStatus string

const (
	// BranchSucceeded indicates every step of the branch succeeded.
	BranchSucceeded BranchStatus = "succeeded"

	// BranchFailed indicates a step of the branch failed.
	BranchFailed BranchStatus = "failed"

	// BranchSkipped indicates the branch never started because the foundation failed.
	BranchSkipped BranchStatus = "skipped"
)

// FailureReason explains a failed or partial run in terms a user can act on.
type FailureReason string

const (
	// ReasonNone is used for completed runs.
	ReasonNone FailureReason = ""

	// ReasonRateLimited means the credentials are throttled; retry later.
	ReasonRateLimited FailureReason = "rate_limited"

	// ReasonCredentialsExhausted means no credential is usable and none is cooling down.
	ReasonCredentialsExhausted FailureReason = "credentials_exhausted"

	// ReasonUpstreamUnavailable means the upstream service kept failing transiently.
	ReasonUpstreamUnavailable FailureReason = "upstream_unavailable"

	// ReasonMalformedOutput means the upstream answered with unusable structured output.
	ReasonMalformedOutput FailureReason = "malformed_output"

	// ReasonInvalidInput means the request itself was malformed.
	ReasonInvalidInput FailureReason = "invalid_input"
)

// BranchReport is the per-branch status of a pipeline run.
type BranchReport struct {
	Name     string
	Required bool
	Status   BranchStatus

	// FailedStep names the step that failed, if any.
	FailedStep string

	// Reason classifies the failure, if any.
	Reason FailureReason

	// Err is the failure, if any.
	Err error
}

// Artifact is the assembled output of a pipeline run.
type Artifact struct {
	Metadata Metadata

	// Outputs maps a branch name to the outputs of its last step.
	Outputs map[string][]string
}

// Result is the terminal report of a pipeline run.
type Result struct {
	RunID    string
	Status   PipelineStatus
	Artifact Artifact
	Branches []BranchReport
	Reason   FailureReason
	Err      error
	Duration time.Duration
}

// Branch returns the report for the named branch.
func (r Result) Branch(name string) (BranchReport, bool) {
	for _, b := range r.Branches {
		if b.Name == name {
			return b, true
		}
	}
	return BranchReport{}, false
}
