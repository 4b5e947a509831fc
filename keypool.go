package keypool

import (
	"context"
)

// Pipeline runs the content-generation workflow for one owner and provider
// against that owner's pool of credentials.
type Pipeline interface {
	// Run executes the workflow and blocks until it reaches a terminal state.
	//
	// The pipeline will:
	// 1. Validate the input and create a RequestContext for this run
	// 2. Execute the foundation stage, recovering malformed structured output once
	// 3. Run every branch concurrently, each as an ordered chain of steps
	// 4. Join the branches and assemble the artifact from the ones that succeeded
	//
	// Every pipeline outcome, including failures, is reported in Result.
	// Run returns a non-nil error only when the pipeline itself is misconfigured.
	Run(ctx context.Context, ownerID, provider string, input WorkflowInput) (Result, error)
}

// Caller performs one upstream model call with a credential.
// Implementations should return an *UpstreamError (or an error Classify understands)
// so that failures can be mapped onto credential status changes.
type Caller interface {
	Call(ctx context.Context, cred Credential, req CallRequest) (string, error)
}

// CallerFunc adapts an ordinary function to the Caller interface.
type CallerFunc func(ctx context.Context, cred Credential, req CallRequest) (string, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, cred Credential, req CallRequest) (string, error) {
	return f(ctx, cred, req)
}

// Logger receives structured log lines as alternating key/value pairs.
// Every component accepts a nil Logger and then logs nothing.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
}
