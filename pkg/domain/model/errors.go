package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy of the turn pipeline. Callers classify with errors.Is and
// pick the recovery path per class.
var (
	// ErrDecisionAmbiguous: routing decision violated the exactly-one
	// contract. Recovered locally with a clarification request.
	ErrDecisionAmbiguous = goerr.New("ambiguous routing decision")

	// ErrUnknownTool: a tool call named an unregistered tool
	ErrUnknownTool = goerr.New("unknown tool")

	// ErrInvalidArguments: tool arguments failed schema validation
	ErrInvalidArguments = goerr.New("invalid tool arguments")

	// ErrUpstreamUnavailable: an external backend (decision service,
	// embedding, tool backend) was unreachable or timed out after retries
	ErrUpstreamUnavailable = goerr.New("upstream service unavailable")

	// ErrIndexUnavailable: the semantic index backend is temporarily down;
	// recall proceeds with an empty result set
	ErrIndexUnavailable = goerr.New("semantic index unavailable")

	// ErrTaskAlreadyDelivered: cancel arrived after delivery began
	ErrTaskAlreadyDelivered = goerr.New("timer task already delivered")

	// ErrAttachmentTooLarge: an inbound attachment exceeded MaxAttachmentSize
	ErrAttachmentTooLarge = goerr.New("attachment too large")
)
