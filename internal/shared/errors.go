package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Job lifecycle errors
	ErrSubmission    = fmt.Errorf("download could not be submitted")
	ErrCancel        = fmt.Errorf("cancellation request failed")
	ErrTransientPoll = fmt.Errorf("job status poll failed")
	ErrJobNotFound   = fmt.Errorf("job not found")
	ErrJobFailed     = fmt.Errorf("download did not complete")

	// Progress feed errors
	ErrStreamUnavailable = fmt.Errorf("progress stream unavailable")
	ErrMalformedFrame    = fmt.Errorf("malformed progress frame")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
