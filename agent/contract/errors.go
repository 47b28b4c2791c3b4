package contract

import "errors"

var (
	ErrLLMUnavailable       = errors.New("language model unavailable")
	ErrLLMMalformedResponse = errors.New("language model response is malformed")
	ErrPromptMissing        = errors.New("required prompt is missing")
	ErrValidation           = errors.New("validation failed")

	ErrNoCapability    = errors.New("no platform capability available")
	ErrEmptyPlan       = errors.New("dispatch plan is empty")
	ErrUnknownPlatform = errors.New("platform is not registered")
	ErrEmptyRegistry   = errors.New("plugin registry is empty")
	ErrSummarization   = errors.New("summarization failed")
)
