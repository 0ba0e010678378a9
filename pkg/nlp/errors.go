package nlp

import (
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Sentinels matched with errors.Is. ModelError values match the sentinel of
// their kind.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrRefusal         = errors.New("model refused to respond")
	ErrEmptyResponse   = errors.New("model returned an empty response")
	ErrInvalidModel    = errors.New("invalid model specified")
	ErrUnknownProvider = errors.New("unknown nlp provider")
)

// ModelError is a failure reported by a model provider.
type ModelError struct {
	// Kind is one of ErrRateLimit, ErrRefusal or ErrEmptyResponse.
	Kind    error
	Message string
}

func (e *ModelError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

// Unwrap exposes the kind, so errors.Is matches its sentinel.
func (e *ModelError) Unwrap() error {
	return e.Kind
}

// NewRateLimitError reports throttling. The message is optional.
func NewRateLimitError(message ...string) *ModelError {
	e := &ModelError{Kind: ErrRateLimit}
	if len(message) > 0 {
		e.Message = message[0]
	}
	return e
}

// NewRefusalError reports a model declining the prompt.
func NewRefusalError(message string) *ModelError {
	return &ModelError{Kind: ErrRefusal, Message: message}
}

// NewEmptyResponseError reports a reply without content.
func NewEmptyResponseError(message string) *ModelError {
	return &ModelError{Kind: ErrEmptyResponse, Message: message}
}

// classifyOpenAIError turns HTTP 429 responses into rate limit errors and
// returns anything else untouched.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return NewRateLimitError(apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return NewRateLimitError(reqErr.Error())
	}
	return err
}
