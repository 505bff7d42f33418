package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Kind classifies a GenerationError.
type Kind string

const (
	// KindValidation: empty description or prompt, rejected before any network call.
	KindValidation Kind = "validation"
	// KindRemoteCall: transport, auth or quota failure from either model.
	KindRemoteCall Kind = "remote_call"
	// KindEmptyResult: the image call succeeded but carried no image part.
	KindEmptyResult Kind = "empty_result"
)

// Sentinels for errors.Is matching against a GenerationError of the same kind.
var (
	ErrValidation  = errors.New("validation error")
	ErrRemoteCall  = errors.New("remote call error")
	ErrEmptyResult = errors.New("empty result error")
)

// GenerationError is returned by GeneratePrompt and GenerateImage.
type GenerationError struct {
	Kind       Kind
	Op         string // "generate_prompt" or "generate_image"
	StatusCode int    // HTTP status from the provider, 0 when unknown
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *GenerationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrRemoteCall:
		return e.Kind == KindRemoteCall
	case ErrEmptyResult:
		return e.Kind == KindEmptyResult
	}
	return false
}

// IsQuota reports whether the provider rejected the call for rate or quota reasons.
func (e *GenerationError) IsQuota() bool {
	return e.Kind == KindRemoteCall && e.StatusCode == http.StatusTooManyRequests
}

// IsAuth reports whether the provider rejected the API credential.
func (e *GenerationError) IsAuth() bool {
	return e.Kind == KindRemoteCall &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

func validationError(op, message string) error {
	return &GenerationError{Kind: KindValidation, Op: op, Message: message}
}

func emptyResultError(op, message string) error {
	return &GenerationError{Kind: KindEmptyResult, Op: op, Message: message}
}

// remoteCallError wraps a provider error, keeping the HTTP status when the
// genai SDK reports one.
func remoteCallError(op string, err error) error {
	ge := &GenerationError{Kind: KindRemoteCall, Op: op, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		ge.StatusCode = apiErr.Code
		switch {
		case ge.IsAuth():
			ge.Message = "authentication failed"
		case ge.IsQuota():
			ge.Message = "quota or rate limit exceeded"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ge.Message = "request timed out"
	}
	return ge
}

// Message returns the text to show a user for err: the GenerationError
// message when it has one, otherwise err's full text.
func Message(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}
