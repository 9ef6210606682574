package provider

import (
    "errors"
    "fmt"
    "net/http"
)

// ErrorKind classifies a ProviderError.
type ErrorKind int

const (
    ErrTransport ErrorKind = iota
    ErrHTTP
    ErrInvalidResponse
    ErrUnsupportedPair
    ErrCircuitOpen
)

func (k ErrorKind) String() string {
    switch k {
    case ErrTransport:
        return "transport"
    case ErrHTTP:
        return "http"
    case ErrInvalidResponse:
        return "invalid_response"
    case ErrUnsupportedPair:
        return "unsupported_pair"
    case ErrCircuitOpen:
        return "circuit_open"
    }
    return "unknown"
}

// ProviderError is returned by every Source.
type ProviderError struct {
    Provider string
    Kind     ErrorKind
    Status   int
    Message  string
    Err      error
}

func (e *ProviderError) Error() string {
    switch e.Kind {
    case ErrTransport:
        return "transport error: " + e.Message
    case ErrHTTP:
        return fmt.Sprintf("http %d: %s", e.Status, e.Message)
    case ErrInvalidResponse:
        return "invalid response: " + e.Message
    case ErrUnsupportedPair:
        return "unsupported pair: " + e.Message
    case ErrCircuitOpen:
        return "circuit open: " + e.Message
    }
    return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable is true for transport failures, 429 and 5xx responses.
func (e *ProviderError) Retryable() bool {
    switch e.Kind {
    case ErrTransport:
        return true
    case ErrHTTP:
        return e.Status == http.StatusTooManyRequests || e.Status >= 500
    }
    return false
}

// TraceEntry renders "<provider>: <message>" for a provider trace.
func (e *ProviderError) TraceEntry() string {
    return e.Provider + ": " + e.Error()
}

func Transport(err error) *ProviderError {
    return &ProviderError{Kind: ErrTransport, Message: err.Error(), Err: err}
}

func HTTPStatus(status int, message string) *ProviderError {
    if message == "" {
        message = http.StatusText(status)
    }
    return &ProviderError{Kind: ErrHTTP, Status: status, Message: message}
}

func InvalidResponse(format string, args ...any) *ProviderError {
    return &ProviderError{Kind: ErrInvalidResponse, Message: fmt.Sprintf(format, args...)}
}

func UnsupportedPair(base, quote string) *ProviderError {
    return &ProviderError{Kind: ErrUnsupportedPair, Message: base + "/" + quote}
}

// AsProviderError converts any error into a ProviderError tagged with name.
// Errors that are not already ProviderErrors are treated as transport failures.
func AsProviderError(name string, err error) *ProviderError {
    var pe *ProviderError
    if errors.As(err, &pe) {
        tagged := *pe
        tagged.Provider = name
        return &tagged
    }
    tagged := Transport(err)
    tagged.Provider = name
    return tagged
}
