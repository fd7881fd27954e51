package httpx

import "fmt"

// Kind classifies why a request produced no usable payload.
type Kind int

const (
	// FailTimeout covers deadline and read timeouts, after retries.
	FailTimeout Kind = iota
	// FailHTTPStatus is a non-2xx terminal status.
	FailHTTPStatus
	// FailTransport is a connection-level error with no HTTP status.
	FailTransport
	// FailDecode is a 2xx body that is not valid JSON.
	FailDecode
	// FailAuth is a rejected credential: 401/403 or an authorizer error.
	FailAuth
	// FailMalformed is a decodable payload whose shape violates the
	// endpoint's contract.
	FailMalformed
)

// String returns the wire name of the failure kind
func (k Kind) String() string {
	switch k {
	case FailTimeout:
		return "timeout"
	case FailHTTPStatus:
		return "http_error"
	case FailTransport:
		return "transport"
	case FailDecode:
		return "decode"
	case FailAuth:
		return "auth_failure"
	case FailMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Failure describes a terminal request failure. It implements error so
// callers can surface it directly, but the Outcome carrying it is the
// primary contract.
type Failure struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	switch {
	case f.Err != nil && f.Detail != "":
		return fmt.Sprintf("%s (%d): %s: %v", f.Kind, f.Status, f.Detail, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s (%d): %v", f.Kind, f.Status, f.Err)
	case f.Detail != "":
		return fmt.Sprintf("%s (%d): %s", f.Kind, f.Status, f.Detail)
	default:
		return fmt.Sprintf("%s (%d)", f.Kind, f.Status)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

func newFailure(kind Kind, status int, detail string, err error) *Failure {
	return &Failure{Kind: kind, Status: status, Detail: detail, Err: err}
}
