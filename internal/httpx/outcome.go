package httpx

import "github.com/tidwall/gjson"

// Outcome is the result of every call: either a payload or a Failure,
// never both, never a panic.
type Outcome struct {
	OK      bool
	Status  int
	JSON    gjson.Result
	Raw     []byte
	Failure *Failure
}

func success(status int, body []byte, raw bool) Outcome {
	out := Outcome{OK: true, Status: status}
	if raw {
		out.Raw = body
		return out
	}
	if len(body) > 0 {
		out.JSON = gjson.ParseBytes(body)
	}
	return out
}

func failed(f *Failure) Outcome {
	return Outcome{OK: false, Status: f.Status, Failure: f}
}

// FailKind returns the failure kind, or -1 when the outcome succeeded.
func (o Outcome) FailKind() Kind {
	if o.Failure == nil {
		return -1
	}
	return o.Failure.Kind
}

// Get extracts a JSON path from the decoded payload.
func (o Outcome) Get(path string) gjson.Result {
	return o.JSON.Get(path)
}
