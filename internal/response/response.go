// Package response implements the tagged sum returned by a coordinator's
// send_to_group: either the request was fulfilled with a value, or it
// was rejected (by the recipient, by a handler error, or by timeout).
package response

// Kind distinguishes the two shapes a Response can take.
type Kind int

const (
	KindFulfilled Kind = iota
	KindRejected
)

// ContentError adapts an opaque rejection payload (the content field of
// a rejected reply entry) to the error interface, so Rejected always
// carries a reason of type error regardless of whether the rejection
// originated from recipient content, a handler panic, or a timeout.
type ContentError struct {
	Content []byte
}

func (e *ContentError) Error() string {
	return string(e.Content)
}

// Response is the outcome of a request/response round trip.
type Response struct {
	kind   Kind
	value  []byte
	reason error
}

// Fulfilled builds a fulfilled Response carrying value.
func Fulfilled(value []byte) Response {
	return Response{kind: KindFulfilled, value: value}
}

// Rejected builds a rejected Response carrying reason.
func Rejected(reason error) Response {
	return Response{kind: KindRejected, reason: reason}
}

// RejectedContent builds a rejected Response from opaque reply content.
func RejectedContent(content []byte) Response {
	return Rejected(&ContentError{Content: content})
}

// IsFulfilled reports whether the request was fulfilled.
func (r Response) IsFulfilled() bool { return r.kind == KindFulfilled }

// IsRejected reports whether the request was rejected.
func (r Response) IsRejected() bool { return r.kind == KindRejected }

// Value returns the fulfilled value. It is the zero value for a
// rejected Response.
func (r Response) Value() []byte { return r.value }

// Reason returns the rejection reason. It is nil for a fulfilled
// Response.
func (r Response) Reason() error { return r.reason }
