// Package apperrors provides the chained error kinds used across the client. An error
// can wrap other errors, carry the HTTP status code of the response that caused it and
// an optional detail text (usually the response body), and still answer errors.Is and
// errors.As for every error it wraps.
package apperrors

// Error is an error kind that can be specialised and chained. All methods return a new
// Error and leave the receiver untouched, so package-level sentinels are safe to share.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // new error of the same kind with its own message
	Msg(msg string) Error                  // new message, wraps the receiver
	MsgErr(msg string, err ...error) Error // new message, wraps the receiver and errs
	Err(err ...error) Error                // same message, wraps the receiver and errs
	WithStatusCode(int) Error              // attaches an HTTP status code
	StatusCode() int                       // status code, 0 if none
	WithDetail(string) Error               // attaches detail text printed after the message
	Detail() string                        // detail text, empty if none
	ErrorAll() string                      // message followed by every wrapped error
	UnwrapAll() []error                    // wrapped errors in the order they were added
}
