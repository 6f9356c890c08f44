package amigocloud

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is a successful API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON parses the body. An empty or non-JSON body yields a result that does not exist.
func (r *Response) JSON() gjson.Result {
	if r == nil || !gjson.ValidBytes(r.Body) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(r.Body)
}

// Get returns the value at path (gjson syntax) in a JSON body.
func (r *Response) Get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return ErrUnexpectedResponse.Msg("empty response body")
	}
	if err := jsonCodec.Unmarshal(r.Body, v); err != nil {
		return ErrUnexpectedResponse.MsgErr("unable to decode response body", err)
	}
	return nil
}

// IsJSON reports whether the body is valid JSON.
func (r *Response) IsJSON() bool {
	return r != nil && len(r.Body) > 0 && gjson.ValidBytes(r.Body)
}

// String returns the body as text.
func (r *Response) String() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}
