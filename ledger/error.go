package ledger

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// RequestError is a non-200 response from a ledger node.
type RequestError struct {
	Status      string
	ErrorString string

	RequestBody  []byte
	ResponseBody []byte
	StatusCode   int
}

func ParseRequestError(b []byte) *RequestError {
	var parser fastjson.Parser
	var e RequestError

	v, err := parser.ParseBytes(b)
	if err != nil {
		return &e
	}

	e.Status = string(v.GetStringBytes("status"))
	e.ErrorString = string(v.GetStringBytes("error"))

	return &e
}

func (e *RequestError) Error() string {
	if e.ErrorString != "" {
		return e.ErrorString
	}

	return fmt.Sprintf(`Unexpected error code %d.
	Request body: %s
	Response body: %s`, e.StatusCode, e.RequestBody, e.ResponseBody)
}

// mapped turns well-known status codes back into the errors a Backend
// returns, so callers see the same errors over HTTP as in-process. Any
// other response stays a *RequestError.
func (e *RequestError) mapped() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return errors.Wrap(ErrNotFound, e.Error())
	case http.StatusConflict:
		return &RejectedError{Reason: e.ErrorString}
	}

	return e
}
