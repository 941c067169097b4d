package websocket

import (
	"encoding/json"
	"errors"
)

// isDecodeError reports a frame that arrived intact but is not a question.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
