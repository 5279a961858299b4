package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (1MB).
	MaxRequestBodySize = 1 << 20
)

// DecodeJSON decodes a single JSON value from body.
// Unknown fields are ignored; absent or null fields decode to their zero value.
func DecodeJSON[T any](body []byte) (T, error) {
	var zeroValue T

	if len(body) > MaxRequestBodySize {
		return zeroValue, fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))

	var v T
	if err := decoder.Decode(&v); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalErr *json.UnmarshalTypeError

		switch {
		case errors.As(err, &syntaxErr):
			return zeroValue, fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.As(err, &unmarshalErr):
			return zeroValue, fmt.Errorf("invalid value for field %q", unmarshalErr.Field)
		case errors.Is(err, io.EOF):
			return zeroValue, errors.New("request body is empty")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return zeroValue, errors.New("malformed JSON: unexpected end of input")
		default:
			return zeroValue, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	if decoder.More() {
		return zeroValue, errors.New("request body contains multiple JSON objects")
	}

	return v, nil
}
