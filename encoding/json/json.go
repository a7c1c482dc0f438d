package json

import (
	stdjson "encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var (
	config = jsoniter.Config{EscapeHTML: true}.Froze()

	// numbers of arbitrary json values are kept as Number, e.g., snowflake ids above 2^53 stay exact
	numConfig = jsoniter.Config{EscapeHTML: true, UseNumber: true}.Froze()

	errNotJsonObject = errors.New("not a json object")
)

// Raw JSON value whose decoding is deferred.
type RawMessage = jsoniter.RawMessage

// JSON number literal, written back as is.
type Number = stdjson.Number

// Parse json bytes.
func ParseJson(body []byte, ptr any) error {
	return config.Unmarshal(body, ptr)
}

// Parse json bytes as a json object, the values are kept as RawMessage.
//
// Anything other than a json object (including 'null') is rejected.
func ParseJsonObject(body []byte) (map[string]RawMessage, error) {
	return parseObject[RawMessage](config, body)
}

// Parse json bytes as a json object, numbers are parsed as Number.
//
// Anything other than a json object (including 'null') is rejected.
func ParseJsonObjectValue(body []byte) (map[string]any, error) {
	return parseObject[any](numConfig, body)
}

func parseObject[V any](api jsoniter.API, body []byte) (map[string]V, error) {
	if t := api.Get(body).ValueType(); t != jsoniter.ObjectValue {
		return nil, errNotJsonObject
	}
	var m map[string]V
	if err := api.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]V{}
	}
	return m, nil
}

// Write json as bytes.
func WriteJson(body any) ([]byte, error) {
	return config.Marshal(body)
}

// Write indented json as string, mostly for logging.
func SWriteIndent(body any) (string, error) {
	if v, ok := body.(string); ok {
		return v, nil
	}
	buf, err := config.MarshalIndent(body, "", "  ")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
