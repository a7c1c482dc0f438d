package lettuce

import (
	"github.com/curtisnewbie/lettuce/encoding/json"
	"github.com/curtisnewbie/lettuce/util/errs"
	"github.com/curtisnewbie/lettuce/util/idutil"
)

const (
	fieldId   = "id"
	fieldName = "name"
	fieldData = "data"
)

// Event dispatched to the 'events' exchange.
//
// Name doubles as the routing key. Event is also the record returned by Dispatch, it can be
// written as a http response body directly.
type Event struct {
	Id   string         `json:"id"`
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

// Create a new Event with a fresh time-ordered id.
//
// If data is nil, the event gets its own empty map.
func NewEvent(name string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Id:   idutil.New(),
		Name: name,
		Data: data,
	}
}

// Serialize the event into the wire format.
func MarshalEvent(e Event) ([]byte, error) {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	b, err := json.WriteJson(e)
	if err != nil {
		return nil, errs.ErrSerialization.Wrapf(err, "failed to serialize event '%v'", e.Name)
	}
	return b, nil
}

// Parse event from the wire format.
//
// The body must be a json object with exactly three fields: non-empty string 'id',
// non-empty string 'name' and json object 'data'. Anything else is rejected with ErrSerialization.
func ParseEvent(body []byte) (Event, error) {
	var e Event
	obj, err := json.ParseJsonObject(body)
	if err != nil {
		return e, errs.ErrSerialization.Wrapf(err, "malformed event body")
	}

	for k := range obj {
		if k != fieldId && k != fieldName && k != fieldData {
			return e, errs.ErrSerialization.WithInternalMsg("unknown field '%v' in event body", k)
		}
	}

	if e.Id, err = parseRequiredStr(obj, fieldId); err != nil {
		return e, err
	}
	if e.Name, err = parseRequiredStr(obj, fieldName); err != nil {
		return e, err
	}

	raw, ok := obj[fieldData]
	if !ok {
		return e, errs.ErrSerialization.WithInternalMsg("missing field '%v' in event body", fieldData)
	}
	if e.Data, err = json.ParseJsonObjectValue(raw); err != nil {
		return e, errs.ErrSerialization.Wrapf(err, "field '%v' is not a json object", fieldData)
	}
	return e, nil
}

func parseRequiredStr(obj map[string]json.RawMessage, field string) (string, error) {
	raw, ok := obj[field]
	if !ok {
		return "", errs.ErrSerialization.WithInternalMsg("missing field '%v' in event body", field)
	}
	var s string
	if err := json.ParseJson(raw, &s); err != nil {
		return "", errs.ErrSerialization.Wrapf(err, "field '%v' is not a string", field)
	}
	if s == "" {
		return "", errs.ErrSerialization.WithInternalMsg("field '%v' is empty", field)
	}
	return s, nil
}
