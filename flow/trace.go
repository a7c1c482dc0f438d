package flow

import (
	"github.com/spf13/cast"
)

const (
	XTraceId = "X-B3-TraceId"
	XSpanId  = "X-B3-SpanId"
	XEventId = "x-event-id"
)

var (
	// keys of context values that are carried across processes, e.g., through AMQP message headers.
	propagationKeys = []string{XTraceId, XSpanId}
)

func UsePropagationKeys(forEach func(key string)) {
	for _, k := range propagationKeys {
		forEach(k)
	}
}

// Load propagated values from headers into a new Rail.
func LoadPropagationKeysFromHeaders[T any](rail Rail, headers map[string]T) Rail {
	UsePropagationKeys(func(k string) {
		if hv, ok := headers[k]; ok {
			if s := cast.ToString(hv); s != "" {
				rail = rail.WithCtxVal(k, s)
			}
		}
	})
	return rail
}

// Write propagated values of the Rail into headers.
func WritePropagationKeysToHeaders(rail Rail, headers map[string]any) {
	UsePropagationKeys(func(k string) {
		if v := rail.CtxValStr(k); v != "" {
			headers[k] = v
		}
	})
}
