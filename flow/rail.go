package flow

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Rail carries the trace ids and the cancellation signal of one unit of work, e.g., a http request,
// a handled event or the consumer loop, and logs with them.
type Rail struct {
	ctx context.Context
}

// Create empty Rail with new trace id and span id.
func EmptyRail() Rail {
	return NewRail(context.Background())
}

// Create Rail from context, trace id and span id are created if absent.
func NewRail(ctx context.Context) Rail {
	for _, k := range []string{XSpanId, XTraceId} {
		if ctx.Value(k) == nil {
			ctx = context.WithValue(ctx, k, newId()) //lint:ignore SA1029 keys are shared with headers
		}
	}
	return Rail{ctx: ctx}
}

func (r Rail) Context() context.Context {
	return r.ctx
}

func (r Rail) Done() <-chan struct{} {
	return r.ctx.Done()
}

func (r Rail) IsDone() bool {
	return r.ctx.Err() != nil
}

func (r Rail) CtxValStr(key string) string {
	if v := r.ctx.Value(key); v != nil {
		return cast.ToString(v)
	}
	return ""
}

func (r Rail) TraceId() string {
	return r.CtxValStr(XTraceId)
}

func (r Rail) SpanId() string {
	return r.CtxValStr(XSpanId)
}

// Id of the event being handled, empty outside of a handler.
func (r Rail) EventId() string {
	return r.CtxValStr(XEventId)
}

func (r Rail) WithCtxVal(key string, val any) Rail {
	return NewRail(context.WithValue(r.ctx, key, val)) //lint:ignore SA1029 keys are shared with headers
}

func (r Rail) WithCancel() (Rail, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.ctx)
	return NewRail(ctx), cancel
}

// Create Rail for the next span of the same trace.
//
// Only propagated values are copied, cancellation of r is not inherited.
func (r Rail) NextSpan() Rail {
	ctx := context.Background()
	UsePropagationKeys(func(k string) {
		if v := r.ctx.Value(k); v != nil {
			ctx = context.WithValue(ctx, k, v) //lint:ignore SA1029 keys are shared with headers
		}
	})
	return NewRail(context.WithValue(ctx, XSpanId, newId())) //lint:ignore SA1029 keys are shared with headers
}

func (r Rail) Debugf(format string, args ...any) {
	r.logf(logrus.DebugLevel, format, args...)
}

func (r Rail) Infof(format string, args ...any) {
	r.logf(logrus.InfoLevel, format, args...)
}

func (r Rail) Info(msg string) {
	r.logf(logrus.InfoLevel, "%s", msg)
}

func (r Rail) Warnf(format string, args ...any) {
	r.logf(logrus.WarnLevel, format, args...)
}

func (r Rail) Errorf(format string, args ...any) {
	r.logf(logrus.ErrorLevel, format, args...)
}

// Log at fatal level and exit.
func (r Rail) Fatalf(format string, args ...any) {
	r.logf(logrus.FatalLevel, format, args...)
	logger.Exit(1)
}

// caller of logf's caller is reported
func (r Rail) logf(lvl logrus.Level, format string, args ...any) {
	if !logger.IsLevelEnabled(lvl) {
		return
	}
	logger.WithFields(logrus.Fields{
		XTraceId:    r.ctx.Value(XTraceId),
		XSpanId:     r.ctx.Value(XSpanId),
		callerField: callerFn(4),
	}).Logf(lvl, format, args...)
}

// Create new span id.
func NewSpanId() string {
	return newId()
}

func newId() string {
	b := [8]byte{}
	binary.NativeEndian.PutUint64(b[:], rand.Uint64())
	return hex.EncodeToString(b[:])
}
