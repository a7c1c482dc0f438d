package flow

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

const (
	callerField = "caller"

	traceSpanIdWidth = 16
	fnWidth          = 30
	levelWidth       = 5
)

var (
	logger = newLogger()

	logBufPool = sync.Pool{
		New: func() any {
			return &bytes.Buffer{}
		},
	}
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(CustomFormatter())
	l.SetReportCaller(false) // caller is resolved by callerFn
	return l
}

// Fixed-width formatter: time, level, [traceId,spanId], caller and message.
type CTFormatter struct {
}

func (c *CTFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var fn, traceId, spanId string
	if v, ok := entry.Data[callerField].(string); ok {
		fn = v
	}
	if v, ok := entry.Data[XTraceId].(string); ok {
		traceId = v
	}
	if v, ok := entry.Data[XSpanId].(string); ok {
		spanId = v
	}

	levelstr := strings.ToUpper(entry.Level.String())
	if entry.Level == logrus.WarnLevel {
		levelstr = "WARN"
	}

	b := logBufPool.Get().(*bytes.Buffer)
	defer putLogBuf(b)

	b.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	b.WriteByte(' ')
	writePadded(b, levelstr, levelWidth)
	b.WriteString(" [")
	writePadded(b, traceId, traceSpanIdWidth)
	b.WriteByte(',')
	writePadded(b, spanId, traceSpanIdWidth)
	b.WriteString("]  ")
	writePadded(b, fn, fnWidth)
	b.WriteString(" : ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')

	// b is put back to the pool, the returned slice must be a copy
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out, nil
}

func writePadded(b *bytes.Buffer, s string, width int) {
	b.WriteString(s)
	if len(s) < width {
		b.WriteString(strings.Repeat(" ", width-len(s)))
	}
}

func putLogBuf(b *bytes.Buffer) {
	b.Reset()
	logBufPool.Put(b)
}

// Get custom formatter logrus
func CustomFormatter() logrus.Formatter {
	return &CTFormatter{}
}

type NewRollingLogFileParam struct {
	Filename   string // filename
	MaxSize    int    // max file size in mb
	MaxAge     int    // max age in day
	MaxBackups int    // max number of files
}

// Create rolling file based logger
func BuildRollingLogFileWriter(p NewRollingLogFileParam) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   p.Filename,
		MaxSize:    p.MaxSize,    // megabytes
		MaxAge:     p.MaxAge,     // days
		MaxBackups: p.MaxBackups, // num of files
		LocalTime:  true,
		Compress:   false,
	}
}

// Change where logs are written.
func SetLogOutput(out io.Writer) {
	logger.SetOutput(out)
}

// Parse log level
func ParseLogLevel(logLevel string) (logrus.Level, bool) {
	switch strings.ToUpper(logLevel) {
	case "INFO":
		return logrus.InfoLevel, true
	case "DEBUG":
		return logrus.DebugLevel, true
	case "WARN":
		return logrus.WarnLevel, true
	case "ERROR":
		return logrus.ErrorLevel, true
	case "TRACE":
		return logrus.TraceLevel, true
	case "FATAL":
		return logrus.FatalLevel, true
	case "PANIC":
		return logrus.PanicLevel, true
	}
	return logrus.InfoLevel, false
}

func SetLogLevel(level string) {
	ll, ok := ParseLogLevel(level)
	if !ok {
		return
	}
	logger.SetLevel(ll)
}

// Check whether current log level is DEBUG
func IsDebugLevel() bool {
	return logger.GetLevel() == logrus.DebugLevel
}

func Debugf(format string, args ...any) {
	logAt(logrus.DebugLevel, format, args...)
}

func Infof(format string, args ...any) {
	logAt(logrus.InfoLevel, format, args...)
}

func logAt(lvl logrus.Level, format string, args ...any) {
	if !logger.IsLevelEnabled(lvl) {
		return
	}
	logger.WithField(callerField, callerFn(4)).Logf(lvl, format, args...)
}

var callerPcsPool = sync.Pool{
	New: func() any {
		p := make([]uintptr, 4)
		return &p
	},
}

// Name of the function skip frames above, 0 being runtime.Callers, 1 being callerFn itself.
func callerFn(skip int) string {
	pcs := callerPcsPool.Get().(*[]uintptr)
	defer callerPcsPool.Put(pcs)

	n := runtime.Callers(skip, *pcs)
	if n < 1 {
		return ""
	}
	f, _ := runtime.CallersFrames((*pcs)[:n]).Next()
	fn := f.Function
	if j := strings.LastIndexByte(fn, '/'); j >= 0 {
		fn = fn[j+1:]
	}
	return fn
}
