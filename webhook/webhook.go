package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/curtisnewbie/lettuce"
	"github.com/curtisnewbie/lettuce/config"
	"github.com/curtisnewbie/lettuce/encoding/json"
	"github.com/curtisnewbie/lettuce/flow"
	"github.com/curtisnewbie/lettuce/util/errs"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EventRegistrationCreated = "registration_created"
	EventPurchaseCreated     = "purchase_created"
	EventPaymentCreated      = "payment_created"

	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeEntityTooLarge = "ENTITY_TOO_LARGE"
	ErrCodeGeneric        = "XXXX"

	contentTypeJson = "application/json"
)

// Dispatches events, *lettuce.Lettuce implements it.
type Dispatcher interface {
	Dispatch(rail flow.Rail, name string, data map[string]any) (lettuce.Event, error)
}

// Error response body.
type Resp struct {
	ErrorCode string `json:"errorCode"`
	Msg       string `json:"msg"`
	Error     bool   `json:"error"`
}

// Routes that trigger events, mapping url to event name.
var eventRoutes = []struct {
	url   string
	event string
}{
	{"/registrations", EventRegistrationCreated},
	{"/purchases", EventPurchaseCreated},
	{"/payments", EventPaymentCreated},
}

// Create gin engine with all the webhook routes registered.
func NewEngine(rail flow.Rail, d Dispatcher) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(TraceMiddleware())
	if flow.IsDebugLevel() {
		engine.Use(gin.Logger())
	}
	engine.Use(gin.CustomRecovery(DefaultRecovery))
	RegisterRoutes(rail, engine, d)
	return engine
}

// Register the health check, the event routes and the prometheus route.
func RegisterRoutes(rail flow.Rail, engine *gin.Engine, d Dispatcher) {
	engine.NoRoute(func(c *gin.Context) {
		BuildRail(c).Warnf("NoRoute for %s '%s'", c.Request.Method, c.Request.RequestURI)
		c.AbortWithStatus(http.StatusNotFound)
	})

	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Ok")
	})
	rail.Debugf("%-6s %s", http.MethodGet, "/")

	for _, r := range eventRoutes {
		engine.POST(r.url, DispatchHandler(d, r.event))
		rail.Debugf("%-6s %s -> %s", http.MethodPost, r.url, r.event)
	}

	mr := config.GetPropStr(config.PropMetricsRoute)
	engine.GET(mr, gin.WrapH(promhttp.Handler()))
	rail.Debugf("%-6s %s", http.MethodGet, mr)
}

// Build handler that dispatches the request body as the data of event.
//
// Empty body is treated as empty data, a body that is not a json object is rejected with 400,
// a body larger than server.request.max-body-size is rejected with 413.
func DispatchHandler(d Dispatcher, event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rail := BuildRail(c)

		limit := int64(config.GetPropInt(config.PropServerMaxBodySize))
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				rail.Warnf("Request body for '%v' exceeds %v bytes", event, mbe.Limit)
				writeResp(c, http.StatusRequestEntityTooLarge, errResp(ErrCodeEntityTooLarge, "Request body is too large"))
				return
			}
			rail.Warnf("Failed to read request body, %v", err)
			writeResp(c, http.StatusBadRequest, errResp(ErrCodeBadRequest, "Failed to read request body"))
			return
		}

		var data map[string]any
		if len(bytes.TrimSpace(body)) > 0 {
			if data, err = json.ParseJsonObjectValue(body); err != nil {
				rail.Infof("Illegal request body for '%v', %v", event, err)
				writeResp(c, http.StatusBadRequest, errResp(ErrCodeBadRequest, "Request body should be a json object"))
				return
			}
		}

		evt, err := d.Dispatch(rail, event, data)
		if err != nil {
			rail.Errorf("Failed to dispatch '%v', %v", event, err)
			if le, ok := errs.AsLettuceErr(err); ok {
				writeResp(c, http.StatusInternalServerError, errResp(le.Code(), le.Msg()))
				return
			}
			writeResp(c, http.StatusInternalServerError, errResp(ErrCodeGeneric, "Failed to dispatch event, please try again later"))
			return
		}
		writeResp(c, http.StatusOK, evt)
	}
}

// Recover from panic in handlers.
func DefaultRecovery(c *gin.Context, e any) {
	rail := BuildRail(c)
	rail.Errorf("%v '%v' Recovered from panic, %v", c.Request.Method, c.Request.RequestURI, e)

	// response already written, avoid writting it again.
	if c.Writer.Written() {
		return
	}
	writeResp(c, http.StatusInternalServerError, errResp(ErrCodeGeneric, "Unknown error, please try again later"))
}

// Tracing Middleware
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// propagate tracing key/value pairs with context
		ctx := c.Request.Context()

		flow.UsePropagationKeys(func(k string) {
			if h := c.GetHeader(k); h != "" {
				ctx = context.WithValue(ctx, k, h) //lint:ignore SA1029 keys must be exposed to retrieve the values
			}
		})

		// replace the context
		c.Request = c.Request.WithContext(ctx)

		// follow the chain
		c.Next()
	}
}

// Build Rail from gin.Context, trace id and span id are created if absent.
func BuildRail(c *gin.Context) flow.Rail {
	return flow.NewRail(c.Request.Context())
}

func errResp(code string, msg string) Resp {
	return Resp{ErrorCode: code, Msg: msg, Error: true}
}

func writeResp(c *gin.Context, status int, body any) {
	b, err := json.WriteJson(body)
	if err != nil {
		BuildRail(c).Errorf("Failed to write response, %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, contentTypeJson, b)
}
