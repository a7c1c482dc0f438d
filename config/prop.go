package config

// Common Configuration
const (

	// name of the application, reported to the broker as the connection name | lettuce
	PropAppName = "app.name"
)

// Logging Configuration
const (

	// log level | info
	PropLoggingLevel = "logging.level"

	// path to rolling log file
	PropLoggingRollingFile = "logging.rolling.file"

	// max age of log files in days, 0 means files are never deleted | 0
	PropLoggingRollingFileMaxAge = "logging.file.max-age"

	// max size of each log file in mb | 50
	PropLoggingRollingFileMaxSize = "logging.file.max-size"

	// max number of backup log files | 10
	PropLoggingRollingFileMaxBackups = "logging.file.max-backups"
)

// Web Server Configuration
const (

	// http server host | 0.0.0.0
	PropServerHost = "server.host"

	// http server port | 8012
	PropServerPort = "server.port"

	// time wait (in second) for in-flight requests before the http server shuts down | 5
	PropServerGracefulShutdownTimeSec = "server.gracefulShutdownTimeSec"

	// max size (in bytes) of a request body, larger requests are rejected with 413 | 1048576
	PropServerMaxBodySize = "server.request.max-body-size"

	// route of the prometheus endpoint | /metrics
	PropMetricsRoute = "metrics.route"
)

func init() {
	SetDefProp(PropAppName, "lettuce")
	SetDefProp(PropLoggingLevel, "info")
	SetDefProp(PropLoggingRollingFileMaxAge, 0)
	SetDefProp(PropLoggingRollingFileMaxSize, 50)
	SetDefProp(PropLoggingRollingFileMaxBackups, 10)
	SetDefProp(PropServerHost, "0.0.0.0")
	SetDefProp(PropServerPort, 8012)
	SetDefProp(PropServerGracefulShutdownTimeSec, 5)
	SetDefProp(PropServerMaxBodySize, 1048576)
	SetDefProp(PropMetricsRoute, "/metrics")
}
