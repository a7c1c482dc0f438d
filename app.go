package lettuce

import (
	"io"
	"os"

	"github.com/curtisnewbie/lettuce/config"
	"github.com/curtisnewbie/lettuce/flow"
	"github.com/curtisnewbie/lettuce/version"
)

// Load configuration (conf.yml, environment and `KEY=VALUE` cli args) and configure logging.
//
// Programs built on lettuce call it first thing in main.
func Bootstrap(args []string) flow.Rail {
	config.DefaultReadConfig(args)

	flow.SetLogLevel(config.GetPropStr(config.PropLoggingLevel))
	if f := config.GetPropStr(config.PropLoggingRollingFile); f != "" {
		rf := flow.BuildRollingLogFileWriter(flow.NewRollingLogFileParam{
			Filename:   f,
			MaxSize:    config.GetPropInt(config.PropLoggingRollingFileMaxSize),
			MaxAge:     config.GetPropInt(config.PropLoggingRollingFileMaxAge),
			MaxBackups: config.GetPropInt(config.PropLoggingRollingFileMaxBackups),
		})
		flow.SetLogOutput(io.MultiWriter(os.Stdout, rf))
	}

	rail := flow.EmptyRail()
	rail.Infof("---------------------------------------------- starting %s -------------------------------------------------------",
		config.GetPropStr(config.PropAppName))
	rail.Infof("Lettuce Version: %s", version.Version)
	return rail
}
