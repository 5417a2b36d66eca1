package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	initOnce     sync.Once
)

// Initialize sets up the global logger from LOG_LEVEL and LOG_FORMAT.
// Deployments run concurrently, so the first caller wins.
func Initialize() *logrus.Logger {
	initOnce.Do(func() {
		globalLogger = newLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	})
	return globalLogger
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(level))

	if strings.ToLower(format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			ForceColors:      true,
			CallerPrettyfier: callerPrettyfier,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		})
	}

	logger.SetReportCaller(true)
	logger.SetOutput(out)
	return logger
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Get returns the global logger instance, initializing it if necessary
func Get() *logrus.Logger {
	return Initialize()
}

// WithModule creates a new entry with module name
func WithModule(moduleName string) *logrus.Entry {
	return Get().WithField("module", moduleName)
}

// WithDeployment tags an entry with the identity of one deployment.
func WithDeployment(moduleName, deploymentID, project, environment string) *logrus.Entry {
	return WithModule(moduleName).WithFields(logrus.Fields{
		"deployment_id": deploymentID,
		"project":       project,
		"environment":   environment,
	})
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	filename := path.Base(f.File)
	return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
}
