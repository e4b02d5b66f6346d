package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/bitechdev/JobFeed/pkg/errortracking"
)

var Logger *zap.SugaredLogger
var errorTracker errortracking.Provider

func Init(dev bool) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		UpdateLogger(&cfg)
	} else {
		cfg := zap.NewProductionConfig()
		UpdateLogger(&cfg)
	}
}

// UpdateLoggerPath redirects output to path ("stdout"/"stderr" are accepted)
func UpdateLoggerPath(path string, dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	UpdateLogger(&cfg)
}

func UpdateLogger(config *zap.Config) {
	if config == nil {
		defaultConfig := zap.NewProductionConfig()
		defaultConfig.OutputPaths = []string{"jobfeed.log"}
		config = &defaultConfig
	}

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Print(err)
		return
	}

	Logger = logger.Sugar()
	Info("JobFeed logger initialized")
}

// SetLogger replaces the package logger, mainly for tests
func SetLogger(l *zap.Logger) {
	if l == nil {
		Logger = nil
		return
	}
	Logger = l.Sugar()
}

// Sync flushes buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// InitErrorTracking initializes the error tracking provider
func InitErrorTracking(provider errortracking.Provider) {
	errorTracker = provider
	if errorTracker != nil {
		Info("Error tracking initialized")
	}
}

// GetErrorTracker returns the current error tracking provider
func GetErrorTracker() errortracking.Provider {
	return errorTracker
}

// CloseErrorTracking flushes and closes the error tracking provider
func CloseErrorTracking() error {
	if errorTracker != nil {
		errorTracker.Flush(5)
		return errorTracker.Close()
	}
	return nil
}

func Info(template string, args ...interface{}) {
	if Logger == nil {
		log.Printf(template, args...)
		return
	}
	Logger.Infow(fmt.Sprintf(template, args...), "process_id", os.Getpid())
}

func Warn(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if Logger == nil {
		log.Printf("%s", message)
	} else {
		Logger.Warnw(message, "process_id", os.Getpid())
	}
	track(message, errortracking.SeverityWarning)
}

func Error(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if Logger == nil {
		log.Printf("%s", message)
	} else {
		Logger.Errorw(message, "process_id", os.Getpid())
	}
	track(message, errortracking.SeverityError)
}

func Debug(template string, args ...interface{}) {
	if Logger == nil {
		return
	}
	Logger.Debugw(fmt.Sprintf(template, args...), "process_id", os.Getpid())
}

func track(message string, severity errortracking.Severity) {
	if errorTracker == nil {
		return
	}
	extra := map[string]interface{}{"process_id": os.Getpid()}
	if component := componentOf(message); component != "" {
		extra["component"] = component
	}
	errorTracker.CaptureMessage(context.Background(), message, severity, extra)
}

// componentOf extracts the "[Component]" prefix used by log messages
func componentOf(message string) string {
	if !strings.HasPrefix(message, "[") {
		return ""
	}
	end := strings.Index(message, "]")
	if end <= 1 {
		return ""
	}
	return message[1:end]
}

// CatchPanicCallback recovers a panic, reports it and calls cb with the recovered value.
// It must be deferred directly.
func CatchPanicCallback(location string, cb func(err any)) {
	if err := recover(); err != nil {
		reportPanic(location, err)
		if cb != nil {
			cb(err)
		}
	}
}

// CatchPanic - Handle panic. It must be deferred directly.
func CatchPanic(location string) {
	if err := recover(); err != nil {
		reportPanic(location, err)
	}
}

func reportPanic(location string, err any) {
	callstack := debug.Stack()

	if Logger != nil {
		Error("Panic in %s : %v", location, err)
	} else {
		fmt.Printf("%s:PANIC->%+v", location, err)
		debug.PrintStack()
	}

	if errorTracker != nil {
		errorTracker.CapturePanic(context.Background(), err, callstack, map[string]interface{}{
			"location":   location,
			"process_id": os.Getpid(),
		})
	}
}

// HandlePanic logs a panic and returns it as an error.
// Call it with the result of recover() from a deferred function:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = logger.HandlePanic("MethodName", r)
//	    }
//	}()
func HandlePanic(methodName string, r any) error {
	stack := debug.Stack()
	Error("Panic in %s: %v\nStack trace:\n%s", methodName, r, string(stack))

	if errorTracker != nil {
		errorTracker.CapturePanic(context.Background(), r, stack, map[string]interface{}{
			"method":     methodName,
			"process_id": os.Getpid(),
		})
	}

	return fmt.Errorf("panic in %s: %v", methodName, r)
}
