package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu      sync.RWMutex
	std     *log.Logger
	logFile *os.File

	DebugEnabled = false
)

// InitLogging sets up the leveled event sink. Output goes to logPath when it
// is set and to stderr otherwise; debug lines are dropped unless debugMode
// is on. Until InitLogging is called nothing is logged.
func InitLogging(debugMode bool, logPath string) error {
	var out io.Writer = os.Stderr

	var f *os.File

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		var err error

		f, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		out = f
	}

	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	logFile = f
	DebugEnabled = debugMode
	std = log.New(out, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

// Close closes the log file if open and stops logging.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	std = nil
}

func output(level, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if std == nil {
		return
	}

	// 3 skips output and the exported wrapper so Lshortfile names the caller.
	std.Output(3, level+" "+fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	output("[INFO]", format, v...)
}

// Errorf logs an error event.
func Errorf(format string, v ...any) {
	output("[ERROR]", format, v...)
}

// Debugf logs only when debug mode is enabled.
func Debugf(format string, v ...any) {
	mu.RLock()
	enabled := DebugEnabled
	mu.RUnlock()

	if enabled {
		output("[DEBUG]", format, v...)
	}
}

func Warnf(format string, v ...any) {
	output("[WARNING]", format, v...)
}
