package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	jsonFormat   = false
	logger       = stdlog.New(os.Stdout, "", 0)
	outputFile   *os.File
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat switches between "text" (default) and "json" line output.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	jsonFormat = strings.EqualFold(format, "json")
}

// SetOutput directs log lines to stdout, stderr or an append-only file.
func SetOutput(output string) error {
	var w io.Writer
	var f *os.File

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		w, f = file, file
	}

	mu.Lock()
	defer mu.Unlock()

	if outputFile != nil {
		_ = outputFile.Close()
	}
	outputFile = f
	logger = stdlog.New(w, "", 0)
	return nil
}

// SetWriter redirects output to an arbitrary writer (used by tests).
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = stdlog.New(w, "", 0)
}

func log(level Level, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	if jsonFormat {
		line, err := json.Marshal(struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"msg"`
		}{now.Format(time.RFC3339), level.String(), message})
		if err == nil {
			logger.Println(string(line))
			return
		}
	}

	prefix := fmt.Sprintf("[%s] [%s] ", now.Format("2006-01-02 15:04:05"), level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
