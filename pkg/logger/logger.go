package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

var (
	InfoLog  *log.Logger
	ErrorLog *log.Logger
	WarnLog  *log.Logger
	DebugLog *log.Logger
	logFile  *os.File
	level    = INFO
)

const (
	INFO = iota
	DEBUG
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

func init() {
	Init()
}

// ParseLevel maps a LOG_LEVEL value to a level constant. Unknown values mean INFO.
func ParseLevel(s string) int {
	if strings.EqualFold(strings.TrimSpace(s), "debug") {
		return DEBUG
	}
	return INFO
}

// InitLogger initializes the logger with a file output and console output.
// An empty filename logs to the console only.
func InitLogger(filename string, lvl int) error {
	Close()
	level = lvl
	if filename == "" {
		Init()
		return nil
	}

	var err error
	logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	SetOutput(io.MultiWriter(os.Stdout, logFile))
	return nil
}

// SetOutput points every level at w.
func SetOutput(w io.Writer) {
	InfoLog = log.New(w, "INFO: ", flags)
	ErrorLog = log.New(w, "ERROR: ", flags)
	WarnLog = log.New(w, "WARN: ", flags)
	DebugLog = log.New(w, "DEBUG: ", flags)
}

// SetLevel changes the active level.
func SetLevel(lvl int) {
	level = lvl
}

// Close closes the log file, if any, and goes back to console output.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
		Init()
	}
}

// LogFileName is the file InitLogger opened, or "" when logging to the
// console only.
func LogFileName() string {
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

func Init() {
	InfoLog = log.New(os.Stdout, "INFO: ", flags)
	ErrorLog = log.New(os.Stderr, "ERROR: ", flags)
	WarnLog = log.New(os.Stdout, "WARN: ", flags)
	DebugLog = log.New(os.Stdout, "DEBUG: ", flags)
}

func Infof(format string, v ...interface{}) {
	InfoLog.Output(2, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	ErrorLog.Output(2, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	WarnLog.Output(2, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	if level < DEBUG {
		return
	}
	DebugLog.Output(2, fmt.Sprintf(format, v...))
}
