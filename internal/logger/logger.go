package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Logger writes colored lines to the terminal and JSON lines to the daily log file.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	logFile  *os.File
	minLevel LogLevel
}

// NewLogger opens logs/<service>-YYYY-MM-DD.log and mirrors every entry to stdout.
func NewLogger(service string) *Logger {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	logFileName := fmt.Sprintf("logs/%s-%s.log", service, time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	l := &Logger{
		out:      os.Stdout,
		logFile:  logFile,
		minLevel: levelFromEnv(),
	}

	l.Info("LOGGER", fmt.Sprintf("Logging initialized for %s", service))
	l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))

	return l
}

// NewWithWriter builds a logger without a log file. Colors are disabled so the
// output stays readable when w is not a terminal.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{out: w, minLevel: DEBUG}
}

func levelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelToString(level),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		fmt.Fprint(l.out, formatTerminalOutput(entry))
		jsonBytes, _ := json.Marshal(entry)
		l.logFile.Write(append(jsonBytes, '\n'))
		return
	}
	fmt.Fprint(l.out, formatPlainOutput(entry))
}

func formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	var levelColor, categoryColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	case "ERROR", "FATAL":
		levelColor = color.New(color.FgRed)
		categoryColor = color.New(color.FgRed, color.Bold)
	default:
		levelColor = color.New(color.FgWhite)
		categoryColor = color.New(color.FgWhite, color.Bold)
	}

	timeStr := color.New(color.FgBlue).Sprintf("%s", timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)

	if entry.File != "" && entry.Line > 0 {
		fileInfo := color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}
	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func formatPlainOutput(entry LogEntry) string {
	return fmt.Sprintf("%s %-5s [%-10s] %s\n", entry.Timestamp[11:19], entry.Level, entry.Category, entry.Message)
}

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Component helpers

func (l *Logger) LogBooking(action, bookingID, message string) {
	l.Info("BOOKING", fmt.Sprintf("[%s] %s - %s", action, bookingID, message))
}

func (l *Logger) LogSweep(kind, message string) {
	l.Info("SWEEP", fmt.Sprintf("[%s] %s", kind, message))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.Info("API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
