package logger

import (
	"encoding/json"
	"log"
	"time"
)

// Level represents the severity of a log entry
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger writes structured JSON log lines for one component.
type Logger struct {
	Component string
}

// Entry is a single structured log line. ClientID and RequestID tie log
// lines back to the request that produced them.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	ClientID  string         `json:"client_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func New(component string) *Logger {
	return &Logger{Component: component}
}

func (l *Logger) Log(level Level, clientID, requestID, message string, fields map[string]any) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		ClientID:  clientID,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		// Fall back to plain text if marshaling fails
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(b))
}

func (l *Logger) Debug(clientID, requestID, message string, fields map[string]any) {
	l.Log(DEBUG, clientID, requestID, message, fields)
}

func (l *Logger) Info(clientID, requestID, message string, fields map[string]any) {
	l.Log(INFO, clientID, requestID, message, fields)
}

func (l *Logger) Warn(clientID, requestID, message string, fields map[string]any) {
	l.Log(WARN, clientID, requestID, message, fields)
}

func (l *Logger) Error(clientID, requestID, message string, fields map[string]any) {
	l.Log(ERROR, clientID, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field.
func (l *Logger) InfoWithDuration(clientID, requestID, message string, durationMS float64, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["duration_ms"] = durationMS
	l.Info(clientID, requestID, message, fields)
}
