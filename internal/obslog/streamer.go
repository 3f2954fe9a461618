// Package obslog adapts the teacher's Better Stack log streamer into a
// product-agnostic upload sink: JSON lines to a local file in development,
// one POST per entry with a bearer token in production.
package obslog

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NoticeLevel is a custom zap level for informational logs below Debug.
const NoticeLevel zapcore.Level = -2

type entry struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	JobID      string         `json:"job_id"`
	Component  string         `json:"component"`
	Attributes map[string]any `json:"attributes"`
}

// Streamer ships process-level log entries to a local file (dev) or an
// external upload endpoint (prod), while always echoing to the wrapped
// zap.Logger for console visibility.
type Streamer struct {
	uploadURL   string
	uploadToken string
	environment string
	logger      *zap.Logger
	client      *http.Client
	fileWriter  io.Writer
	fileMu      sync.Mutex
}

// New creates a Streamer for the given process name's log file.
func New(environment, uploadURL, uploadToken, fileName string, logger *zap.Logger) *Streamer {
	s := &Streamer{
		uploadURL:   uploadURL,
		uploadToken: uploadToken,
		environment: environment,
		logger:      logger,
	}

	if environment != "production" {
		f, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Error("failed to open log file", zap.Error(err))
			s.fileWriter = os.Stderr
		} else {
			s.fileWriter = f
		}
		return s
	}

	s.client = &http.Client{Timeout: 10 * time.Second}
	return s
}

// Log records one structured entry tagged with a job id (correlation id per
// spec.md §7) and a component name (e.g. "engine", "dispatcher").
func (s *Streamer) Log(level zapcore.Level, jobID, component, message string, attrs map[string]any) {
	if attrs == nil {
		attrs = make(map[string]any)
	}

	e := entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      levelString(level),
		Message:    message,
		JobID:      jobID,
		Component:  component,
		Attributes: attrs,
	}

	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("failed to marshal log entry", zap.Error(err))
		return
	}

	if s.environment != "production" {
		s.fileMu.Lock()
		defer s.fileMu.Unlock()
		if _, err := s.fileWriter.Write(append(body, '\n')); err != nil {
			s.logger.Error("failed to write log to file", zap.Error(err))
		}
	} else if s.uploadURL != "" {
		s.upload(body)
	}

	s.logger.Log(level, message, zap.Any("attributes", attrs), zap.String("job_id", jobID))
}

func (s *Streamer) upload(body []byte) {
	req, err := http.NewRequest(http.MethodPost, s.uploadURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("failed to build log upload request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.uploadToken)

	go func() {
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Error("failed to upload log entry", zap.Error(err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			s.logger.Error("unexpected response from log upload endpoint", zap.String("status", resp.Status))
		}
	}()
}

func levelString(level zapcore.Level) string {
	switch level {
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.InfoLevel:
		return "INFO"
	case NoticeLevel:
		return "NOTICE"
	case zapcore.DebugLevel:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}
