package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/syslog"
	"strings"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logrusSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

type Logger struct {
	*logrus.Logger
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r responseBodyWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func NewLogger(c *utils.Config) *Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.Papertrail != "" {
		hook, err := logrusSyslog.NewSyslogHook("udp", c.Papertrail, syslog.LOG_INFO, c.PapertrailAppName)
		if err != nil {
			log.Error("Unable to connect to Papertrail")
		} else {
			log.Hooks.Add(hook)
		}
	}

	return &Logger{
		log,
	}
}

// NewNopLogger discards everything; used by tests and tooling.
func NewNopLogger() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{log}
}

func (l *Logger) LoggingMiddleWare() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Read the request body
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = c.GetRawData()
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		var requestJson interface{}
		if err := json.Unmarshal(requestBody, &requestJson); err != nil {
			l.Log(logrus.DebugLevel, "error unmarshalling requestBody, request may not be JSON")
		}

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   statusCode,
			"duration": duration,
		}

		// Only log request body if it's small to avoid polluting logs with large payloads
		if len(requestBody) < 250 {
			fields["request"] = maskPhoneNumber(requestJson)
		}

		if statusCode >= 500 {
			fields["response"] = w.body.String()
			l.WithFields(fields).Error("Request-Response")
			return
		}

		l.WithFields(fields).Info("Request-Response")
	}
}

// maskPhoneNumber keeps only the last three digits of a top-level
// phone_number so payer MSISDNs stay out of the request log.
func maskPhoneNumber(body interface{}) interface{} {
	fields, ok := body.(map[string]interface{})
	if !ok {
		return body
	}
	phone, ok := fields["phone_number"].(string)
	if !ok {
		return body
	}
	if len(phone) > 3 {
		phone = strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
	}
	fields["phone_number"] = phone
	return fields
}
