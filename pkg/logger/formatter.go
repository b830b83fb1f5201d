package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// redactedFields never reach the log output in clear text. Gateway
// callbacks carry signatures and hashes that must not be replayable from
// logs.
var redactedFields = map[string]bool{
	"razorpay_signature": true,
	"signature":          true,
	"hash":               true,
	"salt":               true,
	"key_secret":         true,
	"authorization":      true,
	"password":           true,
}

type JSONFormatter struct {
	TimestampFormat string
	AppName         string
	Env             string
}

func (f *JSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Data)+6)
	for k, v := range entry.Data {
		if redactedFields[strings.ToLower(k)] {
			data[k] = "[REDACTED]"
			continue
		}
		if err, ok := v.(error); ok {
			data[k] = err.Error()
			continue
		}
		data[k] = v
	}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}
	data["timestamp"] = entry.Time.Format(timestampFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if f.AppName != "" {
		data["app"] = f.AppName
	}
	if f.Env != "" {
		data["env"] = f.Env
	}
	if entry.HasCaller() {
		data["caller"] = fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
	}

	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(serialized, '\n'), nil
}
