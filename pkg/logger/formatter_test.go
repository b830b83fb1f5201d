package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONFormatterRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := NewNop()
	l.logger.SetFormatter(&JSONFormatter{AppName: "medibook", Env: "test"})
	l.SetOutput(&buf)

	l.WithFields(map[string]interface{}{
		"razorpay_signature": "abc",
		"hash":               "def",
		"gateway":            "payu",
	}).Info("callback received")

	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}

	tests := map[string]string{
		"razorpay_signature": "[REDACTED]",
		"hash":               "[REDACTED]",
		"gateway":            "payu",
		"app":                "medibook",
		"env":                "test",
		"message":            "callback received",
		"level":              "info",
	}
	for key, want := range tests {
		if got, _ := out[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}
