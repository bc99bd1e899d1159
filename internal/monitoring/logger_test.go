package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	Logf("sample accepted: %s %.1f", "geotag", 7500.0)

	if len(got) != 1 || !strings.Contains(got[0], "geotag 7500.0") {
		t.Errorf("captured logs = %v", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("dropped %d", 3)
}

func TestEnableDebug(t *testing.T) {
	defer SetLogger(nil)

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	Debugf("hidden")
	if len(got) != 0 {
		t.Fatalf("Debugf logged before EnableDebug: %v", got)
	}

	EnableDebug()
	Debugf("pair %d", 7)
	if len(got) != 1 || !strings.HasPrefix(got[0], "[debug] pair 7") {
		t.Errorf("captured logs = %v", got)
	}
}
