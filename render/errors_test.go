package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{fatalInit("create instance", 0, errors.New("boom")), KindFatalInit},
		{exhausted("allocate memory", 0, errors.New("boom")), KindResourceExhausted},
		{frameFailure("submit", 0, errors.New("boom")), KindFatalFrame},
		{misuse("transition", "bad %s", "layout"), KindMisuse},
		{errors.Wrap(misuse("transition", "bad"), "upload"), KindMisuse},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, test := range tests {
		if got := KindOf(test.err); got != test.want {
			t.Errorf("KindOf(%v) = %s, want %s", test.err, got, test.want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}
	if !IsFatal(fatalInit("create device", 0, errors.New("boom"))) {
		t.Error("init failure should be fatal")
	}
	if IsFatal(&Error{Kind: KindTransientPresent, Op: "present"}) {
		t.Error("transient present should not be fatal")
	}
}

func TestErrorMessage(t *testing.T) {
	err := fatalInit("create swapchain", core1_0.VKErrorInitializationFailed, errors.New("driver said no"))

	msg := err.Error()
	for _, part := range []string{"create swapchain", "fatal-init", "driver said no"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q is missing %q", msg, part)
		}
	}

	var renderErr *Error
	if !errors.As(err, &renderErr) {
		t.Fatal("errors.As did not find *Error")
	}
	if renderErr.Result != core1_0.VKErrorInitializationFailed {
		t.Errorf("result = %v", renderErr.Result)
	}

	// The stack trace is attached for %+v.
	if detailed := fmt.Sprintf("%+v", err); !strings.Contains(detailed, "errors_test.go") {
		t.Errorf("no stack trace in %q", detailed)
	}
}

func TestErrorsAreLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	SetLogger(slog.New(slog.NewTextHandler(buf, nil)))
	defer SetLogger(nil)

	_ = exhausted("allocate image memory", 0, errors.New("out of device memory"))

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "allocate image memory") {
		t.Errorf("log output %q", out)
	}
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger() returned nil")
	}
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("default logger should discard everything")
	}
}

func TestDebugSeverityLevel(t *testing.T) {
	tests := []struct {
		severity ext_debug_utils.DebugUtilsMessageSeverityFlags
		want     slog.Level
	}{
		{ext_debug_utils.SeverityError, slog.LevelError},
		{ext_debug_utils.SeverityWarning, slog.LevelWarn},
		{ext_debug_utils.SeverityInfo, slog.LevelInfo},
		{ext_debug_utils.SeverityError | ext_debug_utils.SeverityInfo, slog.LevelError},
		{ext_debug_utils.SeverityVerbose, slog.LevelDebug},
		{0, slog.LevelDebug},
	}
	for _, test := range tests {
		if got := debugSeverityLevel(test.severity); got != test.want {
			t.Errorf("severity %v: level %v, want %v", test.severity, got, test.want)
		}
	}
}

func TestDebugMessengerSubscribesToAllSeverities(t *testing.T) {
	options := (&DeviceContext{}).debugMessengerOptions()

	for _, severity := range []ext_debug_utils.DebugUtilsMessageSeverityFlags{
		ext_debug_utils.SeverityError,
		ext_debug_utils.SeverityWarning,
		ext_debug_utils.SeverityInfo,
		ext_debug_utils.SeverityVerbose,
	} {
		if options.MessageSeverity&severity == 0 {
			t.Errorf("messenger does not receive %v messages", severity)
		}
	}
}
