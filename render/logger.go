package render

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger used by the renderer, including messages
// coming from the Vulkan validation layers. Pass nil to silence it again.
//
// Levels:
//   - [slog.LevelDebug]: frame statistics, verbose validation output
//   - [slog.LevelInfo]: device selection, swapchain creation
//   - [slog.LevelWarn]: validation warnings, deferred recreation
//   - [slog.LevelError]: every failure that terminates the backend
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the renderer's current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func debugSeverityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
