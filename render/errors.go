package render

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
)

// ErrorKind classifies renderer failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindFatalInit covers instance, device, swapchain, pipeline and sync object creation.
	KindFatalInit
	// KindTransientPresent is an out-of-date or suboptimal surface. It is
	// recovered inside DrawFrame and never returned to callers.
	KindTransientPresent
	// KindResourceExhausted covers buffer, image and memory allocation.
	KindResourceExhausted
	// KindMisuse is a programming error, such as an unsupported layout transition.
	KindMisuse
	// KindFatalFrame is a failed record, submit or present.
	KindFatalFrame
)

func (k ErrorKind) String() string {
	switch k {
	case KindFatalInit:
		return "fatal-init"
	case KindTransientPresent:
		return "transient-present"
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindMisuse:
		return "misuse"
	case KindFatalFrame:
		return "fatal-frame"
	}
	return "unknown"
}

// Error is the single error type produced by the renderer. Result holds the
// Vulkan status code when the failure came from a Vulkan call.
type Error struct {
	Kind   ErrorKind
	Op     string
	Result common.VkResult
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (result %v): %v", e.Op, e.Kind, e.Result, e.Err)
	}
	return fmt.Sprintf("%s: %s (result %v)", e.Op, e.Kind, e.Result)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var renderErr *Error
	if errors.As(err, &renderErr) {
		return renderErr.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must terminate the render backend.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) != KindTransientPresent
}

// ErrWindowClosed is returned while waiting for a usable drawable size if the
// window starts closing instead.
var ErrWindowClosed = errors.New("window closed")

func newError(kind ErrorKind, op string, res common.VkResult, err error) error {
	Logger().Error("renderer failure",
		"op", op,
		"kind", kind.String(),
		"result", res,
		"error", err)
	return errors.WithStackDepth(&Error{Kind: kind, Op: op, Result: res, Err: err}, 2)
}

func fatalInit(op string, res common.VkResult, err error) error {
	return newError(KindFatalInit, op, res, err)
}

func exhausted(op string, res common.VkResult, err error) error {
	return newError(KindResourceExhausted, op, res, err)
}

func frameFailure(op string, res common.VkResult, err error) error {
	return newError(KindFatalFrame, op, res, err)
}

func misuse(op string, format string, args ...interface{}) error {
	return newError(KindMisuse, op, 0, errors.Newf(format, args...))
}
