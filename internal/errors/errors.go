// Package errors wraps errors with a component, a category and free-form
// context, and forwards them to an optional telemetry reporter.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for reporting and for callers that branch on
// the kind of failure.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryFileParsing    ErrorCategory = "file-parsing"
	CategoryNetwork        ErrorCategory = "network"
	CategoryAudio          ErrorCategory = "audio-processing"
	CategoryAudioSource    ErrorCategory = "audio-source"
	CategoryPermission     ErrorCategory = "permission"
	CategoryDevice         ErrorCategory = "audio-device"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryGeneric        ErrorCategory = "generic"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryState          ErrorCategory = "state"
	CategoryCancellation   ErrorCategory = "cancellation"
)

// Priorities accepted by ErrorBuilder.Priority.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when no registered package is on the stack.
const ComponentUnknown = "unknown"

const selfPackage = "github.com/tphakala/fretlab/internal/errors."

// EnhancedError is an error annotated by ErrorBuilder.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	component string
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }
func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, otherwise defers to the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component set by the builder or found on the
// call stack.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetCategory returns the category as a plain string.
func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

// GetContext returns a copy of the context map, or nil when it is empty.
func (ee *EnhancedError) GetContext() map[string]any {
	if len(ee.Context) == 0 {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that a reporter has sent this error.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether MarkReported has been called.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder collects annotations for an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts building an annotated copy of err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf is New(fmt.Errorf(format, args...)).
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the package that produced the error.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the reporting priority. Unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context attaches a key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = map[string]any{}
	}
	eb.context[key] = value
	return eb
}

// FileContext records the extension of filePath. The path itself is never
// stored.
func (eb *ErrorBuilder) FileContext(filePath string) *ErrorBuilder {
	if filePath == "" {
		return eb
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if ext == "" {
		ext = "none"
	}
	return eb.Context("file_extension", ext)
}

// Build returns the EnhancedError and hands it to the telemetry reporter.
// The call stack is only inspected while a reporter is installed.
func (eb *ErrorBuilder) Build() *EnhancedError {
	reporting := hasActiveReporting.Load()

	component := eb.component
	if component == "" && reporting {
		component = detectComponent()
	}
	if component == "" {
		component = ComponentUnknown
	}

	category := eb.category
	if category == "" {
		if reporting {
			category = detectCategory(eb.err, component)
		} else {
			category = CategoryGeneric
		}
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}
	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

var hasActiveReporting atomic.Bool

type componentPattern struct {
	pkg  string
	name string
}

// components maps package paths to component names, checked in order.
var components = []componentPattern{
	{"internal/pitch", "pitch"},
	{"internal/capture", "capture"},
	{"internal/scheduler", "scheduler"},
	{"internal/tuner", "tuner"},
	{"internal/tuning", "tuning"},
	{"internal/conf", "configuration"},
	{"internal/mqtt", "mqtt"},
	{"internal/api", "api"},
	{"internal/observability", "observability"},
	{"internal/analysis", "analysis"},
}

func detectComponent() string {
	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs)])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, selfPackage) {
			if name := componentOf(frame.Function); name != "" {
				return name
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func componentOf(function string) string {
	for _, c := range components {
		if strings.Contains(function, c.pkg) {
			return c.name
		}
	}
	return ""
}

var messageCategories = []struct {
	words    []string
	category ErrorCategory
}{
	{[]string{"permission", "access denied", "not allowed"}, CategoryPermission},
	{[]string{"device"}, CategoryDevice},
	{[]string{"file", "open"}, CategoryFileIO},
	{[]string{"connection", "timeout"}, CategoryNetwork},
	{[]string{"invalid", "validation"}, CategoryValidation},
}

var componentCategories = map[string]ErrorCategory{
	"capture":       CategoryAudioSource,
	"pitch":         CategoryAudio,
	"scheduler":     CategoryAudio,
	"tuner":         CategoryState,
	"api":           CategoryHTTP,
	"mqtt":          CategoryMQTTPublish,
	"configuration": CategoryConfiguration,
}

// detectCategory prefers a category carried by err, then keywords in the
// message, then the component default.
func detectCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	var categorized CategorizedError
	if stderrors.As(err, &categorized) {
		return categorized.ErrorCategory()
	}
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) && enhanced.Category != "" {
		return enhanced.Category
	}

	msg := strings.ToLower(err.Error())
	for _, mc := range messageCategories {
		for _, w := range mc.words {
			if strings.Contains(msg, w) {
				return mc.category
			}
		}
	}

	if category, ok := componentCategories[component]; ok {
		return category
	}
	return CategoryGeneric
}

// NewStd is the standard library errors.New.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhanced *EnhancedError
	return stderrors.As(err, &enhanced) && enhanced.Category == category
}
