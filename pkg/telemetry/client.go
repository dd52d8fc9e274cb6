// Package telemetry defines the sink interfaces the SDK emits into. The
// concrete exporters (Application Insights and friends) live outside this
// module; a no-op client and an slog-backed client are provided for local
// use and tests.
package telemetry

import (
	"log/slog"
	"time"
)

// Dialog lifecycle event names.
const (
	EventWaterfallStart    = "WaterfallStart"
	EventWaterfallStep     = "WaterfallStep"
	EventWaterfallComplete = "WaterfallComplete"
	EventWaterfallCancel   = "WaterfallCancel"
)

// Well-known event property names.
const (
	PropertyDialogID   = "DialogId"
	PropertyInstanceID = "InstanceId"
	PropertyStepName   = "StepName"
)

// Client receives telemetry from the SDK.
type Client interface {
	TrackEvent(name string, properties map[string]string, measurements map[string]float64)
	TrackTrace(message string, severity int, properties map[string]string)
	TrackException(err error, properties map[string]string)
	TrackDependency(name string, target string, success bool, duration time.Duration)
	TrackAvailability(name string, success bool, duration time.Duration, message string)
	Flush()
}

// NoopClient discards all telemetry.
type NoopClient struct{}

func (NoopClient) TrackEvent(string, map[string]string, map[string]float64)        {}
func (NoopClient) TrackTrace(string, int, map[string]string)                       {}
func (NoopClient) TrackException(error, map[string]string)                         {}
func (NoopClient) TrackDependency(string, string, bool, time.Duration)             {}
func (NoopClient) TrackAvailability(string, bool, time.Duration, string)           {}
func (NoopClient) Flush()                                                          {}

// LogClient writes telemetry to a structured logger.
type LogClient struct {
	log *slog.Logger
}

// NewLogClient builds a telemetry client backed by log.
func NewLogClient(log *slog.Logger) *LogClient {
	if log == nil {
		log = slog.Default()
	}
	return &LogClient{log: log.With("component", "telemetry")}
}

func (c *LogClient) TrackEvent(name string, properties map[string]string, measurements map[string]float64) {
	c.log.Info("Telemetry event", "event", name, "properties", properties, "measurements", measurements)
}

func (c *LogClient) TrackTrace(message string, severity int, properties map[string]string) {
	c.log.Debug("Telemetry trace", "message", message, "severity", severity, "properties", properties)
}

func (c *LogClient) TrackException(err error, properties map[string]string) {
	c.log.Error("Telemetry exception", "error", err, "properties", properties)
}

func (c *LogClient) TrackDependency(name string, target string, success bool, duration time.Duration) {
	c.log.Debug("Telemetry dependency", "dependency", name, "target", target, "success", success, "duration", duration)
}

func (c *LogClient) TrackAvailability(name string, success bool, duration time.Duration, message string) {
	c.log.Debug("Telemetry availability", "name", name, "success", success, "duration", duration, "message", message)
}

func (c *LogClient) Flush() {}
