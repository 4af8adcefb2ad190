package wake

import (
	"context"
	"time"

	"github.com/nerrad567/inkframe/internal/handler"
	"github.com/nerrad567/inkframe/internal/infrastructure/config"
	"github.com/nerrad567/inkframe/internal/infrastructure/mqtt"
	"github.com/nerrad567/inkframe/internal/power"
)

// Channel is the message channel for one cycle.
// *mqtt.Client satisfies it.
type Channel interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	ReceiveWithTimeout(ctx context.Context, timeout time.Duration) (mqtt.Delivery, bool, error)
	HasBacklog() bool
	Close() error
}

// ChannelFactory opens a durable channel session.
type ChannelFactory func(ctx context.Context) (Channel, error)

// PowerClient is the power manager. *power.Client satisfies it.
type PowerClient interface {
	BatteryLevel(ctx context.Context) (float64, error)
	RTCTime(ctx context.Context) (time.Time, error)
	SetAlarm(ctx context.Context, spec power.AlarmSpec) error
	AlarmEnabled(ctx context.Context) (bool, error)
	AlarmTime(ctx context.Context) (time.Time, error)
	ClearAlarmFlag(ctx context.Context) error
	SyncTimeFromRTC(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Dispatcher routes a message to its handler. *handler.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg handler.Message) error
}

// Recorder receives cycle telemetry. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveCycle(outcome string, duration time.Duration)
	RecordMessage(result string)
	SetBatteryLevel(level float64)
	Flush(ctx context.Context) error
}

type noopRecorder struct{}

func (noopRecorder) ObserveCycle(string, time.Duration) {}
func (noopRecorder) RecordMessage(string)               {}
func (noopRecorder) SetBatteryLevel(float64)            {}
func (noopRecorder) Flush(context.Context) error        { return nil }

// Logger defines the logging interface used by the Orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// taggedLogger prefixes every entry with fixed attributes.
type taggedLogger struct {
	next  Logger
	attrs []any
}

func (t taggedLogger) with(args []any) []any {
	out := make([]any, 0, len(t.attrs)+len(args))
	return append(append(out, t.attrs...), args...)
}

func (t taggedLogger) Debug(msg string, args ...any) { t.next.Debug(msg, t.with(args)...) }
func (t taggedLogger) Info(msg string, args ...any)  { t.next.Info(msg, t.with(args)...) }
func (t taggedLogger) Warn(msg string, args ...any)  { t.next.Warn(msg, t.with(args)...) }
func (t taggedLogger) Error(msg string, args ...any) { t.next.Error(msg, t.with(args)...) }

// RenderLedger forgets the frame recorded for a display once the panel has
// been blanked. *ledger.Store satisfies it.
type RenderLedger interface {
	Forget(ctx context.Context, displayID string) error
}

// Options are the cycle's tunables.
type Options struct {
	// WakeInterval is the time from now to the next RTC alarm.
	WakeInterval time.Duration
	// MessageWaitTimeout is how long to wait for the next message; it
	// restarts after every message.
	MessageWaitTimeout time.Duration
	// ShutdownAfterDisplay powers the device off once the alarm is set.
	ShutdownAfterDisplay bool
	// BatteryTopic receives the battery status each cycle.
	BatteryTopic string
	// AlarmRepeat is the weekday mask sent with the alarm.
	AlarmRepeat power.Weekdays
	// SyncTimeFromRTC sets the system clock from the RTC at wake.
	SyncTimeFromRTC bool
	// ClearDisplayOnExit blanks the panel when continuous mode stops.
	ClearDisplayOnExit bool
	// DisplayID keys the render ledger.
	DisplayID string
}

// OptionsFromConfig extracts the orchestrator options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WakeInterval:         cfg.GetWakeInterval(),
		MessageWaitTimeout:   cfg.GetMessageWaitTimeout(),
		ShutdownAfterDisplay: cfg.Power.ShutdownAfterDisplay,
		BatteryTopic:         cfg.Power.BatteryTopic,
		AlarmRepeat:          power.Weekdays(cfg.Power.AlarmRepeat),
		SyncTimeFromRTC:      cfg.Power.SyncTimeFromRTC,
		ClearDisplayOnExit:   cfg.Display.ClearOnExit,
		DisplayID:            cfg.Device.ID,
	}
}
