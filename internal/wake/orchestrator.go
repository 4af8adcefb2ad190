package wake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/inkframe/internal/display"
	"github.com/nerrad567/inkframe/internal/handler"
	"github.com/nerrad567/inkframe/internal/infrastructure/metrics"
	"github.com/nerrad567/inkframe/internal/infrastructure/mqtt"
	"github.com/nerrad567/inkframe/internal/mode"
	"github.com/nerrad567/inkframe/internal/power"
)

const (
	// batteryQoS is the QoS of the battery status publish.
	batteryQoS = 1

	// cleanupTimeout bounds display and metrics work after the cycle's
	// context may already be cancelled.
	cleanupTimeout = 10 * time.Second
)

// BatteryStatus is published once per cycle.
type BatteryStatus struct {
	Level     float64   `json:"battery_level"`
	Timestamp time.Time `json:"timestamp"`
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Channels ChannelFactory
	Power    PowerClient
	Registry Dispatcher
	Display  display.Display
	State    *mode.State
	// Ledger, when set, is told when the panel is blanked on exit.
	Ledger   RenderLedger
	Recorder Recorder
	Logger   Logger
}

// Orchestrator runs wake cycles and the continuous receive loop.
//
// A cycle is strictly ordered: report battery, drain commands, check mode,
// set and confirm the next alarm, release the channel, shut down. Shutdown is
// never issued without a confirmed alarm.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger Logger
	now    func() time.Time

	activeMu sync.Mutex
	active   Channel
}

// New creates an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger, now: time.Now}
}

// RunCycle runs one wake cycle and reports how it ended.
//
// The returned error explains the abnormal outcomes
// (AbortedChannelUnavailable, AbortedNoAlarm, ShutdownFailed); it is nil for
// the others.
func (o *Orchestrator) RunCycle(ctx context.Context) (outcome Outcome, err error) {
	start := o.now()
	log := taggedLogger{next: o.logger, attrs: []any{"cycle_id", uuid.NewString()}}

	recorded := false
	finish := func(out Outcome) {
		if recorded {
			return
		}
		recorded = true
		o.deps.Recorder.ObserveCycle(string(out), o.now().Sub(start))
	}
	defer func() {
		finish(outcome)
		log.Info("wake cycle finished", "outcome", outcome, "duration", o.now().Sub(start).String())
	}()

	log.Info("wake cycle started", "mode", o.deps.State.Mode().String())
	o.housekeeping(ctx, log)

	ch, err := o.deps.Channels(ctx)
	if err != nil {
		log.Error("message channel unavailable, leaving device powered", "error", err)
		return AbortedChannelUnavailable, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	release := o.releaser(ch, log)
	defer release()

	o.reportBattery(ctx, ch, log)

	handled := o.drain(ctx, ch, log)
	log.Debug("message wait finished", "handled", handled)

	if ctx.Err() != nil {
		return Interrupted, nil
	}

	if o.deps.State.IsContinuous() {
		release()
		log.Info("continuous mode requested, skipping alarm and shutdown")
		return SwitchedToContinuous, nil
	}

	alarm, err := o.armAlarm(ctx, log)
	if err != nil {
		release()
		log.Error("next wake not confirmed, refusing to shut down", "error", err)
		return AbortedNoAlarm, err
	}
	log.Info("next wake alarm set", "alarm", alarm.String())

	release()

	if !o.opts.ShutdownAfterDisplay {
		log.Info("shutdown disabled, staying powered")
		return AlarmSet, nil
	}

	o.prepareForPowerOff(ctx, log)

	// Counted ahead of the push; nothing runs after a successful shutdown.
	o.deps.Recorder.ObserveCycle(string(ShutdownPending), o.now().Sub(start))

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if ferr := o.deps.Recorder.Flush(cctx); ferr != nil {
		log.Warn("failed to push metrics", "error", ferr)
	}

	log.Info("shutting down")
	if err := o.deps.Power.Shutdown(cctx); err != nil {
		log.Error("shutdown failed", "error", err)
		return ShutdownFailed, err
	}
	recorded = true
	return ShutdownIssued, nil
}

// RunContinuous receives and dispatches commands until ctx is cancelled,
// then releases the channel and puts the display to sleep.
func (o *Orchestrator) RunContinuous(ctx context.Context) error {
	ch, err := o.deps.Channels(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	release := o.releaser(ch, o.logger)
	defer o.shutdownDisplay(ctx)
	defer release()

	o.logger.Info("continuous mode: listening for commands")
	for {
		d, ok, err := ch.ReceiveWithTimeout(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				o.logger.Info("continuous mode stopping")
				return nil
			}
			return fmt.Errorf("receiving: %w", err)
		}
		if !ok {
			continue
		}
		o.handleDelivery(ctx, ch, d, o.logger)
	}
}

// housekeeping clears the alarm flag so the next alarm can fire and
// optionally syncs the clock. Both are best-effort.
func (o *Orchestrator) housekeeping(ctx context.Context, log Logger) {
	if err := o.deps.Power.ClearAlarmFlag(ctx); err != nil {
		log.Warn("failed to clear RTC alarm flag", "error", err)
	}
	if o.opts.SyncTimeFromRTC {
		if err := o.deps.Power.SyncTimeFromRTC(ctx); err != nil {
			log.Warn("failed to sync system time from RTC", "error", err)
		}
	}
}

// ChannelConnected reports whether a channel is open and connected.
func (o *Orchestrator) ChannelConnected() bool {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()

	if o.active == nil {
		return false
	}
	if c, ok := o.active.(interface{ HealthCheck(context.Context) error }); ok {
		return c.HealthCheck(context.Background()) == nil
	}
	return true
}

func (o *Orchestrator) setActive(ch Channel) {
	o.activeMu.Lock()
	o.active = ch
	o.activeMu.Unlock()
}

// releaser marks ch active and returns an idempotent close for it.
func (o *Orchestrator) releaser(ch Channel, log Logger) func() {
	o.setActive(ch)
	var once sync.Once
	return func() {
		once.Do(func() {
			o.setActive(nil)
			if err := ch.Close(); err != nil {
				log.Warn("error closing message channel", "error", err)
			}
		})
	}
}

// reportBattery publishes the battery level. Failures are logged only.
func (o *Orchestrator) reportBattery(ctx context.Context, ch Channel, log Logger) {
	level, err := o.deps.Power.BatteryLevel(ctx)
	if err != nil {
		log.Warn("failed to read battery level", "error", err)
		return
	}
	o.deps.Recorder.SetBatteryLevel(level)

	payload, err := json.Marshal(BatteryStatus{Level: level, Timestamp: o.now()})
	if err != nil {
		log.Warn("failed to encode battery status", "error", err)
		return
	}
	if err := ch.Publish(o.opts.BatteryTopic, payload, batteryQoS, false); err != nil {
		log.Warn("failed to publish battery status", "topic", o.opts.BatteryTopic, "error", err)
		return
	}
	log.Info("battery status published", "level", level)
}

// drain handles deliveries until the wait times out, the resumed session's
// backlog has been flushed, or ctx is cancelled.
func (o *Orchestrator) drain(ctx context.Context, ch Channel, log Logger) int {
	handled := 0
	sawBacklog := false

	for {
		d, ok, err := ch.ReceiveWithTimeout(ctx, o.opts.MessageWaitTimeout)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("message channel receive failed", "error", err)
			}
			return handled
		}
		if !ok {
			log.Debug("no message within wait timeout", "timeout", o.opts.MessageWaitTimeout.String())
			return handled
		}

		sawBacklog = sawBacklog || d.Backlog
		o.handleDelivery(ctx, ch, d, log)
		handled++

		if sawBacklog && !ch.HasBacklog() {
			log.Debug("queued messages drained")
			return handled
		}
	}
}

// handleDelivery parses, dispatches and acknowledges one delivery. A
// delivery whose handler was cut short by cancellation is left unacked so
// the broker redelivers it.
func (o *Orchestrator) handleDelivery(ctx context.Context, ch Channel, d mqtt.Delivery, log Logger) {
	msg, err := handler.ParseMessage(d.Payload)
	if err != nil {
		log.Warn("dropping invalid message", "topic", d.Topic, "error", err)
		o.deps.Recorder.RecordMessage(metrics.MessageInvalid)
		d.Ack()
		return
	}

	log.Info("message received", "action", msg.Action, "backlog", d.Backlog, "duplicate", d.Duplicate)
	err = o.deps.Registry.Dispatch(handler.ContextWithPublisher(ctx, ch), msg)

	switch {
	case err == nil:
		o.deps.Recorder.RecordMessage(metrics.MessageHandled)
	case errors.Is(err, handler.ErrUnroutable):
		o.deps.Recorder.RecordMessage(metrics.MessageUnroutable)
	case ctx.Err() != nil:
		log.Warn("message interrupted, leaving for redelivery", "action", msg.Action)
		return
	default:
		log.Warn("message handling failed", "action", msg.Action, "error", err)
		o.deps.Recorder.RecordMessage(metrics.MessageFailed)
	}
	d.Ack()
}

// armAlarm sets the next RTC alarm from the RTC's own clock and confirms it.
func (o *Orchestrator) armAlarm(ctx context.Context, log Logger) (power.AlarmSpec, error) {
	rtcNow, err := o.deps.Power.RTCTime(ctx)
	if err != nil {
		return power.AlarmSpec{}, fmt.Errorf("reading RTC time: %w", err)
	}

	spec := power.NextAlarm(rtcNow, o.opts.WakeInterval)
	if o.opts.AlarmRepeat != 0 {
		spec.Repeat = o.opts.AlarmRepeat
	}
	log.Debug("setting alarm", "rtc_time", rtcNow.Format(time.RFC3339), "alarm", spec.String())

	if err := o.deps.Power.SetAlarm(ctx, spec); err != nil {
		return spec, fmt.Errorf("setting alarm: %w", err)
	}

	enabled, err := o.deps.Power.AlarmEnabled(ctx)
	if err != nil {
		return spec, fmt.Errorf("confirming alarm: %w", err)
	}
	if !enabled {
		return spec, power.ErrAlarmNotConfirmed
	}

	stored, err := o.deps.Power.AlarmTime(ctx)
	switch {
	case err != nil:
		log.Warn("could not read back stored alarm", "error", err)
	case !spec.Matches(stored):
		log.Warn("stored alarm differs from requested",
			"requested", spec.String(),
			"stored", stored.Format("15:04:05-07:00"))
	}
	return spec, nil
}

// prepareForPowerOff puts the panel to sleep. Best-effort.
func (o *Orchestrator) prepareForPowerOff(ctx context.Context, log Logger) {
	if o.deps.Display == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := o.deps.Display.Sleep(cctx); err != nil && !errors.Is(err, display.ErrNotInitialized) {
		log.Warn("display sleep failed", "error", err)
	}
}

// shutdownDisplay optionally clears the panel and puts it to sleep after
// continuous mode ends.
func (o *Orchestrator) shutdownDisplay(ctx context.Context) {
	if o.deps.Display == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if o.opts.ClearDisplayOnExit {
		if err := o.deps.Display.Init(cctx); err != nil {
			o.logger.Warn("display init failed", "error", err)
			return
		}
		if err := o.deps.Display.Clear(cctx); err != nil {
			o.logger.Warn("display clear failed", "error", err)
		} else if o.deps.Ledger != nil {
			if err := o.deps.Ledger.Forget(cctx, o.opts.DisplayID); err != nil {
				o.logger.Warn("failed to clear render record", "error", err)
			}
		}
	}
	if err := o.deps.Display.Sleep(cctx); err != nil && !errors.Is(err, display.ErrNotInitialized) {
		o.logger.Warn("display sleep failed", "error", err)
	}
}
