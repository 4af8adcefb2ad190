package wake

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/nerrad567/inkframe/internal/handler"
	"github.com/nerrad567/inkframe/internal/infrastructure/mqtt"
	"github.com/nerrad567/inkframe/internal/ledger"
	"github.com/nerrad567/inkframe/internal/power"
	"github.com/nerrad567/inkframe/internal/render"
)

// eventLog records calls across fakes so tests can assert ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) has(e string) bool {
	return l.index(e) >= 0
}

func (l *eventLog) index(e string) int {
	for i, got := range l.all() {
		if got == e {
			return i
		}
	}
	return -1
}

type published struct {
	topic   string
	payload []byte
}

// fakeChannel serves queued deliveries. When the queue is empty it reports
// a timeout, or blocks until ctx is cancelled when block is set.
type fakeChannel struct {
	log   *eventLog
	block bool

	mu         sync.Mutex
	queue      []mqtt.Delivery
	acks       []string
	published  []published
	publishErr error
	closes     int
}

func (c *fakeChannel) enqueue(payload string, backlog bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := mqtt.NewDelivery("inkframe/command", []byte(payload), backlog, func() {
		c.mu.Lock()
		c.acks = append(c.acks, payload)
		c.mu.Unlock()
	})
	c.queue = append(c.queue, d)
}

func (c *fakeChannel) Publish(topic string, payload []byte, _ byte, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.add("publish:" + topic)
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{topic, payload})
	return nil
}

func (c *fakeChannel) ReceiveWithTimeout(ctx context.Context, _ time.Duration) (mqtt.Delivery, bool, error) {
	c.mu.Lock()
	if len(c.queue) > 0 {
		d := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		return d, true, nil
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return mqtt.Delivery{}, false, err
	}
	if !c.block {
		return mqtt.Delivery{}, false, nil
	}
	<-ctx.Done()
	return mqtt.Delivery{}, false, ctx.Err()
}

// HasBacklog is true while the next queued delivery is a backlog one.
func (c *fakeChannel) HasBacklog() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0 && c.queue[0].Backlog
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.log.add("channel:close")
	return nil
}

func (c *fakeChannel) ackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acks)
}

// fakePower is a scripted power manager.
type fakePower struct {
	log *eventLog

	battery      float64
	batteryErr   error
	rtc          time.Time
	rtcErr       error
	setErr       error
	enabled      bool
	enabledErr   error
	alarmTimeErr error
	shutdownErr  error

	mu     sync.Mutex
	alarms []power.AlarmSpec
}

func newFakePower(log *eventLog) *fakePower {
	return &fakePower{
		log:     log,
		battery: 87.5,
		rtc:     time.Date(2026, 3, 1, 23, 50, 0, 0, time.FixedZone("", 8*3600)),
		enabled: true,
	}
}

func (p *fakePower) BatteryLevel(context.Context) (float64, error) {
	p.log.add("power:battery")
	return p.battery, p.batteryErr
}

func (p *fakePower) RTCTime(context.Context) (time.Time, error) {
	p.log.add("power:rtc_time")
	return p.rtc, p.rtcErr
}

func (p *fakePower) SetAlarm(_ context.Context, spec power.AlarmSpec) error {
	p.log.add("power:set_alarm")
	if p.setErr != nil {
		return p.setErr
	}
	p.mu.Lock()
	p.alarms = append(p.alarms, spec)
	p.mu.Unlock()
	return nil
}

func (p *fakePower) AlarmEnabled(context.Context) (bool, error) {
	p.log.add("power:alarm_enabled")
	return p.enabled, p.enabledErr
}

// AlarmTime reads back the last alarm set, as the RTC stores it.
func (p *fakePower) AlarmTime(context.Context) (time.Time, error) {
	p.log.add("power:alarm_time")
	if p.alarmTimeErr != nil {
		return time.Time{}, p.alarmTimeErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.alarms) == 0 {
		return time.Time{}, errors.New("no alarm stored")
	}
	last := p.alarms[len(p.alarms)-1]
	return time.Parse(time.RFC3339, "2000-01-01T"+last.TimeOfDay+last.Timezone)
}

func (p *fakePower) ClearAlarmFlag(context.Context) error {
	p.log.add("power:clear_flag")
	return nil
}

func (p *fakePower) SyncTimeFromRTC(context.Context) error {
	p.log.add("power:sync_time")
	return errors.New("rtc2pi unsupported")
}

func (p *fakePower) Shutdown(context.Context) error {
	p.log.add("power:shutdown")
	return p.shutdownErr
}

// actionHandler records the actions it handles.
type actionHandler struct {
	log    *eventLog
	action string
	err    error
}

func (h *actionHandler) Name() string               { return "test:" + h.action }
func (h *actionHandler) Accepts(action string) bool { return action == h.action }

func (h *actionHandler) Handle(ctx context.Context, data map[string]any) error {
	h.log.add("handle:" + h.action + ":" + stringOf(data["n"]))
	if _, ok := handler.PublisherFromContext(ctx); !ok {
		return errors.New("no publisher in context")
	}
	return h.err
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// fakeRecorder counts telemetry.
type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	messages map[string]int
	battery  float64
	flushes  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{messages: map[string]int{}}
}

func (r *fakeRecorder) ObserveCycle(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) RecordMessage(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[result]++
}

func (r *fakeRecorder) SetBatteryLevel(level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battery = level
}

func (r *fakeRecorder) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// memLedger is an in-memory render ledger.
type memLedger struct {
	mu      sync.Mutex
	current map[string]string
	forgets int
}

func newMemLedger() *memLedger {
	return &memLedger{current: map[string]string{}}
}

func (l *memLedger) IsShowing(_ context.Context, displayID, digest string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current[displayID] == digest, nil
}

func (l *memLedger) Record(_ context.Context, r *ledger.Render) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current[r.DisplayID] = r.ContentDigest
	return nil
}

func (l *memLedger) Forget(_ context.Context, displayID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.current, displayID)
	l.forgets++
	return nil
}

// urlPreparer renders a fixed frame whose digest is derived from the URL.
type urlPreparer struct{}

func (urlPreparer) Prepare(_ context.Context, req render.Request, w, h int) (render.Result, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.Black)
	return render.Result{Image: img, Digest: "digest:" + req.URL, Format: "png"}, nil
}
