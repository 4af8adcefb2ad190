package power

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReplyTimeout = time.Second

	// maxReplyLines bounds how much unrelated output is skipped while
	// looking for the reply key.
	maxReplyLines = 32
)

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// CommandRunner runs an OS command. Replaced in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Client talks to the PiSugar power manager (pisugar-server) over its
// line-oriented text protocol.
//
// Every command uses a fresh connection: write "<command>\n", then read lines
// until one starts with "<key>:". The server may emit unrelated lines first
// (for example the battery model before "battery: 98.37").
//
// Thread Safety:
//   - Methods are safe for concurrent use; each opens its own connection.
type Client struct {
	network string
	address string

	dialTimeout  time.Duration
	replyTimeout time.Duration

	shutdownCommand []string
	run             CommandRunner

	logger Logger
}

// New creates a Client for the configured transport.
//
// Parameters:
//   - cfg: Power section of the configuration
//
// Returns:
//   - *Client: Ready to use; no connection is made until the first command
//   - error: If the transport is unknown
func New(cfg config.PowerConfig) (*Client, error) {
	network, address, err := endpoint(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		network:         network,
		address:         address,
		dialTimeout:     millis(cfg.DialTimeout, defaultDialTimeout),
		replyTimeout:    millis(cfg.ReplyTimeout, defaultReplyTimeout),
		shutdownCommand: cfg.ShutdownCommand,
		run:             execRunner,
		logger:          noopLogger{},
	}
	return c, nil
}

// endpoint resolves the dial network and address from config.
func endpoint(cfg config.PowerConfig) (network, address string, err error) {
	switch cfg.Transport {
	case "unix":
		if cfg.SocketPath == "" {
			return "", "", fmt.Errorf("power: unix transport needs a socket path")
		}
		return "unix", cfg.SocketPath, nil
	case "tcp", "":
		host := cfg.TCPHost
		if host == "" {
			host = "127.0.0.1"
		}
		port := cfg.TCPPort
		if port == 0 {
			port = 8423
		}
		return "tcp", net.JoinHostPort(host, strconv.Itoa(port)), nil
	default:
		return "", "", fmt.Errorf("power: unsupported transport %q (use tcp or unix)", cfg.Transport)
	}
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// SetLogger sets the logger. nil restores the no-op logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetCommandRunner replaces the OS command runner used by Shutdown.
func (c *Client) SetCommandRunner(run CommandRunner) {
	c.run = run
}

// Endpoint returns the dial target, e.g. "tcp://127.0.0.1:8423".
func (c *Client) Endpoint() string {
	return c.network + "://" + c.address
}

// BatteryLevel returns the battery charge in percent (0-100).
func (c *Client) BatteryLevel(ctx context.Context) (float64, error) {
	value, err := c.query(ctx, "get battery", "battery")
	if err != nil {
		return 0, err
	}

	level, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
	if err != nil || level < 0 || level > 100 {
		return 0, malformed("battery", value)
	}
	return level, nil
}

// RTCTime returns the RTC's current time in the RTC's own UTC offset.
func (c *Client) RTCTime(ctx context.Context) (time.Time, error) {
	value, err := c.query(ctx, "get rtc_time", "rtc_time")
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, malformed("rtc_time", value)
	}
	return t, nil
}

// SetAlarm writes the RTC wake alarm. Confirm with AlarmEnabled.
func (c *Client) SetAlarm(ctx context.Context, spec AlarmSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	c.logger.Info("setting rtc alarm", "alarm", spec.String())
	_, err := c.query(ctx, spec.command(), "rtc_alarm_set")
	return err
}

// AlarmEnabled reports whether the RTC alarm is armed.
func (c *Client) AlarmEnabled(ctx context.Context) (bool, error) {
	value, err := c.query(ctx, "get rtc_alarm_enabled", "rtc_alarm_enabled")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(value) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, malformed("rtc_alarm_enabled", value)
	}
}

// AlarmTime returns the stored alarm. Only the time of day and offset are
// meaningful; the date is always 2000-01-01.
func (c *Client) AlarmTime(ctx context.Context) (time.Time, error) {
	value, err := c.query(ctx, "get rtc_alarm_time", "rtc_alarm_time")
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, malformed("rtc_alarm_time", value)
	}
	return t, nil
}

// ClearAlarmFlag clears the RTC alarm flag. The next alarm does not fire
// until the flag raised by the previous one is cleared.
func (c *Client) ClearAlarmFlag(ctx context.Context) error {
	_, err := c.query(ctx, "rtc_clear_flag", "rtc_clear_flag")
	return err
}

// SyncTimeFromRTC sets the system clock from the battery-backed RTC.
func (c *Client) SyncTimeFromRTC(ctx context.Context) error {
	_, err := c.query(ctx, "rtc_rtc2pi", "rtc_rtc2pi")
	return err
}

// Shutdown runs the configured OS shutdown command.
func (c *Client) Shutdown(ctx context.Context) error {
	if len(c.shutdownCommand) == 0 {
		return fmt.Errorf("%w: no shutdown command configured", ErrShutdownFailed)
	}

	c.logger.Info("issuing system shutdown", "command", strings.Join(c.shutdownCommand, " "))
	out, err := c.run(ctx, c.shutdownCommand[0], c.shutdownCommand[1:]...)
	if err != nil {
		return fmt.Errorf("%w: %w: %s", ErrShutdownFailed, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// query sends one command and returns the trimmed value after "<key>:".
func (c *Client) query(ctx context.Context, command, key string) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, c.network, c.address)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %w", ErrPowerUnavailable, c.Endpoint(), err)
	}
	defer conn.Close()

	// Reply deadline: the shorter of the reply timeout and ctx.
	deadline := time.Now().Add(c.replyTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: set deadline: %w", ErrPowerUnavailable, err)
	}

	c.logger.Debug("power command", "command", command)

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("%w: write %q: %w", ErrPowerUnavailable, command, err)
	}

	prefix := key + ":"
	scanner := bufio.NewScanner(conn)
	for lines := 0; lines < maxReplyLines && scanner.Scan(); lines++ {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}

		value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		lower := strings.ToLower(value)
		if strings.Contains(lower, "error") || strings.Contains(lower, "invalid") {
			return "", malformed(key, value)
		}
		c.logger.Debug("power reply", "command", command, "value", value)
		return value, nil
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: reading reply to %q: %w", ErrPowerUnavailable, command, err)
	}
	return "", fmt.Errorf("%w: %w: no %q line in reply to %q", ErrPowerUnavailable, ErrMalformedReply, key, command)
}

func malformed(key, value string) error {
	return fmt.Errorf("%w: %w: %s: %q", ErrPowerUnavailable, ErrMalformedReply, key, value)
}
