// Package power powers off the host for the shell's shutdown action.
//
// The preferred route is logind's PowerOff method over the system bus,
// which polkit normally allows for the active seat user. If that fails
// the systemd manager is asked to start poweroff.target instead.
package power

import (
	"context"
	"errors"
	"fmt"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"
)

// Supported methods.
const (
	MethodLogind  = "logind"
	MethodSystemd = "systemd"
)

const (
	logindDest     = "org.freedesktop.login1"
	logindPath     = dbus.ObjectPath("/org/freedesktop/login1")
	logindPowerOff = "org.freedesktop.login1.Manager.PowerOff"

	poweroffTarget = "poweroff.target"
)

// ErrUnknownMethod is returned for a method other than logind or systemd.
var ErrUnknownMethod = errors.New("power: unknown method")

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Controller performs the host power-off.
type Controller struct {
	method  string
	logind  func(ctx context.Context) error
	systemd func(ctx context.Context) error
	logger  Logger
}

// New returns a controller using method.
func New(method string, logger Logger) (*Controller, error) {
	switch method {
	case MethodLogind, MethodSystemd:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return &Controller{
		method:  method,
		logind:  logindPowerOffCall,
		systemd: startPoweroffTarget,
		logger:  logger,
	}, nil
}

// PowerOff asks the host to power off. With the logind method a failure
// falls back to starting poweroff.target.
func (c *Controller) PowerOff(ctx context.Context) error {
	if c.method == MethodLogind {
		err := c.logind(ctx)
		if err == nil {
			c.logInfo("host power-off requested", "method", MethodLogind)
			return nil
		}
		c.logWarn("logind power-off failed, trying systemd", "error", err)
	}

	if err := c.systemd(ctx); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	c.logInfo("host power-off requested", "method", MethodSystemd)
	return nil
}

func logindPowerOffCall(ctx context.Context) error {
	// SystemBus is shared by the process and must not be closed.
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	obj := conn.Object(logindDest, logindPath)
	// false: do not prompt interactively for authorization.
	if err := obj.CallWithContext(ctx, logindPowerOff, 0, false).Err; err != nil {
		return fmt.Errorf("logind PowerOff: %w", err)
	}
	return nil
}

func startPoweroffTarget(ctx context.Context) error {
	conn, err := sddbus.NewWithContext(ctx)
	if err != nil {
		return fmt.Errorf("connecting to systemd: %w", err)
	}
	defer conn.Close()

	// The job result never arrives once shutdown is under way, so it is
	// not waited for.
	if _, err := conn.StartUnitContext(ctx, poweroffTarget, "replace-irreversibly", nil); err != nil {
		return fmt.Errorf("starting %s: %w", poweroffTarget, err)
	}
	return nil
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
