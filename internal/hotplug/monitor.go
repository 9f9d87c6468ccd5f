// Package hotplug listens for udev netlink events that matter to a camera
// node: the camera module appearing or disappearing (video4linux) and
// battery / AC adapter changes (power_supply).
package hotplug

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"pitchcam/internal/logging"
)

// Kind classifies an event.
type Kind string

const (
	KindCamera Kind = "camera"
	KindPower  Kind = "power"
)

// Event is a classified udev event.
type Event struct {
	Kind   Kind
	Action string
	Device string
}

// Handler receives matched events.
type Handler func(ctx context.Context, event Event)

// Monitor wraps a udev netlink socket.
type Monitor struct {
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New creates a monitor that forwards camera and power events to handler.
func New(logger *slog.Logger, handler Handler) *Monitor {
	return &Monitor{logger: logging.NewComponentLogger(logger, "hotplug"), handler: handler}
}

// Start begins listening. Failure to open the socket is logged and is not
// fatal; the node works without hotplug notifications.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket", "hotplug_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "camera and battery changes are only seen on the next status poll"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started", logging.String(logging.FieldEventType, "hotplug_started"))
	return nil
}

// Stop shuts the monitor down. Safe to call repeatedly.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	m.logger.Info("hotplug monitor stopped", logging.String(logging.FieldEventType, "hotplug_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "hotplug_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug notifications may be missed"),
			)
		}
	}
}

// buildMatcher accepts camera add/remove and any power supply change.
func buildMatcher() netlink.Matcher {
	cameraActions := "add|remove"
	powerActions := "add|change|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &cameraActions,
		Env:    map[string]string{"SUBSYSTEM": "video4linux"},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &powerActions,
		Env:    map[string]string{"SUBSYSTEM": "power_supply"},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	event, ok := classify(uevent)
	if !ok {
		m.logger.Debug("ignoring unrelated uevent", logging.String("kobj", uevent.KObj))
		return
	}
	m.logger.Debug("hotplug event",
		logging.String("kind", string(event.Kind)),
		logging.String("action", event.Action),
		logging.String("device", event.Device),
	)
	if m.handler != nil {
		m.handler(ctx, event)
	}
}

func classify(uevent netlink.UEvent) (Event, bool) {
	event := Event{Action: string(uevent.Action), Device: deviceName(uevent)}
	switch uevent.Env["SUBSYSTEM"] {
	case "video4linux":
		event.Kind = KindCamera
	case "power_supply":
		event.Kind = KindPower
	default:
		return Event{}, false
	}
	return event, true
}

func deviceName(uevent netlink.UEvent) string {
	if name := uevent.Env["DEVNAME"]; name != "" {
		return name
	}
	if name := uevent.Env["POWER_SUPPLY_NAME"]; name != "" {
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return parts[len(parts)-1]
}
