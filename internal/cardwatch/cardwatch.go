// Package cardwatch listens for udev netlink events and reports when a
// memory card (any removable block partition) is plugged in. This avoids
// polling the dailies roll path while nothing is inserted.
package cardwatch

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"mediapool/internal/logging"
)

// debounceWindow suppresses repeat add events for the same partition, which
// some readers emit while the kernel settles the device.
const debounceWindow = 2 * time.Second

// Event describes an inserted card partition.
type Event struct {
	Device string // /dev/sdb1, /dev/mmcblk0p1
	Label  string // filesystem label when udev reports one
}

// Handler receives insertion events from the monitor goroutine.
type Handler func(ctx context.Context, ev Event)

// Monitor watches the udev netlink socket for partition add events.
type Monitor struct {
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	seen    map[string]time.Time
}

// New creates a card insertion monitor.
func New(logger *slog.Logger, handler Handler) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "cardwatch"),
		handler: handler,
		seen:    make(map[string]time.Time),
	}
}

// Start begins listening for udev netlink events. A socket that cannot be
// opened is a warning, not an error; insertion detection simply stays off.
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
		m.logger.Warn("failed to connect to netlink socket; card detection unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "run on Linux with permission to open netlink sockets"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("card monitor started",
		logging.String(logging.FieldEventType, "cardwatch_started"))
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("card monitor stopped",
		logging.String(logging.FieldEventType, "cardwatch_stopped"))
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

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

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
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"))
		}
	}
}

// buildMatcher matches freshly added block partitions. Whole disks are
// skipped; it is the partition's filesystem the pipeline mounts and reads.
func buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := deviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj))
		return
	}

	if m.suppressed(devname, time.Now()) {
		m.logger.Debug("ignoring repeat event", logging.String("device", devname))
		return
	}

	ev := Event{Device: devname, Label: uevent.Env["ID_FS_LABEL"]}
	m.logger.Info("card partition detected",
		logging.String(logging.FieldEventType, "card_detected"),
		logging.String("device", ev.Device),
		logging.String("label", ev.Label))

	if m.handler != nil {
		m.handler(ctx, ev)
	}
}

// suppressed records the sighting and reports whether the same device fired
// within the debounce window.
func (m *Monitor) suppressed(device string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.seen[device]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	m.seen[device] = now
	return false
}

func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}

// AwaitPath polls until the path lists successfully, the card's filesystem
// having been mounted by the desktop or an fstab rule, or the context ends.
func AwaitPath(ctx context.Context, path string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := os.ReadDir(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
