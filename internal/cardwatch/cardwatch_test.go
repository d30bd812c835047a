package cardwatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"mediapool/internal/logging"
)

func TestMonitorLifecycle(t *testing.T) {
	t.Run("stop on nil monitor is safe", func(t *testing.T) {
		var m *Monitor
		m.Stop()
	})

	t.Run("start on nil monitor is safe", func(t *testing.T) {
		var m *Monitor
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor = %v", err)
		}
	})

	t.Run("unstarted monitor is not running", func(t *testing.T) {
		m := New(logging.NewNop(), nil)
		if m.Running() {
			t.Error("expected Running() false before Start")
		}
	})

	t.Run("double stop is safe", func(t *testing.T) {
		m := New(logging.NewNop(), nil)
		m.Stop()
		m.Stop()
	})
}

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	partitionAdd := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
			"DEVNAME":   "/dev/sdb1",
		},
	}
	if !matcher.Evaluate(partitionAdd) {
		t.Error("expected matcher to accept a partition add")
	}

	diskAdd := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "disk",
			"DEVNAME":   "/dev/sdb",
		},
	}
	if matcher.Evaluate(diskAdd) {
		t.Error("expected matcher to reject a whole-disk add")
	}

	partitionRemove := netlink.UEvent{
		Action: netlink.REMOVE,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
			"DEVNAME":   "/dev/sdb1",
		},
	}
	if matcher.Evaluate(partitionRemove) {
		t.Error("expected matcher to reject a remove")
	}
}

func TestHandleEvent(t *testing.T) {
	t.Run("ignores event without device name", func(t *testing.T) {
		var called bool
		m := New(logging.NewNop(), func(ctx context.Context, ev Event) { called = true })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env:    map[string]string{},
		})
		if called {
			t.Error("handler should not run without a device name")
		}
	})

	t.Run("delivers device and label", func(t *testing.T) {
		var got Event
		m := New(logging.NewNop(), func(ctx context.Context, ev Event) { got = ev })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env: map[string]string{
				"DEVNAME":     "/dev/sdb1",
				"ID_FS_LABEL": "CANON_A7",
			},
		})
		if got.Device != "/dev/sdb1" || got.Label != "CANON_A7" {
			t.Errorf("event = %+v", got)
		}
	})

	t.Run("constructs device from DEVPATH", func(t *testing.T) {
		var got Event
		m := New(logging.NewNop(), func(ctx context.Context, ev Event) { got = ev })
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env: map[string]string{
				"DEVPATH": "/devices/platform/soc/mmc_host/mmc0/block/mmcblk0/mmcblk0p1",
			},
		})
		if got.Device != "/dev/mmcblk0p1" {
			t.Errorf("device = %q, want /dev/mmcblk0p1", got.Device)
		}
	})

	t.Run("debounces repeat events for the same device", func(t *testing.T) {
		var calls int
		m := New(logging.NewNop(), func(ctx context.Context, ev Event) { calls++ })
		ev := netlink.UEvent{
			Action: netlink.ADD,
			Env:    map[string]string{"DEVNAME": "/dev/sdb1"},
		}
		m.handleEvent(context.Background(), ev)
		m.handleEvent(context.Background(), ev)
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}

		other := netlink.UEvent{
			Action: netlink.ADD,
			Env:    map[string]string{"DEVNAME": "/dev/sdb2"},
		}
		m.handleEvent(context.Background(), other)
		if calls != 2 {
			t.Errorf("calls = %d, want 2 after a different device", calls)
		}
	})
}

func TestAwaitPath(t *testing.T) {
	t.Run("returns once path is listable", func(t *testing.T) {
		dir := t.TempDir()
		if err := AwaitPath(context.Background(), dir, 10*time.Millisecond); err != nil {
			t.Fatalf("AwaitPath on existing dir = %v", err)
		}
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		missing := filepath.Join(t.TempDir(), "never")
		if err := AwaitPath(ctx, missing, 5*time.Millisecond); err == nil {
			t.Fatal("expected context error for missing path")
		}
	})
}
