package syncer

import (
	"fmt"
	"path/filepath"
	"strings"

	"mediapool/internal/config"
	"mediapool/internal/services"
)

// Mode selects which pool pairs a run covers.
type Mode int

const (
	// ModeMediaUser mirrors one user's media pool directory.
	ModeMediaUser Mode = iota + 1
	// ModeProxyUser mirrors one user's proxy pool directory.
	ModeProxyUser
	// ModeBothUser mirrors both of the user's pool directories.
	ModeBothUser
	// ModeAllMedia mirrors the entire media pool to the user's drive.
	ModeAllMedia
	// ModeAllProxy mirrors the entire proxy pool to the user's drive.
	ModeAllProxy
)

// Task labels, embedded in lock scopes and transcript names.
const (
	LabelMediaUser = "MEDIA_user"
	LabelProxyUser = "PROXY_user"
	LabelMediaAll  = "MEDIA_all"
	LabelProxyAll  = "PROXY_all"
)

// Task is one source-to-destination pool pair.
type Task struct {
	Label string
	Src   string
	Dst   string
}

// TopRoot returns the pool root a task locks and reports under: the
// destination itself for whole-pool mirrors, its parent for per-user ones.
func (t Task) TopRoot() string {
	if strings.HasSuffix(t.Label, "_all") {
		return t.Dst
	}
	return filepath.Dir(t.Dst)
}

// BuildTasks expands a mode selection into concrete pool pairs targeting the
// user's destination drive.
func BuildTasks(cfg *config.Config, user string, mode Mode) ([]Task, error) {
	switch mode {
	case ModeMediaUser, ModeProxyUser, ModeBothUser, ModeAllMedia, ModeAllProxy:
	default:
		return nil, services.Wrap(services.ErrValidation, "syncer", "tasks",
			fmt.Sprintf("unknown sync mode %d", mode), nil)
	}
	destMedia, destProxy, err := cfg.DestinationRoots(user)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	if mode == ModeMediaUser || mode == ModeBothUser {
		tasks = append(tasks, Task{
			Label: LabelMediaUser,
			Src:   cfg.MediaPoolUser(user),
			Dst:   filepath.Join(destMedia, user),
		})
	}
	if mode == ModeProxyUser || mode == ModeBothUser {
		tasks = append(tasks, Task{
			Label: LabelProxyUser,
			Src:   cfg.ProxyPoolUser(user),
			Dst:   filepath.Join(destProxy, user),
		})
	}
	if mode == ModeAllMedia {
		tasks = append(tasks, Task{Label: LabelMediaAll, Src: cfg.Paths.MediaPoolRoot, Dst: destMedia})
	}
	if mode == ModeAllProxy {
		tasks = append(tasks, Task{Label: LabelProxyAll, Src: cfg.Paths.ProxyPoolRoot, Dst: destProxy})
	}
	return tasks, nil
}

// LockRoots returns the deduplicated top roots the tasks need locked, in task
// order.
func LockRoots(tasks []Task) []string {
	var roots []string
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		top := t.TopRoot()
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		roots = append(roots, top)
	}
	return roots
}
