package syncer_test

import (
	"errors"
	"path/filepath"
	"testing"

	"mediapool/internal/services"
	"mediapool/internal/syncer"
	"mediapool/internal/testsupport"
)

func TestBuildTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	destMedia := filepath.Join(base, "ALICE_T7", "MEDIA_POOL")
	destProxy := filepath.Join(base, "ALICE_T7", "PROXY_POOL")

	cases := []struct {
		name string
		mode syncer.Mode
		want []syncer.Task
	}{
		{
			name: "media user",
			mode: syncer.ModeMediaUser,
			want: []syncer.Task{{
				Label: syncer.LabelMediaUser,
				Src:   filepath.Join(cfg.Paths.MediaPoolRoot, "ALICE"),
				Dst:   filepath.Join(destMedia, "ALICE"),
			}},
		},
		{
			name: "proxy user",
			mode: syncer.ModeProxyUser,
			want: []syncer.Task{{
				Label: syncer.LabelProxyUser,
				Src:   filepath.Join(cfg.Paths.ProxyPoolRoot, "ALICE"),
				Dst:   filepath.Join(destProxy, "ALICE"),
			}},
		},
		{
			name: "both pools",
			mode: syncer.ModeBothUser,
			want: []syncer.Task{
				{
					Label: syncer.LabelMediaUser,
					Src:   filepath.Join(cfg.Paths.MediaPoolRoot, "ALICE"),
					Dst:   filepath.Join(destMedia, "ALICE"),
				},
				{
					Label: syncer.LabelProxyUser,
					Src:   filepath.Join(cfg.Paths.ProxyPoolRoot, "ALICE"),
					Dst:   filepath.Join(destProxy, "ALICE"),
				},
			},
		},
		{
			name: "all media",
			mode: syncer.ModeAllMedia,
			want: []syncer.Task{{Label: syncer.LabelMediaAll, Src: cfg.Paths.MediaPoolRoot, Dst: destMedia}},
		},
		{
			name: "all proxy",
			mode: syncer.ModeAllProxy,
			want: []syncer.Task{{Label: syncer.LabelProxyAll, Src: cfg.Paths.ProxyPoolRoot, Dst: destProxy}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tasks, err := syncer.BuildTasks(cfg, "ALICE", tc.mode)
			if err != nil {
				t.Fatalf("BuildTasks: %v", err)
			}
			if len(tasks) != len(tc.want) {
				t.Fatalf("got %d tasks, want %d: %+v", len(tasks), len(tc.want), tasks)
			}
			for i := range tasks {
				if tasks[i] != tc.want[i] {
					t.Fatalf("task %d = %+v, want %+v", i, tasks[i], tc.want[i])
				}
			}
		})
	}
}

func TestBuildTasksErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	// NOAH has no destination drive configured.
	_, err := syncer.BuildTasks(cfg, "NOAH", syncer.ModeMediaUser)
	if !errors.Is(err, services.ErrConfigMissing) {
		t.Fatalf("BuildTasks without dest root = %v, want config-missing error", err)
	}

	_, err = syncer.BuildTasks(cfg, "ALICE", syncer.Mode(0))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("BuildTasks with bad mode = %v, want validation error", err)
	}
}

func TestTopRootAndLockRoots(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)

	tasks, err := syncer.BuildTasks(cfg, "ALICE", syncer.ModeBothUser)
	if err != nil {
		t.Fatalf("BuildTasks: %v", err)
	}
	if got := tasks[0].TopRoot(); got != filepath.Join(base, "ALICE_T7", "MEDIA_POOL") {
		t.Fatalf("media TopRoot = %q", got)
	}

	roots := syncer.LockRoots(tasks)
	if len(roots) != 2 {
		t.Fatalf("expected 2 lock roots for both-pools mode, got %v", roots)
	}

	all, err := syncer.BuildTasks(cfg, "ALICE", syncer.ModeAllMedia)
	if err != nil {
		t.Fatalf("BuildTasks: %v", err)
	}
	// Whole-pool mirrors lock the destination itself.
	if got := all[0].TopRoot(); got != all[0].Dst {
		t.Fatalf("all-media TopRoot = %q, want %q", got, all[0].Dst)
	}
}
