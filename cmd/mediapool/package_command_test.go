package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPackageCopiesNewFolders(t *testing.T) {
	env := setupCLIEnv(t)
	alice := filepath.Join(env.proxyRoot, "alice")
	seedFile(t, filepath.Join(alice, "GRAD_FILM", "scene1.mp4"), "proxy-one")
	seedFile(t, filepath.Join(alice, "docs", "cut.mp4"), "proxy-two")

	out, _, err := runCLI(t, []string{"package", "--user", "alice", "--mode", "cp", "--yes"}, env.configPath, "")
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	requireContains(t, out, "New folders (2):")
	requireContains(t, out, "docs")
	requireContains(t, out, "GRAD_FILM")
	requireContains(t, out, "Bucket: "+todayBin("01"))
	requireContains(t, out, "Sent 2 of 2 folders into")
	requireContains(t, out, "Share the request link: https://files.example.com/request/alice")

	bucket := filepath.Join(alice, "_sent", todayBin("01"))
	for _, rel := range []string{"GRAD_FILM/scene1.mp4", "docs/cut.mp4"} {
		if _, err := os.Stat(filepath.Join(bucket, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("expected %s in bucket: %v", rel, err)
		}
	}

	// Second run finds everything already sent.
	out, _, err = runCLI(t, []string{"package", "--user", "alice", "--mode", "cp", "--yes"}, env.configPath, "")
	if err != nil {
		t.Fatalf("package rerun: %v", err)
	}
	requireContains(t, out, "Already sent: docs, GRAD_FILM")
	requireContains(t, out, "Nothing to package; every proxy folder is already in a sent bucket.")
}

func TestPackageHardlinkDefaultScripted(t *testing.T) {
	env := setupCLIEnv(t)
	alice := filepath.Join(env.proxyRoot, "alice")
	src := filepath.Join(alice, "SHORT", "clip.mp4")
	seedFile(t, src, "proxy-bytes")

	out, _, err := runCLI(t, []string{"package", "--user", "alice", "--yes"}, env.configPath, "")
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	requireContains(t, out, "Sent 1 of 1 folders")

	linked := filepath.Join(alice, "_sent", todayBin("01"), "SHORT", "clip.mp4")
	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatalf("stat source: %v", err)
	}
	linkedInfo, err := os.Stat(linked)
	if err != nil {
		t.Fatalf("stat linked: %v", err)
	}
	if !os.SameFile(srcInfo, linkedInfo) {
		t.Fatal("expected hardlinked file to share the source inode")
	}
}

func TestPackageNoProxyFolder(t *testing.T) {
	env := setupCLIEnv(t)

	_, _, err := runCLI(t, []string{"package", "--user", "alice", "--yes"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected error when the proxy folder does not exist")
	}
	requireContains(t, err.Error(), "not found")
}

func TestPackageRejectsUnknownMode(t *testing.T) {
	env := setupCLIEnv(t)
	seedFile(t, filepath.Join(env.proxyRoot, "alice", "SHORT", "clip.mp4"), "proxy")

	_, _, err := runCLI(t, []string{"package", "--user", "alice", "--mode", "teleport", "--yes"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected error for unknown transfer mode")
	}
	requireContains(t, err.Error(), "unknown transfer mode")
}
