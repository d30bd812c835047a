package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mediapool/internal/mediaindex"
)

// CardProbe reports the current dailies card snapshot.
type CardProbe struct {
	Present bool
	Path    string
	Files   int
	Bytes   int64
}

// ProbeCard checks whether a card is readable at the configured path and
// sizes up its contents.
func ProbeCard(path string) CardProbe {
	probe := CardProbe{Path: path}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return probe
	}
	files, err := mediaindex.ListFiles(path)
	if err != nil {
		return probe
	}
	probe.Present = true
	probe.Files = len(files)
	probe.Bytes = mediaindex.TotalSize(files)
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p CardProbe) Detail() string {
	if !p.Present {
		return fmt.Sprintf("no card at %s", p.Path)
	}
	return fmt.Sprintf("%d files, %s at %s", p.Files, humanize.IBytes(uint64(p.Bytes)), p.Path)
}

var lsblkPair = regexp.MustCompile(`([A-Z_]+)="([^"]*)"`)

// PartitionProbe describes a block partition as lsblk sees it.
type PartitionProbe struct {
	Detected bool
	Device   string
	Label    string
	FSType   string
}

// ProbePartition asks lsblk about a freshly inserted partition so the watch
// command can name what appeared.
func ProbePartition(device string) PartitionProbe {
	device = strings.TrimSpace(device)
	probe := PartitionProbe{Device: device}
	if device == "" {
		return probe
	}
	if _, err := exec.LookPath("lsblk"); err != nil {
		return probe
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "lsblk", "-P", "-o", "LABEL,FSTYPE", device).Output()
	if err != nil {
		return probe
	}
	text := strings.TrimSpace(string(output))
	if text == "" {
		return probe
	}
	probe.Detected = true
	for _, m := range lsblkPair.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case "LABEL":
			probe.Label = m[2]
		case "FSTYPE":
			probe.FSType = strings.ToLower(m[2])
		}
	}
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p PartitionProbe) Detail() string {
	if !p.Detected {
		return fmt.Sprintf("no partition info for %s", p.Device)
	}
	label := p.Label
	if label == "" {
		label = "unlabeled"
	}
	if p.FSType != "" {
		return fmt.Sprintf("%s (%s, %s)", p.Device, label, p.FSType)
	}
	return fmt.Sprintf("%s (%s)", p.Device, label)
}
