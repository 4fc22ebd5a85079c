// Package discovery locates the VTube Studio model folder on this machine.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

// EnvModelRoot overrides discovery when set.
const EnvModelRoot = "VTS_LIVE2D_ROOT"

// ErrNotFound means no override was given and no running VTube Studio
// exposed a model folder.
var ErrNotFound = errors.New("VTube Studio model folder not found, start VTube Studio or set " + EnvModelRoot)

// Process is the part of a process table entry discovery looks at.
type Process struct {
	Name string
	Exe  string
}

// Lister returns the running processes.
type Lister func(ctx context.Context) ([]Process, error)

// modelSubdir is where VTube Studio keeps models relative to its executable.
var modelSubdir = filepath.Join("VTube Studio_Data", "StreamingAssets", "Live2DModels")

// Finder resolves the model folder from an override or the process table.
type Finder struct {
	override string
	list     Lister
	log      *logrus.Entry
}

// NewFinder creates a finder. A nil lister reads the real process table.
func NewFinder(override string, list Lister) *Finder {
	if list == nil {
		list = SystemProcesses
	}
	return &Finder{
		override: override,
		list:     list,
		log:      logrus.WithField("component", "discovery"),
	}
}

// ModelRoot returns the model folder.
func (f *Finder) ModelRoot(ctx context.Context) (string, error) {
	if f.override != "" {
		if !isDir(f.override) {
			return "", fmt.Errorf("model folder override %q is not a directory", f.override)
		}
		f.log.WithField("root", f.override).Info("Using configured model folder")
		return f.override, nil
	}

	procs, err := f.list(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		if p.Exe == "" || !strings.Contains(strings.ToLower(p.Name), "vtube") {
			continue
		}
		root := filepath.Join(filepath.Dir(p.Exe), modelSubdir)
		if !isDir(root) {
			f.log.WithField("exe", p.Exe).Debug("VTube Studio process has no model folder")
			continue
		}
		f.log.WithFields(logrus.Fields{
			"process": p.Name,
			"root":    root,
			"models":  countDirs(root),
		}).Info("Found running VTube Studio")
		return root, nil
	}
	return "", ErrNotFound
}

// SystemProcesses reads the process table with gopsutil. Processes that
// vanish or deny access while being inspected are left out.
func SystemProcesses(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		exe, err := p.ExeWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, Process{Name: name, Exe: exe})
	}
	return out, nil
}

func countDirs(path string) int {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
