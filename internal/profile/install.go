package profile

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// DefaultInstallDir is where the StreamDock software looks for profiles.
func DefaultInstallDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "AppData", "Roaming", "HotSpot", "StreamDock", "profiles"), nil
}

// Install mirrors every profile folder of outputDir into installDir,
// replacing folders of the same name. It keeps going after a failed folder
// and returns every failure together.
func Install(outputDir, installDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return nil, fmt.Errorf("create install directory: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{"component": "profile", "install_dir": installDir})
	var installed []string
	var result *multierror.Error

	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), profileSuffix) {
			continue
		}
		target := filepath.Join(installDir, e.Name())
		if err := os.RemoveAll(target); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", target, err))
			continue
		}
		if err := copyTree(filepath.Join(outputDir, e.Name()), target); err != nil {
			result = multierror.Append(result, fmt.Errorf("copy %s: %w", e.Name(), err))
			continue
		}
		installed = append(installed, target)
		log.WithField("profile", e.Name()).Debug("Profile installed")
	}

	if len(installed) > 0 {
		log.WithField("profiles", len(installed)).Info("Profiles installed")
	}
	return installed, result.ErrorOrNil()
}

// copyTree copies the regular files and folders under src into dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
