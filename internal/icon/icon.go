// Package icon finds a model's icon under the VTube Studio asset root and
// copies it into the shared images folder under a content fingerprint name.
package icon

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 26

// fingerprintKey separates icon fingerprints from any other BLAKE3 use.
var fingerprintKey = [32]byte{
	'v', 't', 's', 'd', 'e', 'c', 'k', '.', 'i', 'c', 'o', 'n', 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Resolver implements the driver's icon lookup. It never fails: anything
// missing yields the fallback reference.
type Resolver struct {
	root      string
	imagesDir string
	fallback  string
	log       *logrus.Entry
}

// NewResolver creates a resolver. An empty root disables the lookup.
func NewResolver(root, imagesDir, fallback string) *Resolver {
	return &Resolver{
		root:      root,
		imagesDir: imagesDir,
		fallback:  fallback,
		log:       logrus.WithField("component", "icon"),
	}
}

// Resolve returns the file name of the copied icon inside the images
// folder, or the fallback.
func (r *Resolver) Resolve(fileHint, name string) string {
	log := r.log.WithField("model", name)
	if r.root == "" {
		log.Debug("No model folder known, using default icon")
		return r.fallback
	}

	dir, how := r.modelDir(fileHint, name)
	if dir == "" {
		log.WithField("root", r.root).Warn("No folder found for model, using default icon")
		return r.fallback
	}
	log = log.WithFields(logrus.Fields{"dir": dir, "matched_by": how})

	src := pickIcon(dir)
	if src == "" {
		log.Info("No image in model folder, using default icon")
		return r.fallback
	}

	ref, err := r.store(src)
	if err != nil {
		log.WithError(err).Warn("Copying icon failed, using default icon")
		return r.fallback
	}
	log.WithFields(logrus.Fields{"source": filepath.Base(src), "icon": ref}).Info("Icon resolved")
	return ref
}

// modelDir finds the folder of a model: first from the file hint, which is
// relative to the asset root, then by folder name.
func (r *Resolver) modelDir(fileHint, name string) (string, string) {
	if rel := filepath.Dir(filepath.FromSlash(fileHint)); fileHint != "" && rel != "." {
		dir := filepath.Join(r.root, rel)
		if isDir(dir) {
			return dir, "file hint"
		}
	}
	if name == "" {
		return "", ""
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		r.log.WithError(err).Warn("Cannot list model folder")
		return "", ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := e.Name()
		if strings.EqualFold(folder, name) || strings.EqualFold(trimVTSSuffix(folder), name) {
			return filepath.Join(r.root, folder), "name"
		}
	}
	return "", ""
}

func trimVTSSuffix(folder string) string {
	if len(folder) > 4 && strings.EqualFold(folder[len(folder)-4:], "_vts") {
		return folder[:len(folder)-4]
	}
	return folder
}

// pickIcon prefers icon.*, then ico_*.*, then any image, in name order.
func pickIcon(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		images = append(images, e.Name())
	}

	for _, prefix := range []string{"icon.", "ico_"} {
		for _, img := range images {
			if strings.HasPrefix(strings.ToLower(img), prefix) {
				return filepath.Join(dir, img)
			}
		}
	}
	if len(images) > 0 {
		return filepath.Join(dir, images[0])
	}
	return ""
}

// store copies src into the images folder unless an identical file is
// already there, and returns its new name.
func (r *Resolver) store(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	name := Fingerprint(data) + strings.ToLower(filepath.Ext(src))

	if err := os.MkdirAll(r.imagesDir, 0o755); err != nil {
		return "", fmt.Errorf("create images folder: %w", err)
	}
	dst := filepath.Join(r.imagesDir, name)
	if _, err := os.Stat(dst); err == nil {
		return name, nil
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write icon: %w", err)
	}
	return name, nil
}

// Fingerprint is the upper-case hex prefix of the keyed BLAKE3 digest of data.
func Fingerprint(data []byte) string {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("icon: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	sum := hasher.Sum(nil)
	return strings.ToUpper(hex.EncodeToString(sum))[:fingerprintLen]
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
