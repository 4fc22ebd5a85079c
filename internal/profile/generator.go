// Package profile turns an enumeration result into StreamDock profile
// folders: one profile per model with its hotkeys, and a paginated home
// profile that opens them.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jiuai233/StreamDeck/internal/domain"
)

const profileSuffix = ".sdProfile"

// Defaults for the remote address written into plugin buttons.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "8001"
)

// ErrNoModels means there is nothing to generate.
var ErrNoModels = errors.New("no models to generate profiles for")

// Device identifies the target hardware.
type Device struct {
	Model string `mapstructure:"model"`
	UUID  string `mapstructure:"uuid"`
	Grid  `mapstructure:",squash"`
}

// IDSource hands out stable profile ids. *idmap.Store implements it.
type IDSource interface {
	Home() string
	ModelID(name string) (string, error)
}

// Options configures a Generator.
type Options struct {
	Device    Device
	OutputDir string
	// ImagesDir is copied into every profile and page folder. It may be missing.
	ImagesDir string
	// Endpoint is the VTube Studio address the device plugin should use.
	Endpoint string
}

// Bundle describes the generated folders.
type Bundle struct {
	Dir      string
	Home     string
	Profiles []string
	Pages    int
}

// Generator writes profile folders.
type Generator struct {
	opts Options
	ids  IDSource
	host string
	port string
	log  *logrus.Entry
}

// NewGenerator validates the device layout and creates a generator.
func NewGenerator(opts Options, ids IDSource) (*Generator, error) {
	if err := opts.Device.Grid.Validate(); err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	host, port := remoteAddress(opts.Endpoint)
	return &Generator{
		opts: opts,
		ids:  ids,
		host: host,
		port: port,
		log:  logrus.WithFields(logrus.Fields{"component": "profile", "output": opts.OutputDir}),
	}, nil
}

// Generate replaces every profile folder in the output directory with
// freshly generated ones for entries. Models that share a display name
// share one profile id, so only the first of them is written.
func (g *Generator) Generate(entries []domain.Entry) (*Bundle, error) {
	if len(entries) == 0 {
		return nil, ErrNoModels
	}
	if err := g.clean(); err != nil {
		return nil, err
	}

	bundle := &Bundle{Dir: g.opts.OutputDir}
	var models []domain.Entry
	profileIDs := make(map[string]string, len(entries))

	for _, e := range entries {
		name := e.Model.ModelName
		if _, dup := profileIDs[name]; dup {
			g.log.WithFields(logrus.Fields{"model": name, "model_id": e.Model.ModelID}).
				Warn("Another model has the same name, skipping its profile")
			continue
		}
		id, err := g.ids.ModelID(name)
		if err != nil {
			return nil, fmt.Errorf("profile id for %q: %w", name, err)
		}
		profileIDs[name] = id
		models = append(models, e)

		dir, pages, err := g.writeModelProfile(e, id)
		if err != nil {
			return nil, fmt.Errorf("generate profile for %q: %w", name, err)
		}
		bundle.Profiles = append(bundle.Profiles, dir)
		bundle.Pages += pages
	}

	home, pages, err := g.writeHomeProfile(models, profileIDs)
	if err != nil {
		return nil, fmt.Errorf("generate home profile: %w", err)
	}
	bundle.Home = home
	bundle.Pages += pages

	g.log.WithFields(logrus.Fields{
		"profiles": len(bundle.Profiles) + 1,
		"pages":    bundle.Pages,
	}).Info("Profiles generated")
	return bundle, nil
}

// clean removes previously generated profile folders and nothing else.
func (g *Generator) clean() error {
	if err := os.MkdirAll(g.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	entries, err := os.ReadDir(g.opts.OutputDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), profileSuffix) {
			if err := os.RemoveAll(filepath.Join(g.opts.OutputDir, e.Name())); err != nil {
				return fmt.Errorf("remove old profile %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func (g *Generator) writeModelProfile(e domain.Entry, profileID string) (string, int, error) {
	grid := g.opts.Device.Grid
	root := filepath.Join(g.opts.OutputDir, profileID+profileSuffix)
	if err := g.makeFolder(root, true); err != nil {
		return "", 0, err
	}

	icon := imageRef(e.Icon)
	sizes := grid.Paginate(len(e.Hotkeys), 2)
	pageIDs := make([]string, 0, len(sizes))
	offset := 0

	for p, size := range sizes {
		first, last := p == 0, p == len(sizes)-1
		acts := g.navigation(first, last)
		slots := grid.Usable(first, last)

		if first {
			home := grid.Home()
			slots = without(slots, home)
			acts[slots[0]] = newButton(icon, "Switch Model", ActionLoadModel, map[string]any{
				"ip":            g.host,
				"port":          g.port,
				"selectModelID": e.Model.ModelID,
				"showTitle":     true,
			}, true)
			acts[home] = openProfileButton(ImageLogo, "Back to Home", g.ids.Home())
			slots = slots[1:]
		}

		for i, hk := range e.Hotkeys[offset : offset+size] {
			acts[slots[i]] = newButton(icon, hk.Label(), ActionHotkey, map[string]any{
				"ip":               g.host,
				"port":             g.port,
				"selectModelID":    e.Model.ModelID,
				"selectHotKeyID":   hk.HotkeyID,
				"selectHotKeyName": hk.Name,
				"showTitle":        true,
			}, true)
		}
		offset += size

		pageID, err := g.writePage(root, e.Model.ModelName, acts)
		if err != nil {
			return "", 0, err
		}
		pageIDs = append(pageIDs, pageID)
	}

	if err := writeManifest(root, g.rootManifest(e.Model.ModelName, profileID, pageIDs)); err != nil {
		return "", 0, err
	}
	g.log.WithFields(logrus.Fields{
		"model":   e.Model.ModelName,
		"hotkeys": len(e.Hotkeys),
		"pages":   len(pageIDs),
	}).Debug("Model profile written")
	return root, len(pageIDs), nil
}

func (g *Generator) writeHomeProfile(models []domain.Entry, profileIDs map[string]string) (string, int, error) {
	grid := g.opts.Device.Grid
	homeID := g.ids.Home()
	root := filepath.Join(g.opts.OutputDir, homeID+profileSuffix)
	if err := g.makeFolder(root, true); err != nil {
		return "", 0, err
	}

	sizes := grid.Paginate(len(models), 0)
	pageIDs := make([]string, 0, len(sizes))
	offset := 0

	for p, size := range sizes {
		first, last := p == 0, p == len(sizes)-1
		acts := g.navigation(first, last)
		slots := grid.Usable(first, last)

		for i, e := range models[offset : offset+size] {
			acts[slots[i]] = openProfileButton(imageRef(e.Icon), e.Model.ModelName, profileIDs[e.Model.ModelName])
		}
		offset += size

		pageID, err := g.writePage(root, fmt.Sprintf("Home-%d", p+1), acts)
		if err != nil {
			return "", 0, err
		}
		pageIDs = append(pageIDs, pageID)
	}

	if err := writeManifest(root, g.rootManifest("Home", homeID, pageIDs)); err != nil {
		return "", 0, err
	}
	g.log.WithFields(logrus.Fields{"models": len(models), "pages": len(pageIDs)}).Debug("Home profile written")
	return root, len(pageIDs), nil
}

func (g *Generator) navigation(first, last bool) map[string]Action {
	acts := map[string]Action{}
	grid := g.opts.Device.Grid
	if !first {
		acts[grid.Prev()] = newButton(ImagePrev, "Previous", ActionPrevPage, nil, false)
	}
	if !last {
		acts[grid.Next()] = newButton(ImageNext, "Next", ActionNextPage, nil, false)
	}
	return acts
}

func (g *Generator) writePage(root, name string, acts map[string]Action) (string, error) {
	pageID := newPageID()
	dir := filepath.Join(root, "profiles", pageID)
	if err := g.makeFolder(dir, false); err != nil {
		return "", err
	}
	err := writeManifest(dir, Manifest{
		DeviceModel: g.opts.Device.Model,
		DeviceUUID:  g.opts.Device.UUID,
		Name:        name,
		Version:     manifestVersion,
		Actions:     acts,
	})
	return pageID, err
}

func (g *Generator) rootManifest(name, profileID string, pageIDs []string) Manifest {
	current := ""
	if len(pageIDs) > 0 {
		current = pageIDs[0]
	}
	return Manifest{
		DeviceModel: g.opts.Device.Model,
		DeviceUUID:  g.opts.Device.UUID,
		Name:        name,
		Version:     manifestVersion,
		Actions:     map[string]Action{},
		Pages:       &Pages{Current: current, Pages: pageIDs},
		ProfileUUID: profileID,
	}
}

// makeFolder creates dir with its Images folder, and a profiles folder for
// profile roots.
func (g *Generator) makeFolder(dir string, withPages bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if withPages {
		if err := os.MkdirAll(filepath.Join(dir, "profiles"), 0o755); err != nil {
			return err
		}
	}
	images := filepath.Join(dir, "Images")
	if g.opts.ImagesDir != "" {
		if info, err := os.Stat(g.opts.ImagesDir); err == nil && info.IsDir() {
			return copyTree(g.opts.ImagesDir, images)
		}
	}
	return os.MkdirAll(images, 0o755)
}

// remoteAddress extracts host and port from a websocket URL for the
// device plugin settings.
func remoteAddress(endpoint string) (string, string) {
	host, port := DefaultHost, DefaultPort
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return host, port
	}
	if h := u.Hostname(); h != "" {
		host = h
	}
	if p := u.Port(); p != "" {
		port = p
	}
	return host, port
}
