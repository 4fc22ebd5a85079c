package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

type fakeIDs struct {
	home   string
	models map[string]string
}

func newFakeIDs() *fakeIDs {
	return &fakeIDs{home: "HOME", models: map[string]string{}}
}

func (f *fakeIDs) Home() string { return f.home }

func (f *fakeIDs) ModelID(name string) (string, error) {
	if id, ok := f.models[name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("MODEL-%d", len(f.models)+1)
	f.models[name] = id
	return id, nil
}

func testDevice() Device {
	return Device{Model: "20GBA9901", UUID: "293V3", Grid: grid5x3}
}

func readManifest(t *testing.T, dir string) Manifest {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func hotkeys(n int) []protocol.Hotkey {
	out := make([]protocol.Hotkey, n)
	for i := range out {
		out[i] = protocol.Hotkey{HotkeyID: fmt.Sprintf("hk-%02d", i), Name: fmt.Sprintf("Hotkey %d", i), Type: "ToggleExpression"}
	}
	return out
}

func newTestGenerator(t *testing.T, ids IDSource) (*Generator, string) {
	t.Helper()
	out := t.TempDir()
	images := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(images, "vts_logo.png"), []byte("logo"), 0o644))

	g, err := NewGenerator(Options{
		Device:    testDevice(),
		OutputDir: out,
		ImagesDir: images,
		Endpoint:  "ws://192.168.1.5:9001",
	}, ids)
	require.NoError(t, err)
	return g, out
}

func TestGenerateModelProfile(t *testing.T) {
	ids := newFakeIDs()
	g, out := newTestGenerator(t, ids)

	entry := domain.Entry{
		Model:   protocol.Model{ModelID: "m1", ModelName: "Hiyori"},
		Icon:    "ABCDEF.png",
		Hotkeys: hotkeys(20),
	}
	bundle, err := g.Generate([]domain.Entry{entry})
	require.NoError(t, err)

	root := filepath.Join(out, "MODEL-1.sdProfile")
	require.Equal(t, []string{root}, bundle.Profiles)
	assert.FileExists(t, filepath.Join(root, "Images", "vts_logo.png"))

	m := readManifest(t, root)
	assert.Equal(t, "MODEL-1", m.ProfileUUID)
	assert.Equal(t, "Hiyori", m.Name)
	assert.Equal(t, "20GBA9901", m.DeviceModel)
	require.NotNil(t, m.Pages)
	require.Len(t, m.Pages.Pages, 2)
	assert.Equal(t, m.Pages.Pages[0], m.Pages.Current)

	first := readManifest(t, filepath.Join(root, "profiles", m.Pages.Pages[0]))
	second := readManifest(t, filepath.Join(root, "profiles", m.Pages.Pages[1]))
	assert.FileExists(t, filepath.Join(root, "profiles", m.Pages.Pages[0], "Images", "vts_logo.png"))

	sw := first.Actions["0,0"]
	assert.Equal(t, ActionLoadModel, sw.UUID)
	assert.Equal(t, "m1", sw.Settings["selectModelID"])
	assert.Equal(t, "192.168.1.5", sw.Settings["ip"])
	assert.Equal(t, "9001", sw.Settings["port"])
	assert.Equal(t, "Images/ABCDEF.png", sw.States[0].Image)

	home := first.Actions["0,2"]
	assert.Equal(t, ActionOpenProfile, home.UUID)
	assert.Equal(t, "HOME", home.Settings["ProfileUUID"])

	assert.Equal(t, ActionNextPage, first.Actions["4,0"].UUID)
	assert.Equal(t, ActionPrevPage, second.Actions["0,0"].UUID)
	assert.NotContains(t, second.Actions, "4,0")

	seen := map[string]bool{}
	for _, page := range []Manifest{first, second} {
		for _, a := range page.Actions {
			if a.UUID == ActionHotkey {
				seen[a.Settings["selectHotKeyID"].(string)] = true
				assert.Equal(t, "m1", a.Settings["selectModelID"])
			}
		}
	}
	assert.Len(t, seen, 20, "every hotkey gets a button")
	assert.Equal(t, 15, len(first.Actions))
}

func TestGenerateHomeProfile(t *testing.T) {
	ids := newFakeIDs()
	g, out := newTestGenerator(t, ids)

	entries := []domain.Entry{
		{Model: protocol.Model{ModelID: "m1", ModelName: "Hiyori"}, Icon: "A.png", Hotkeys: hotkeys(1)},
		domain.Placeholder(protocol.Model{ModelID: "m2", ModelName: "Mao"}, domain.DefaultIcon, nil),
	}
	bundle, err := g.Generate(entries)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "HOME.sdProfile"), bundle.Home)
	m := readManifest(t, bundle.Home)
	assert.Equal(t, "Home", m.Name)
	assert.Equal(t, "HOME", m.ProfileUUID)
	require.Len(t, m.Pages.Pages, 1)

	page := readManifest(t, filepath.Join(bundle.Home, "profiles", m.Pages.Pages[0]))
	assert.Equal(t, "Home-1", page.Name)
	require.Len(t, page.Actions, 2)
	assert.Equal(t, "MODEL-1", page.Actions["0,0"].Settings["ProfileUUID"])
	assert.Equal(t, "Hiyori", page.Actions["0,0"].Name)
	assert.Equal(t, "MODEL-2", page.Actions["0,2"].Settings["ProfileUUID"])
	assert.Equal(t, "Images/default.png", page.Actions["0,2"].States[0].Image)
}

func TestGenerateSkipsDuplicateNames(t *testing.T) {
	g, _ := newTestGenerator(t, newFakeIDs())

	bundle, err := g.Generate([]domain.Entry{
		{Model: protocol.Model{ModelID: "m1", ModelName: "Twin"}},
		{Model: protocol.Model{ModelID: "m2", ModelName: "Twin"}},
	})
	require.NoError(t, err)
	assert.Len(t, bundle.Profiles, 1)
}

func TestGenerateReplacesOnlyProfileFolders(t *testing.T) {
	g, out := newTestGenerator(t, newFakeIDs())
	stale := filepath.Join(out, "STALE.sdProfile")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	keep := filepath.Join(out, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))

	_, err := g.Generate([]domain.Entry{{Model: protocol.Model{ModelID: "m1", ModelName: "A"}}})
	require.NoError(t, err)

	assert.NoDirExists(t, stale)
	assert.FileExists(t, keep)
}

func TestGenerateRequiresModels(t *testing.T) {
	g, _ := newTestGenerator(t, newFakeIDs())
	_, err := g.Generate(nil)
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestRemoteAddress(t *testing.T) {
	host, port := remoteAddress("ws://localhost:8001")
	assert.Equal(t, "localhost", host)
	assert.Equal(t, "8001", port)

	host, port = remoteAddress("")
	assert.Equal(t, DefaultHost, host)
	assert.Equal(t, DefaultPort, port)
}

func TestImageRef(t *testing.T) {
	assert.Equal(t, "Images/A.png", imageRef("A.png"))
	assert.Equal(t, "Images/sub/A.png", imageRef("Images/sub/A.png"))
	assert.Equal(t, ImageLogo, imageRef(""))
}

func TestInstall(t *testing.T) {
	g, out := newTestGenerator(t, newFakeIDs())
	_, err := g.Generate([]domain.Entry{{Model: protocol.Model{ModelID: "m1", ModelName: "A"}}})
	require.NoError(t, err)

	installDir := filepath.Join(t.TempDir(), "profiles")
	stale := filepath.Join(installDir, "MODEL-1.sdProfile", "old.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	installed, err := Install(out, installDir)
	require.NoError(t, err)

	assert.Len(t, installed, 2)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(installDir, "MODEL-1.sdProfile", "manifest.json"))
	assert.FileExists(t, filepath.Join(installDir, "HOME.sdProfile", "manifest.json"))
}

func TestInstallMissingOutput(t *testing.T) {
	_, err := Install(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.Error(t, err)
}
