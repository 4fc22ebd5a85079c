package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Action UUIDs understood by the StreamDock software and the VTube Studio plugin.
const (
	ActionPrevPage    = "com.hotspot.streamdock.page.previous"
	ActionNextPage    = "com.hotspot.streamdock.page.next"
	ActionOpenProfile = "com.hotspot.streamdock.profile.rotate"
	ActionLoadModel   = "com.mirabox.streamdock.VtubeStudio.action1"
	ActionHotkey      = "com.mirabox.streamdock.VtubeStudio.action2"
)

// Button images shipped in the images folder.
const (
	ImagePrev = "Images/btn_previousPage.png"
	ImageNext = "Images/btn_nextPage.png"
	ImageLogo = "Images/vts_logo.png"
)

const manifestVersion = "1.0"

// State is one visual state of a button.
type State struct {
	Image          string `json:"Image"`
	Title          string `json:"Title,omitempty"`
	TitleAlignment string `json:"TitleAlignment,omitempty"`
	FontSize       int    `json:"FontSize,omitempty"`
	FontStyle      string `json:"FontStyle,omitempty"`
}

// Action is a button bound to a key.
type Action struct {
	ActionID   string         `json:"ActionID"`
	Controller string         `json:"Controller"`
	Name       string         `json:"Name"`
	Settings   map[string]any `json:"Settings"`
	State      int            `json:"State"`
	States     []State        `json:"States"`
	UUID       string         `json:"UUID"`
}

// Pages lists the page folders of a profile.
type Pages struct {
	Current string   `json:"Current"`
	Pages   []string `json:"Pages"`
}

// Manifest is a manifest.json of a profile or of one of its pages.
type Manifest struct {
	DeviceModel string            `json:"DeviceModel"`
	DeviceUUID  string            `json:"DeviceUUID"`
	Name        string            `json:"Name"`
	Version     string            `json:"Version"`
	Actions     map[string]Action `json:"Actions"`
	Pages       *Pages            `json:"Pages,omitempty"`
	ProfileUUID string            `json:"ProfileUUID,omitempty"`
}

func newButton(image, name, actionUUID string, settings map[string]any, showTitle bool) Action {
	st := State{Image: image}
	if showTitle {
		st.Title = name
		st.TitleAlignment = "middle"
		st.FontSize = 14
		st.FontStyle = "Bold"
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return Action{
		ActionID: uuid.NewString(),
		Name:     name,
		Settings: settings,
		States:   []State{st},
		UUID:     actionUUID,
	}
}

func openProfileButton(image, name, profileID string) Action {
	return newButton(image, name, ActionOpenProfile, map[string]any{
		"DeviceUUID":  "",
		"ProfileUUID": profileID,
	}, true)
}

// imageRef turns an icon file name from the images folder into a manifest reference.
func imageRef(icon string) string {
	if icon == "" {
		return ImageLogo
	}
	if strings.ContainsAny(icon, `/\`) {
		return filepath.ToSlash(icon)
	}
	return "Images/" + icon
}

func writeManifest(dir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), raw, 0o644)
}

func newPageID() string {
	return strings.ToUpper(uuid.NewString()) + profileSuffix
}
