package icon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveFromFileHint(t *testing.T) {
	root := t.TempDir()
	images := filepath.Join(t.TempDir(), "Images")
	writeFile(t, filepath.Join(root, "Hiyori", "hiyori.vtube.json"), "{}")
	writeFile(t, filepath.Join(root, "Hiyori", "a_texture.png"), "texture")
	writeFile(t, filepath.Join(root, "Hiyori", "icon.PNG"), "icon-bytes")

	r := NewResolver(root, images, "default.png")
	ref := r.Resolve("Hiyori/hiyori.vtube.json", "Someone else")

	assert.Equal(t, Fingerprint([]byte("icon-bytes"))+".png", ref)
	got, err := os.ReadFile(filepath.Join(images, ref))
	require.NoError(t, err)
	assert.Equal(t, "icon-bytes", string(got))
}

func TestResolveByFolderName(t *testing.T) {
	root := t.TempDir()
	images := t.TempDir()
	writeFile(t, filepath.Join(root, "Mao_VTS", "ico_mao.jpg"), "mao")
	writeFile(t, filepath.Join(root, "Mao_VTS", "b.png"), "other")

	r := NewResolver(root, images, "default.png")
	ref := r.Resolve("", "mao")

	assert.Equal(t, Fingerprint([]byte("mao"))+".jpg", ref)
}

func TestResolveFallsBackToFirstImage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Akari", "notes.txt"), "x")
	writeFile(t, filepath.Join(root, "Akari", "b.webp"), "b")
	writeFile(t, filepath.Join(root, "Akari", "a.jpeg"), "a")

	r := NewResolver(root, t.TempDir(), "default.png")

	assert.Equal(t, Fingerprint([]byte("a"))+".jpeg", r.Resolve("", "Akari"))
}

func TestResolveDefaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Empty", "model.moc3"), "moc")

	r := NewResolver(root, t.TempDir(), "default.png")
	assert.Equal(t, "default.png", r.Resolve("", "Unknown"))
	assert.Equal(t, "default.png", r.Resolve("Empty/model.json", "Empty"))

	assert.Equal(t, "default.png", NewResolver("", t.TempDir(), "default.png").Resolve("x/y.json", "x"))
}

func TestResolveReusesExistingCopy(t *testing.T) {
	root := t.TempDir()
	images := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "icon.png"), "same")
	writeFile(t, filepath.Join(root, "B", "icon.png"), "same")

	r := NewResolver(root, images, "default.png")
	a := r.Resolve("", "A")
	b := r.Resolve("", "B")

	assert.Equal(t, a, b)
	entries, err := os.ReadDir(images)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint([]byte("hello"))
	assert.Len(t, fp, fingerprintLen)
	assert.Regexp(t, "^[0-9A-F]+$", fp)
	assert.Equal(t, fp, Fingerprint([]byte("hello")))
	assert.NotEqual(t, fp, Fingerprint([]byte("hello!")))
}
