package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLister(procs ...Process) Lister {
	return func(context.Context) ([]Process, error) { return procs, nil }
}

func TestModelRootOverride(t *testing.T) {
	root := t.TempDir()
	f := NewFinder(root, func(context.Context) ([]Process, error) {
		t.Fatal("process table must not be read when an override is set")
		return nil, nil
	})

	got, err := f.ModelRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestModelRootOverrideMustExist(t *testing.T) {
	f := NewFinder(filepath.Join(t.TempDir(), "missing"), staticLister())

	_, err := f.ModelRoot(context.Background())
	assert.Error(t, err)
}

func TestModelRootFromProcess(t *testing.T) {
	install := t.TempDir()
	models := filepath.Join(install, "VTube Studio_Data", "StreamingAssets", "Live2DModels")
	require.NoError(t, os.MkdirAll(filepath.Join(models, "Hiyori"), 0o755))

	f := NewFinder("", staticLister(
		Process{Name: "bash", Exe: "/bin/bash"},
		Process{Name: "VTubeStudio-helper", Exe: ""},
		Process{Name: "VTube Studio.exe", Exe: filepath.Join(install, "VTube Studio.exe")},
	))

	got, err := f.ModelRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models, got)
}

func TestModelRootNotFound(t *testing.T) {
	f := NewFinder("", staticLister(Process{Name: "vtube studio", Exe: filepath.Join(t.TempDir(), "vts.exe")}))

	_, err := f.ModelRoot(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModelRootListerError(t *testing.T) {
	boom := errors.New("boom")
	f := NewFinder("", func(context.Context) ([]Process, error) { return nil, boom })

	_, err := f.ModelRoot(context.Background())
	assert.ErrorIs(t, err, boom)
}
