package cli

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jiuai233/StreamDeck/internal/config"
	"github.com/jiuai233/StreamDeck/internal/discovery"
	"github.com/jiuai233/StreamDeck/internal/icon"
	"github.com/jiuai233/StreamDeck/internal/policy"
	store "github.com/jiuai233/StreamDeck/internal/repository"
	"github.com/jiuai233/StreamDeck/internal/vts"
)

// app holds what every command shares once the configuration is loaded.
type app struct {
	cfg *config.Config
	out io.Writer

	// lister replaces the process table lookup in tests.
	lister discovery.Lister
}

func (a *app) session(ctx context.Context) (*vts.Client, *policy.Classifier, error) {
	classifier, err := a.cfg.Classifier(ctx)
	if err != nil {
		return nil, nil, err
	}
	return vts.NewClient(a.cfg.Client(), classifier), classifier, nil
}

func (a *app) history() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(a.cfg.Paths.History)
}

// icons returns a resolver rooted at the Live2D model folder. When the
// folder cannot be found every model gets the default icon.
func (a *app) icons(ctx context.Context) *icon.Resolver {
	root, err := discovery.NewFinder(a.cfg.Paths.ModelRoot, a.lister).ModelRoot(ctx)
	if err != nil {
		entry := logrus.WithError(err)
		if errors.Is(err, discovery.ErrNotFound) {
			entry.Warn("Model icons will use the default image")
		} else {
			entry.Error("Failed to locate the VTube Studio model folder")
		}
		root = ""
	} else {
		logrus.WithField("root", root).Info("Using VTube Studio model folder")
	}
	return icon.NewResolver(root, a.cfg.Paths.ImagesDir, a.cfg.Paths.DefaultIcon)
}
