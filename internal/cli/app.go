package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sorrow233/flowsync/internal/config"
	"github.com/sorrow233/flowsync/internal/export"
	"github.com/sorrow233/flowsync/internal/localstore"
	"github.com/sorrow233/flowsync/internal/registry"
)

// app bundles the wired components a command operates on.
type app struct {
	cfg    config.Config
	store  *localstore.Store
	reg    *registry.Registry
	handle *registry.Handle
}

// openApp loads configuration, opens local storage, and binds the
// document handle. Callers must invoke close.
func openApp(opts *RootOptions) (*app, func(), error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}
	if opts.Store != "" {
		cfg.StoragePath = opts.Store
	}
	if opts.DocumentID != "" {
		cfg.DocumentID = opts.DocumentID
	}

	store, err := localstore.Open(cfg.StoragePath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open local storage", err)
	}

	reg := registry.New(registry.WithRemoteURL(cfg.RemoteURL))
	handle := reg.GetOrCreate(cfg.DocumentID, cfg.Owner, nil)

	// The CLI runs one command per process, so the full document state,
	// migration-only sequences and maps included, is carried between
	// invocations as a private blob in local storage.
	docKey := "doc:state:" + cfg.DocumentID
	if raw, ok, err := store.Get(docKey); err == nil && ok {
		if st, err := export.DecodeState(raw); err != nil {
			slog.Warn("stored document state not decoded", "error", err)
		} else if err := export.RestoreState(handle.Doc(), st); err != nil {
			slog.Warn("stored document state not applied", "error", err)
		}
	}

	a := &app{cfg: cfg, store: store, reg: reg, handle: handle}
	closeApp := func() {
		raw, err := export.EncodeState(export.CaptureState(handle.Doc()))
		if err == nil {
			err = store.Put(docKey, raw)
		}
		if err != nil {
			slog.Warn("document state not persisted", "error", err)
		}
		reg.Close()
		store.Close()
	}
	return a, closeApp, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
