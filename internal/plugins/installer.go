package plugins

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/smart-env/obsidian-smart-env/internal/bundle"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// Downloader fetches plugin bundles. *Client implements it.
type Downloader interface {
	Download(ctx context.Context, repo string) ([]byte, error)
}

// Installer downloads plugin bundles and unpacks them into a vault.
type Installer struct {
	Downloader Downloader
	Logger     *zerolog.Logger
}

// PluginDir returns the folder a plugin with the given id is installed to.
func PluginDir(vaultDir, id string) string {
	return filepath.Join(vaultDir, ".obsidian", "plugins", id)
}

// Install downloads repo and installs it into vaultDir. It returns the
// installed plugin's manifest.
func (i *Installer) Install(ctx context.Context, vaultDir, repo string) (*model.Manifest, error) {
	data, err := i.Downloader.Download(ctx, repo)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitRemoteError, fmt.Sprintf("failed to download %s", repo), err)
	}
	return i.InstallBundle(vaultDir, data)
}

// InstallBundle unpacks a bundle already in memory into vaultDir.
//
// The bundle must carry a manifest.json with a valid plugin id; its files
// are written to .obsidian/plugins/<id>/ and replace existing files of the
// same name.
func (i *Installer) InstallBundle(vaultDir string, data []byte) (*model.Manifest, error) {
	res, err := bundle.Read(data)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidBundle, "failed to read plugin bundle", err)
	}
	if res.Manifest == nil {
		return nil, model.NewCLIError(model.ExitInvalidBundle, "plugin bundle has no manifest.json")
	}
	if err := model.ValidatePluginID(res.Manifest.ID); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidBundle, "plugin bundle has an invalid manifest", err)
	}

	log := i.logger()
	for _, s := range res.Skipped {
		log.Warn().Str("entry", s.Name).Str("reason", s.Reason).Msg("skipped bundle entry")
	}

	dir := PluginDir(vaultDir, res.Manifest.ID)
	if err := bundle.Install(dir, res.Files); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidBundle, fmt.Sprintf("failed to install %s", res.Manifest.ID), err)
	}

	log.Info().
		Str("plugin", res.Manifest.ID).
		Str("version", res.Manifest.Version).
		Int("files", len(res.Files)).
		Str("dir", dir).
		Msg("installed plugin")
	return res.Manifest, nil
}

func (i *Installer) logger() *zerolog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
