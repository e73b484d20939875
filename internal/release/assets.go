package release

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	"github.com/smart-env/obsidian-smart-env/internal/github"
)

// DefaultAssets are the built plugin files attached to every release when
// they exist.
var DefaultAssets = []string{"main.js", "manifest.json", "styles.css"}

// maxParallelUploads bounds concurrent asset uploads.
const maxParallelUploads = 3

// asset is one file to attach to a release.
type asset struct {
	Name string
	Data []byte
}

var contentTypes = map[string]string{
	".js":   "application/javascript",
	".json": "application/json",
	".css":  "text/css",
	".zip":  "application/zip",
}

func contentType(name string) string {
	if ct, ok := contentTypes[filepath.Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// collectAssets reads the named files from dir. Missing files are skipped.
func collectAssets(dir string, names []string) ([]asset, error) {
	var out []asset
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read asset %s: %w", name, err)
		}
		out = append(out, asset{Name: filepath.Base(name), Data: data})
	}
	return out, nil
}

// ZipName returns the name of the bundle attached next to the plugin files.
func ZipName(id, version string) string {
	return fmt.Sprintf("%s-%s.zip", id, version)
}

// buildZip packs assets under a top-level folder named id, which is the
// layout the host application expects when unpacking into its plugins
// directory.
func buildZip(id string, assets []asset) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, a := range assets {
		fw, err := w.Create(path.Join(id, a.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to zip: %w", a.Name, err)
		}
		if _, err := fw.Write(a.Data); err != nil {
			return nil, fmt.Errorf("failed to add %s to zip: %w", a.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish zip: %w", err)
	}
	return buf.Bytes(), nil
}

// uploadAssets attaches assets to the release concurrently and returns the
// uploaded names in input order.
func uploadAssets(ctx context.Context, gh GitHub, repo github.Repo, releaseID int64, assets []asset) ([]string, error) {
	names := make([]string, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, a := range assets {
		i, a := i, a
		g.Go(func() error {
			uploaded, err := gh.UploadAsset(gctx, repo, releaseID, a.Name, contentType(a.Name), a.Data)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", a.Name, err)
			}
			names[i] = uploaded.Name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}
