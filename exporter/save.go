package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/use-agent/plugscrape/models"
)

// Saver is the file-save side channel: it hands an artifact to the user and
// returns where it went.
type Saver interface {
	Save(ctx context.Context, a *Artifact) (string, error)
}

// DirSaver writes artifacts into a directory. A file is written to a
// temporary name first and renamed into place, so readers never see a
// partial file and a failed save leaves nothing behind.
type DirSaver struct {
	Dir string
}

// Save implements Saver.
func (d DirSaver) Save(ctx context.Context, a *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", saveErr(err)
	}

	tmp, err := os.CreateTemp(dir, ".plugscrape-*")
	if err != nil {
		return "", saveErr(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(a.Content); err != nil {
		tmp.Close()
		return "", saveErr(err)
	}
	if err := tmp.Close(); err != nil {
		return "", saveErr(err)
	}

	dest := filepath.Join(dir, filepath.Base(a.Filename))
	if err := os.Rename(tmpName, dest); err != nil {
		return "", saveErr(err)
	}
	if err := os.Chmod(dest, 0o644); err != nil {
		return "", saveErr(err)
	}
	return dest, nil
}

// WriterSaver streams the artifact to an io.Writer, e.g. stdout.
type WriterSaver struct {
	W    io.Writer
	Name string
}

// Save implements Saver.
func (w WriterSaver) Save(_ context.Context, a *Artifact) (string, error) {
	if _, err := w.W.Write(a.Content); err != nil {
		return "", saveErr(err)
	}
	if w.Name != "" {
		return w.Name, nil
	}
	return a.Filename, nil
}

func saveErr(err error) error {
	return models.NewScrapeError(models.ErrCodeSaveFailed, "saving the export failed", fmt.Errorf("exporter: %w", err))
}
