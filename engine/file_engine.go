package engine

import (
	"context"
	"fmt"
	"os"
)

// FileEngine serves a page saved to disk (for example with the browser's
// "Save page as"), so exports can run without reaching the site. The request
// URL is only recorded as the snapshot location.
type FileEngine struct {
	Path string
}

func (e *FileEngine) Name() string { return "file" }

func (e *FileEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, fmt.Errorf("file_engine: %w", err)
	}
	defer f.Close()

	page, err := readPage(f)
	if err != nil {
		return nil, fmt.Errorf("file_engine: read %s: %w", e.Path, err)
	}
	return &FetchResult{
		HTML:       page,
		Title:      extractTitle(page),
		StatusCode: 200,
		FinalURL:   req.URL,
		EngineName: e.Name(),
	}, nil
}
