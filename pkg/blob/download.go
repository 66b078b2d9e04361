package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Saver persists downloaded bytes and returns where they went.
type Saver interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// DirSaver writes downloads into a directory, never overwriting an
// existing file.
type DirSaver struct {
	Dir string
}

// Save implements Saver.
func (s DirSaver) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name = sanitizeName(name, contentType)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		target := filepath.Join(s.Dir, candidate)

		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write %s: %w", target, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", target, err)
		}
		return target, nil
	}
}

func sanitizeName(name, contentType string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		name = "image"
	}
	if filepath.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

// DownloadAndRelease saves the handle's bytes under suggestedName and
// releases the handle whether or not saving succeeded. A nil saver writes
// to the working directory.
func (m *Manager) DownloadAndRelease(ctx context.Context, h *Handle, suggestedName string, saver Saver) (string, error) {
	if h == nil {
		return "", ErrReleased
	}
	defer m.Release(h)

	if saver == nil {
		saver = DirSaver{Dir: "."}
	}

	data, contentType, ok := m.Resolve(h.LocalURL)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrReleased, h.LocalURL)
	}
	if suggestedName == "" {
		suggestedName = filepath.Base(h.SourcePath)
	}

	target, err := saver.Save(ctx, suggestedName, contentType, data)
	if err != nil {
		m.logger.Error().Err(err).Str("path", h.SourcePath).Msg("Download failed")
		return "", fmt.Errorf("save %s: %w", suggestedName, err)
	}

	m.logger.Info().Str("path", h.SourcePath).Str("target", target).Msg("Image downloaded")
	return target, nil
}
