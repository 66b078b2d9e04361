package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSaver struct{}

func (failingSaver) Save(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestManager_DownloadAndRelease(t *testing.T) {
	m := NewManager(okFetcher("png-bytes"))
	dir := t.TempDir()
	ctx := context.Background()

	h, err := m.Acquire(ctx, "/api/v1/images/generated/2025-01-01/abc.png")
	require.NoError(t, err)

	target, err := m.DownloadAndRelease(ctx, h, "", DirSaver{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc.png"), target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, 0, m.Live())

	// A released handle cannot be downloaded again
	_, err = m.DownloadAndRelease(ctx, h, "", DirSaver{Dir: dir})
	assert.ErrorIs(t, err, ErrReleased)
}

func TestManager_DownloadAndRelease_NoOverwrite(t *testing.T) {
	m := NewManager(okFetcher("img"))
	dir := t.TempDir()
	ctx := context.Background()

	for _, want := range []string{"image.png", "image (1).png", "image (2).png"} {
		h, err := m.Acquire(ctx, "/a.png")
		require.NoError(t, err)
		target, err := m.DownloadAndRelease(ctx, h, "image.png", DirSaver{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, want), target)
	}
}

func TestManager_DownloadAndRelease_ReleasesOnFailure(t *testing.T) {
	m := NewManager(okFetcher("img"))
	ctx := context.Background()

	h, err := m.Acquire(ctx, "/a.png")
	require.NoError(t, err)

	_, err = m.DownloadAndRelease(ctx, h, "a.png", failingSaver{})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Live(), "handle must be released even when saving fails")
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
	}{
		{"photo.png", "image/png", "photo.png"},
		{"../../etc/passwd", "", "passwd"},
		{"", "", "image"},
		{"result", "image/png", "result.png"},
		{"dir/nested.jpg", "image/png", "nested.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeName(tt.name, tt.contentType))
		})
	}
}
