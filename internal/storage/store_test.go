package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "/static/uploads/")
	ctx := context.Background()

	url, err := s.Save(ctx, "Foto.JPG", strings.NewReader("img"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/static/uploads/"))
	assert.Equal(t, ".jpg", path.Ext(url))

	data, err := os.ReadFile(filepath.Join(dir, path.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	require.NoError(t, s.Delete(ctx, url))
	_, err = os.Stat(filepath.Join(dir, path.Base(url)))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(ctx, url))
}

func TestLocalStoreRejects(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/u")
	_, err := s.Save(context.Background(), "script.sh", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	s.MaxBytes = 2
	_, err = s.Save(context.Background(), "big.png", strings.NewReader("xxxx"))
	assert.Error(t, err)
	entries, _ := os.ReadDir(s.Dir)
	assert.Empty(t, entries)
}
