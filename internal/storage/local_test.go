package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, "https://files.test/")
	require.NoError(t, err)
	ctx := context.Background()

	key := ResumeKey("resume", "CV.PDF", time.UnixMilli(1700000000000))
	assert.Regexp(t, `^resumes/resume-1700000000000-[0-9a-f]{8}\.pdf$`, key)

	require.NoError(t, s.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"))
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	u, err := s.URL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/"+key, u)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(root, key))
	assert.True(t, os.IsNotExist(err))
}

func TestResumeKeysDoNotCollideWithinAMillisecond(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	seen := map[string]bool{}
	for range 50 {
		key := ResumeKey("resume", "cv.pdf", now)
		assert.False(t, seen[key], key)
		seen[key] = true
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"../secret", "/etc/passwd", "", "resumes/../../x"} {
		err := s.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestLocalStoreDeletePrefix(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, "")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "resumes/a.pdf", strings.NewReader("a"), 1, ""))
	require.NoError(t, s.Put(ctx, "resumes/b.pdf", strings.NewReader("b"), 1, ""))
	require.NoError(t, s.Put(ctx, "other/c.pdf", strings.NewReader("c"), 1, ""))

	require.NoError(t, s.DeletePrefix(ctx, ResumePrefix))
	_, err = os.Stat(filepath.Join(root, "resumes"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "other", "c.pdf"))
	assert.NoError(t, err)

	u, err := s.URL(ctx, "other/c.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "/api/files/other/c.pdf", u)
}

func TestNewScannerWithoutAddressAcceptsAll(t *testing.T) {
	s := NewScanner("")
	assert.NoError(t, s.Scan(context.Background(), strings.NewReader("X5O!P%@AP")))
}
