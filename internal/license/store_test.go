package license

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreAbsentIsNotAnError(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "license.dat"), nil)
	require.NoError(t, err)

	rec, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, s.Clear())
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "license.dat")
	s, err := NewFileStore(path, []byte("machine-secret"))
	require.NoError(t, err)

	want := activeRecord()
	want.ConsecutiveFailureCount = 2
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Key, got.Key)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, 2, got.ConsecutiveFailureCount)
	assert.Equal(t, "Acme", got.CustomerName)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Clear())
	got, err = s.Load()
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreFlatDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.dat")
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(activeRecord()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "KEY1-ABCDEFGH", doc["key"])
	assert.Equal(t, "active", doc["authority_status"])
	assert.Contains(t, doc, "consecutive_failure_count")
	assert.NotContains(t, doc, "signature")
}

func TestFileStoreCorruptContents(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"garbage", "{not json"},
		{"no key", `{"authority_status":"active"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "license.dat")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o600))
			s, err := NewFileStore(path, nil)
			require.NoError(t, err)

			rec, err := s.Load()
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestFileStoreDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.dat")
	s, err := NewFileStore(path, []byte("machine-secret"))
	require.NoError(t, err)
	require.NoError(t, s.Save(activeRecord()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["expires_at"] = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	rec, err := s.Load()
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	// A store keyed with a different secret rejects the original document too.
	require.NoError(t, s.Save(activeRecord()))
	other, err := NewFileStore(path, []byte("other-machine"))
	require.NoError(t, err)
	_, err = other.Load()
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestFileStoreSaveNil(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "license.dat"), nil)
	require.NoError(t, err)
	assert.Error(t, s.Save(nil))
}
