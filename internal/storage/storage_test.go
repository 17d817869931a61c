package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

func TestAttachmentKey(t *testing.T) {
	at := time.Date(2024, 3, 4, 23, 30, 0, 0, time.FixedZone("CET", -2*3600))
	cases := []struct {
		sender, ticket string
		n              int
		file, want     string
	}{
		{"ana@uni.test", "t-1", 1, "trace.txt", "attachments/ana@uni.test/2024-03-05/t-1/1-trace.txt"},
		{"ana@uni.test", "t-1", 2, "../../etc/passwd", "attachments/ana@uni.test/2024-03-05/t-1/2-passwd"},
		{"ana@uni.test", "t-1", 3, `C:\Users\ana\my file (1).pdf`, "attachments/ana@uni.test/2024-03-05/t-1/3-my_file_1_.pdf"},
		{"", "", 1, "", "attachments/unknown/2024-03-05/unassigned/1-attachment"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AttachmentKey(tc.sender, at, tc.ticket, tc.n, tc.file))
	}
}

func TestAttachmentKeysDoNotCollide(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	keys := map[string]bool{
		AttachmentKey("ana@uni.test", at, "t-1", 1, "scan.pdf"): true,
		AttachmentKey("ana@uni.test", at, "t-1", 2, "scan.pdf"): true,
		AttachmentKey("ana@uni.test", at, "t-2", 1, "scan.pdf"): true,
	}
	assert.Len(t, keys, 3)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	locator, err := store.Put(ctx, "attachments/ana/2024-03-05/trace.txt", []byte("ping"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "file://attachments/ana/2024-03-05/trace.txt", locator)

	data, err := store.Get(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), data)

	_, err = store.Get(ctx, "file://attachments/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "s3://bucket/key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	_, err := store.Put(context.Background(), "../outside.txt", []byte("x"), "")
	assert.Error(t, err)
	_, err = store.Get(context.Background(), "file://../../outside.txt")
	assert.Error(t, err)
}

func TestNewDefaultsToLocal(t *testing.T) {
	store := New(context.Background(), config.StorageConfig{LocalDir: t.TempDir()}, nil)
	assert.IsType(t, &LocalStore{}, store)
}
