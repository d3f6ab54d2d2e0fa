package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumehta/MeetScribe/internal/storage"
)

func TestLocalStoreSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	store := storage.NewLocalStore(dir)

	ref, err := store.Save(context.Background(), "notes.md", []byte("# Meeting Notes\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes.md"), ref)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "# Meeting Notes\n", string(data))
}

type fakeS3 struct {
	bucket string
	key    string
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket = *params.Bucket
	f.key = *params.Key
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreSavePrefixesKey(t *testing.T) {
	fake := &fakeS3{}
	store := storage.NewS3StoreFromClient(fake, "meetings", "notes")

	ref, err := store.Save(context.Background(), "abc.md", []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, "s3://meetings/notes/abc.md", ref)
	assert.Equal(t, "meetings", fake.bucket)
	assert.Equal(t, "notes/abc.md", fake.key)
}
