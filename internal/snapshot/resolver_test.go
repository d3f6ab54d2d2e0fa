package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumehta/MeetScribe/internal/snapshot"
)

const validManifest = "pipeline:\n  name: speaker-diarization-3.1\n"

func validCache() fstest.MapFS {
	return fstest.MapFS{
		"refs/main":                    {Data: []byte("abc123\n")},
		"snapshots/abc123/config.yaml": {Data: []byte(validManifest)},
		"snapshots/abc123/model.bin":   {Data: []byte{0x1}},
	}
}

func TestParseMode(t *testing.T) {
	for _, in := range []string{"offline", "Online", "AUTO"} {
		_, err := snapshot.ParseMode(in)
		assert.NoError(t, err, in)
	}

	_, err := snapshot.ParseMode("sometimes")
	assert.Error(t, err)
}

func TestResolveValidLocalSnapshot(t *testing.T) {
	res, err := snapshot.Resolve(validCache(), snapshot.ModeOffline, "")
	require.NoError(t, err)

	require.NotNil(t, res.Local)
	assert.False(t, res.FetchRemotely)
	assert.Equal(t, "abc123", res.Local.Hash)
	assert.Equal(t, "snapshots/abc123", res.Local.Dir)
	assert.Equal(t, "snapshots/abc123/config.yaml", res.Local.ManifestPath)
	assert.Equal(t, "speaker-diarization-3.1", res.Local.PipelineName)
	assert.True(t, res.Local.OfflineOnly)
}

func TestResolveOnlineMode(t *testing.T) {
	t.Run("RequiresCredential", func(t *testing.T) {
		_, err := snapshot.Resolve(validCache(), snapshot.ModeOnline, "")
		assert.ErrorIs(t, err, snapshot.ErrCredentialRequired)
	})

	t.Run("SkipsLocalResolution", func(t *testing.T) {
		// Even a broken cache is irrelevant in online mode.
		res, err := snapshot.Resolve(fstest.MapFS{}, snapshot.ModeOnline, "hf_token")
		require.NoError(t, err)
		assert.True(t, res.FetchRemotely)
		assert.Nil(t, res.Local)
		assert.Equal(t, "hf_token", res.Credential)
	})
}

func TestResolveOfflineFailures(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "PointerFileAbsent",
			fsys: fstest.MapFS{"snapshots/abc123/config.yaml": {Data: []byte(validManifest)}},
			want: snapshot.ErrSnapshotPointerMissing,
		},
		{
			name: "PointerFileEmpty",
			fsys: fstest.MapFS{
				"refs/main":                    {Data: []byte("  \n")},
				"snapshots/abc123/config.yaml": {Data: []byte(validManifest)},
			},
			want: snapshot.ErrSnapshotPointerMissing,
		},
		{
			name: "SnapshotDirectoryAbsent",
			fsys: fstest.MapFS{
				"refs/main":                    {Data: []byte("h1")},
				"snapshots/other/config.yaml":  {Data: []byte(validManifest)},
				"snapshots/other/whatever.bin": {Data: []byte{0x2}},
			},
			want: snapshot.ErrSnapshotDirectoryMissing,
		},
		{
			name: "ManifestAbsent",
			fsys: fstest.MapFS{
				"refs/main":                  {Data: []byte("abc123")},
				"snapshots/abc123/model.bin": {Data: []byte{0x1}},
			},
			want: snapshot.ErrManifestMissing,
		},
		{
			name: "ManifestUnparsable",
			fsys: fstest.MapFS{
				"refs/main":                    {Data: []byte("abc123")},
				"snapshots/abc123/config.yaml": {Data: []byte("\tpipeline: [unclosed")},
			},
			want: snapshot.ErrManifestInvalid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := snapshot.Resolve(tc.fsys, snapshot.ModeOffline, "")
			assert.ErrorIs(t, err, tc.want)

			// Offline mode never falls back to network, credential or not.
			_, err = snapshot.Resolve(tc.fsys, snapshot.ModeOffline, "hf_token")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolveAutoFallback(t *testing.T) {
	broken := fstest.MapFS{"refs/main": {Data: []byte("h1")}}

	t.Run("NoCredential", func(t *testing.T) {
		_, err := snapshot.Resolve(broken, snapshot.ModeAuto, "")
		assert.ErrorIs(t, err, snapshot.ErrOfflineUnavailableNoCredential)
	})

	t.Run("WithCredential", func(t *testing.T) {
		res, err := snapshot.Resolve(broken, snapshot.ModeAuto, "hf_token")
		require.NoError(t, err)
		assert.True(t, res.FetchRemotely)
		assert.Nil(t, res.Local)
	})

	t.Run("LocalPreferred", func(t *testing.T) {
		res, err := snapshot.Resolve(validCache(), snapshot.ModeAuto, "hf_token")
		require.NoError(t, err)
		require.NotNil(t, res.Local)
		assert.False(t, res.FetchRemotely)
	})
}

func TestResolveDir(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "refs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "snapshots", "abc123"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "refs", "main"), []byte("abc123\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "snapshots", "abc123", "config.yaml"), []byte(validManifest), 0o644))

	res, err := snapshot.ResolveDir(snapshot.ModeOffline, base, "")
	require.NoError(t, err)
	require.NotNil(t, res.Local)
	assert.Equal(t, filepath.Join(base, "snapshots", "abc123"), res.Local.Dir)
	assert.Equal(t, filepath.Join(base, "snapshots", "abc123", "config.yaml"), res.Local.ManifestPath)

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := snapshot.ResolveDir(snapshot.ModeOffline, filepath.Join(base, "nope"), "")
		assert.ErrorIs(t, err, snapshot.ErrSnapshotPointerMissing)

		res, err := snapshot.ResolveDir(snapshot.ModeAuto, filepath.Join(base, "nope"), "hf_token")
		require.NoError(t, err)
		assert.True(t, res.FetchRemotely)
	})
}
