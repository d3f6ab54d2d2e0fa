// Package snapshot locates a validated local diarization model snapshot
// without any network access. The on-disk layout it consumes is the standard
// hub cache shape: a pointer file at refs/main naming a content hash, and an
// immutable snapshot directory at snapshots/<hash> containing the pipeline
// manifest (config.yaml). The cache is externally populated and read-only
// here; see cmd/snapshotctl for the tool that writes it.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

type Mode string

const (
	// ModeOffline permits only the local cache; any resolution failure is
	// propagated, never papered over with a network fetch.
	ModeOffline Mode = "offline"

	// ModeOnline skips local resolution entirely and requires a credential
	// for the remote fetch.
	ModeOnline Mode = "online"

	// ModeAuto tries the local cache first and falls back to a remote
	// fetch only when a credential is available.
	ModeAuto Mode = "auto"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeOffline:
		return ModeOffline, nil
	case ModeOnline:
		return ModeOnline, nil
	case ModeAuto:
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown diarization mode %q", s)
	}
}

var (
	ErrCredentialRequired             = errors.New("online diarization requires a credential")
	ErrOfflineUnavailableNoCredential = errors.New("no usable local snapshot and no credential for a remote fetch")
	ErrSnapshotPointerMissing         = errors.New("snapshot pointer refs/main missing or empty")
	ErrSnapshotDirectoryMissing       = errors.New("snapshot directory missing")
	ErrManifestMissing                = errors.New("snapshot manifest config.yaml missing")
	ErrManifestInvalid                = errors.New("snapshot manifest config.yaml invalid")
)

const (
	pointerFile  = "refs/main"
	snapshotsDir = "snapshots"
	manifestName = "config.yaml"
)

// ResolvedSnapshot identifies a validated, ready-to-load local snapshot.
// OfflineOnly is always true: the inference call loading this snapshot must
// not touch the network, regardless of ambient settings.
type ResolvedSnapshot struct {
	Hash         string `json:"hash"`
	Dir          string `json:"dir"`
	ManifestPath string `json:"manifest_path"`
	PipelineName string `json:"pipeline_name,omitempty"`
	OfflineOnly  bool   `json:"offline_only"`
}

// Resolution is the tagged outcome of a resolve: either a validated local
// snapshot or a directive to fetch remotely with the given credential.
type Resolution struct {
	Local         *ResolvedSnapshot `json:"local,omitempty"`
	FetchRemotely bool              `json:"fetch_remotely,omitempty"`
	Credential    string            `json:"-"`
}

type manifest struct {
	Pipeline struct {
		Name string `yaml:"name"`
	} `yaml:"pipeline"`
}

// Resolve decides whether a usable local snapshot exists under fsys (rooted
// at the model base directory) and, if not, whether a remote fetch is
// permitted. It is a pure function of the filesystem, mode, and credential
// presence; all filesystem reads happen here. The outcome is recomputed per
// task and must not be cached, since the pointer may change between runs.
func Resolve(fsys fs.FS, mode Mode, credential string) (Resolution, error) {
	if mode == ModeOnline {
		if credential == "" {
			return Resolution{}, ErrCredentialRequired
		}
		return Resolution{FetchRemotely: true, Credential: credential}, nil
	}

	local, err := resolveLocal(fsys)
	if err != nil {
		if mode == ModeOffline {
			return Resolution{}, err
		}
		if credential != "" {
			return Resolution{FetchRemotely: true, Credential: credential}, nil
		}
		return Resolution{}, fmt.Errorf("%w: %v", ErrOfflineUnavailableNoCredential, err)
	}

	return Resolution{Local: local, Credential: credential}, nil
}

// ResolveDir is the production entry point: it roots the resolution at an
// on-disk base path and rewrites the returned paths to absolute ones.
func ResolveDir(mode Mode, basePath, credential string) (Resolution, error) {
	if mode != ModeOnline {
		if _, err := os.Stat(basePath); err != nil {
			// A missing base directory reads the same as a missing
			// pointer: there is nothing locally resolvable.
			res, rerr := Resolve(emptyFS{}, mode, credential)
			return res, rerr
		}
	}

	res, err := Resolve(os.DirFS(basePath), mode, credential)
	if err != nil {
		return res, err
	}
	if res.Local != nil {
		res.Local.Dir = filepath.Join(basePath, filepath.FromSlash(res.Local.Dir))
		res.Local.ManifestPath = filepath.Join(basePath, filepath.FromSlash(res.Local.ManifestPath))
	}
	return res, nil
}

func resolveLocal(fsys fs.FS) (*ResolvedSnapshot, error) {
	pointer, err := fs.ReadFile(fsys, pointerFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotPointerMissing, err)
	}

	hash := strings.TrimSpace(string(pointer))
	if hash == "" {
		return nil, ErrSnapshotPointerMissing
	}

	dir := path.Join(snapshotsDir, hash)
	info, err := fs.Stat(fsys, dir)
	if err != nil || !info.IsDir() {
		// A pointer naming a hash with no matching directory means the
		// cache needs operator attention; this is not retryable.
		return nil, fmt.Errorf("%w: %s", ErrSnapshotDirectoryMissing, dir)
	}

	manifestPath := path.Join(dir, manifestName)
	raw, err := fs.ReadFile(fsys, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestMissing, manifestPath)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}

	return &ResolvedSnapshot{
		Hash:         hash,
		Dir:          dir,
		ManifestPath: manifestPath,
		PipelineName: m.Pipeline.Name,
		OfflineOnly:  true,
	}, nil
}

// emptyFS stands in for a base directory that does not exist.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
