// snapshotctl manages the local diarization model cache consumed by the
// server. "fetch" downloads a model repo into the hub cache layout
// (snapshots/<sha>/ plus a refs/main pointer); "validate" checks that the
// cache resolves the same way the transcription stage would resolve it.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"

	"github.com/mumehta/MeetScribe/internal/snapshot"
)

const hubBaseURL = "https://huggingface.co"

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "validate":
		if len(os.Args) != 3 {
			log.Fatalf("usage: snapshotctl validate <model-dir>")
		}
		validate(os.Args[2])
	case "fetch":
		if len(os.Args) != 4 {
			log.Fatalf("usage: snapshotctl fetch <repo-id> <model-dir>")
		}
		fetch(os.Args[2], os.Args[3], os.Getenv("HUGGINGFACE_TOKEN"))
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: snapshotctl <validate|fetch> ...")
	fmt.Fprintln(os.Stderr, "  validate <model-dir>          check the local snapshot cache")
	fmt.Fprintln(os.Stderr, "  fetch <repo-id> <model-dir>   download a model repo into the cache")
	os.Exit(2)
}

func validate(dir string) {
	res, err := snapshot.ResolveDir(snapshot.ModeOffline, dir, "")
	if err != nil {
		log.Fatalf("snapshot cache at %s is not usable: %v", dir, err)
	}

	fmt.Printf("snapshot cache OK\n")
	fmt.Printf("  hash:     %s\n", res.Local.Hash)
	fmt.Printf("  dir:      %s\n", res.Local.Dir)
	fmt.Printf("  manifest: %s\n", res.Local.ManifestPath)
	if res.Local.PipelineName != "" {
		fmt.Printf("  pipeline: %s\n", res.Local.PipelineName)
	}
}

type revisionInfo struct {
	SHA      string `json:"sha"`
	Siblings []struct {
		Filename string `json:"rfilename"`
	} `json:"siblings"`
}

func fetch(repoID, dir, token string) {
	client := resty.New().SetBaseURL(hubBaseURL)
	if token != "" {
		client.SetAuthToken(token)
	}

	var rev revisionInfo
	resp, err := client.R().
		SetResult(&rev).
		Get(fmt.Sprintf("/api/models/%s/revision/main", repoID))
	if err != nil {
		log.Fatalf("failed to query model repo %s: %v", repoID, err)
	}
	if !resp.IsSuccess() {
		log.Fatalf("model repo %s returned %d: %s", repoID, resp.StatusCode(), resp.String())
	}
	if rev.SHA == "" || len(rev.Siblings) == 0 {
		log.Fatalf("model repo %s has no revision or files", repoID)
	}

	snapDir := filepath.Join(dir, "snapshots", rev.SHA)
	log.Printf("fetching %s@%s (%d files) into %s", repoID, rev.SHA, len(rev.Siblings), snapDir)

	for _, sibling := range rev.Siblings {
		if err := download(client, repoID, rev.SHA, sibling.Filename, snapDir); err != nil {
			log.Fatalf("failed to download %s: %v", sibling.Filename, err)
		}
	}

	// The pointer is written last so an interrupted fetch never leaves a
	// pointer naming a partial snapshot.
	refsDir := filepath.Join(dir, "refs")
	if err := os.MkdirAll(refsDir, 0755); err != nil {
		log.Fatalf("failed to create %s: %v", refsDir, err)
	}
	if err := os.WriteFile(filepath.Join(refsDir, "main"), []byte(rev.SHA+"\n"), 0644); err != nil {
		log.Fatalf("failed to write refs/main: %v", err)
	}

	if _, err := snapshot.ResolveDir(snapshot.ModeOffline, dir, ""); err != nil {
		log.Fatalf("fetched cache failed validation: %v", err)
	}
	log.Printf("snapshot %s ready", rev.SHA)
}

func download(client *resty.Client, repoID, sha, name, snapDir string) error {
	target := filepath.Join(snapDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	resp, err := client.R().
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/%s/resolve/%s/%s", repoID, sha, name))
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return fmt.Errorf("server returned %d", resp.StatusCode())
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	bar := progressbar.DefaultBytes(resp.RawResponse.ContentLength, name)
	if _, err := io.Copy(io.MultiWriter(out, bar), body); err != nil {
		os.Remove(target)
		return err
	}
	return nil
}
