// Package audio prepares uploaded media for transcription: it probes the
// container with ffprobe and converts the audio track to the 16 kHz mono
// 16-bit PCM WAV the speech model expects.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mumehta/MeetScribe/pkg/api"
)

// Preparer is the audio preparation collaborator consumed by the pipeline.
type Preparer interface {
	Process(ctx context.Context, fileRef, originalName string) (api.PreparationResult, error)
}

// Executor runs an external command and returns its stdout. Injectable so
// tests can fake ffmpeg/ffprobe.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// NewExecRunner returns the production command executor.
func NewExecRunner() Executor { return execRunner{} }

type FFmpegPreparer struct {
	exec Executor
}

func NewFFmpegPreparer(exec Executor) *FFmpegPreparer {
	return &FFmpegPreparer{exec: exec}
}

// Process probes the uploaded file and converts it to standard WAV next to
// the original. Probe failures degrade to basic file info; conversion
// failures are fatal for the stage.
func (p *FFmpegPreparer) Process(ctx context.Context, fileRef, originalName string) (api.PreparationResult, error) {
	info := p.probe(ctx, fileRef, originalName)

	converted := strings.TrimSuffix(fileRef, filepath.Ext(fileRef)) + "_converted.wav"
	args := []string{
		"-y",
		"-i", fileRef,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-loglevel", "error",
		converted,
	}
	if _, err := p.exec.Execute(ctx, "ffmpeg", args...); err != nil {
		return api.PreparationResult{}, fmt.Errorf("audio conversion failed: %w", err)
	}

	st, err := os.Stat(converted)
	if err != nil || st.Size() == 0 {
		return api.PreparationResult{}, fmt.Errorf("converted file missing or empty: %s", converted)
	}

	return api.PreparationResult{FileInfo: info, ConvertedFileRef: converted}, nil
}

type probeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func (p *FFmpegPreparer) probe(ctx context.Context, fileRef, originalName string) api.FileInfo {
	info := api.FileInfo{
		OriginalFormat: strings.TrimPrefix(strings.ToLower(filepath.Ext(originalName)), "."),
	}
	if st, err := os.Stat(fileRef); err == nil {
		info.FileSizeBytes = st.Size()
	}

	out, err := p.exec.Execute(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		fileRef,
	)
	if err != nil {
		slog.Warn("ffprobe failed, continuing with basic file info", "file", originalName, "error", err)
		return info
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		slog.Warn("unparsable ffprobe output, continuing with basic file info", "file", originalName, "error", err)
		return info
	}

	info.DurationSeconds, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	info.BitRate, _ = strconv.ParseInt(probed.Format.BitRate, 10, 64)
	info.FormatName = probed.Format.FormatName

	for _, s := range probed.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.Codec = s.CodecName
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		info.Channels = s.Channels
		break
	}

	return info
}
