package transcribe

import (
	"sort"
	"strings"

	"github.com/mumehta/MeetScribe/pkg/api"
)

// DefaultSpeaker labels words and segments the diarization timeline could
// not attribute to anyone.
const DefaultSpeaker = "SPEAKER_00"

// Turn is one diarization interval attributing a time range to a speaker.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// centiseconds of timeline resolution
func tick(t float64) int { return int(t * 100) }

// MergeSpeakerSegments combines transcript segments with diarization turns.
// Segments carrying word timestamps are split at speaker-change boundaries;
// segments without words get the majority speaker over their time range.
// With no usable diarization data every segment is labeled DefaultSpeaker.
func MergeSpeakerSegments(segments []api.TranscriptSegment, turns []Turn) []api.TranscriptSegment {
	timeline := make(map[int]string)
	for _, turn := range turns {
		for i := tick(turn.Start); i < tick(turn.End); i++ {
			timeline[i] = turn.Speaker
		}
	}

	if len(timeline) == 0 {
		out := make([]api.TranscriptSegment, len(segments))
		for i, seg := range segments {
			seg.Speaker = DefaultSpeaker
			out[i] = seg
		}
		return out
	}

	var out []api.TranscriptSegment
	for _, seg := range segments {
		if len(seg.Words) == 0 {
			seg.Speaker = majoritySpeaker(timeline, seg.Start, seg.End)
			out = append(out, seg)
			continue
		}
		out = append(out, splitByWords(timeline, seg)...)
	}
	return out
}

func majoritySpeaker(timeline map[int]string, start, end float64) string {
	counts := make(map[string]int)
	for i := tick(start); i < tick(end); i++ {
		if sp, ok := timeline[i]; ok {
			counts[sp]++
		}
	}
	if len(counts) == 0 {
		return DefaultSpeaker
	}

	speakers := make([]string, 0, len(counts))
	for sp := range counts {
		speakers = append(speakers, sp)
	}
	// deterministic tie-break
	sort.Strings(speakers)

	best := speakers[0]
	for _, sp := range speakers[1:] {
		if counts[sp] > counts[best] {
			best = sp
		}
	}
	return best
}

func wordSpeaker(timeline map[int]string, w api.Word) string {
	for i := tick(w.Start); i <= tick(w.End); i++ {
		if sp, ok := timeline[i]; ok {
			return sp
		}
	}
	if sp, ok := timeline[tick((w.Start+w.End)/2)]; ok {
		return sp
	}
	return DefaultSpeaker
}

// splitByWords walks a segment's words and emits a new segment each time the
// attributed speaker changes, so one whisper segment spanning two voices
// becomes two speaker-labeled segments.
func splitByWords(timeline map[int]string, seg api.TranscriptSegment) []api.TranscriptSegment {
	var out []api.TranscriptSegment

	currentSpeaker := ""
	currentText := ""
	currentStart := seg.Words[0].Start

	flush := func(end float64) {
		out = append(out, api.TranscriptSegment{
			Start:   currentStart,
			End:     end,
			Text:    strings.TrimSpace(currentText),
			Speaker: currentSpeaker,
		})
	}

	for _, w := range seg.Words {
		sp := wordSpeaker(timeline, w)
		if currentSpeaker == "" {
			currentSpeaker = sp
		}
		if sp != currentSpeaker {
			flush(w.Start)
			currentSpeaker = sp
			currentText = ""
			currentStart = w.Start
		}
		currentText += w.Word + " "
	}

	if currentSpeaker == "" {
		currentSpeaker = DefaultSpeaker
	}
	flush(seg.End)

	return out
}
