package transcribe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumehta/MeetScribe/internal/transcribe"
	"github.com/mumehta/MeetScribe/pkg/api"
)

func words(ws ...api.Word) []api.Word { return ws }

func TestMergeWithoutDiarizationData(t *testing.T) {
	segments := []api.TranscriptSegment{
		{Start: 0, End: 2, Text: "hello there"},
		{Start: 2, End: 4, Text: "general kenobi"},
	}

	merged := transcribe.MergeSpeakerSegments(segments, nil)
	require.Len(t, merged, 2)
	for _, seg := range merged {
		assert.Equal(t, transcribe.DefaultSpeaker, seg.Speaker)
	}
}

func TestMergeMajorityVoteWithoutWords(t *testing.T) {
	segments := []api.TranscriptSegment{{Start: 0, End: 3, Text: "mostly alice talking"}}
	turns := []transcribe.Turn{
		{Start: 0, End: 2.5, Speaker: "SPEAKER_01"},
		{Start: 2.5, End: 3, Speaker: "SPEAKER_02"},
	}

	merged := transcribe.MergeSpeakerSegments(segments, turns)
	require.Len(t, merged, 1)
	assert.Equal(t, "SPEAKER_01", merged[0].Speaker)
	assert.Equal(t, "mostly alice talking", merged[0].Text)
}

func TestMergeSplitsSegmentAtSpeakerChange(t *testing.T) {
	segments := []api.TranscriptSegment{{
		Start: 0,
		End:   4,
		Text:  "hi there hello back",
		Words: words(
			api.Word{Start: 0.0, End: 0.8, Word: "hi"},
			api.Word{Start: 0.9, End: 1.7, Word: "there"},
			api.Word{Start: 2.1, End: 2.9, Word: "hello"},
			api.Word{Start: 3.0, End: 3.8, Word: "back"},
		),
	}}
	turns := []transcribe.Turn{
		{Start: 0, End: 2, Speaker: "SPEAKER_01"},
		{Start: 2, End: 4, Speaker: "SPEAKER_02"},
	}

	merged := transcribe.MergeSpeakerSegments(segments, turns)
	require.Len(t, merged, 2)

	assert.Equal(t, "SPEAKER_01", merged[0].Speaker)
	assert.Equal(t, "hi there", merged[0].Text)
	assert.InDelta(t, 0.0, merged[0].Start, 1e-9)
	assert.InDelta(t, 2.1, merged[0].End, 1e-9)

	assert.Equal(t, "SPEAKER_02", merged[1].Speaker)
	assert.Equal(t, "hello back", merged[1].Text)
	assert.InDelta(t, 2.1, merged[1].Start, 1e-9)
	assert.InDelta(t, 4.0, merged[1].End, 1e-9)

	for _, seg := range merged {
		assert.Less(t, seg.Start, seg.End)
	}
}

func TestMergeWordOutsideAnyTurn(t *testing.T) {
	segments := []api.TranscriptSegment{{
		Start: 0,
		End:   2,
		Text:  "um hello",
		Words: words(
			// first word falls in a diarization gap
			api.Word{Start: 0.0, End: 0.3, Word: "um"},
			api.Word{Start: 1.0, End: 1.5, Word: "hello"},
		),
	}}
	turns := []transcribe.Turn{{Start: 0.9, End: 2, Speaker: "SPEAKER_01"}}

	merged := transcribe.MergeSpeakerSegments(segments, turns)
	require.Len(t, merged, 2)
	assert.Equal(t, transcribe.DefaultSpeaker, merged[0].Speaker)
	assert.Equal(t, "um", merged[0].Text)
	assert.Equal(t, "SPEAKER_01", merged[1].Speaker)
	assert.Equal(t, "hello", merged[1].Text)
}

func TestMergeSingleSpeakerKeepsOneSegment(t *testing.T) {
	segments := []api.TranscriptSegment{{
		Start: 0,
		End:   2,
		Text:  "all one voice",
		Words: words(
			api.Word{Start: 0.1, End: 0.5, Word: "all"},
			api.Word{Start: 0.6, End: 1.0, Word: "one"},
			api.Word{Start: 1.1, End: 1.6, Word: "voice"},
		),
	}}
	turns := []transcribe.Turn{{Start: 0, End: 2, Speaker: "SPEAKER_03"}}

	merged := transcribe.MergeSpeakerSegments(segments, turns)
	require.Len(t, merged, 1)
	assert.Equal(t, "SPEAKER_03", merged[0].Speaker)
	assert.Equal(t, "all one voice", merged[0].Text)
	assert.InDelta(t, 2.0, merged[0].End, 1e-9)
}
