package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeProgressReportsPerBlock(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=2500000",
		"speed=4.1x",
		"progress=continue",
		"out_time_us=5000000",
		"speed=4.0x",
		"progress=end",
	}, "\n")

	var reports []Progress
	tr := NewTranscoder("", nil)
	tr.consumeProgress(strings.NewReader(stream), 10, func(p Progress) {
		reports = append(reports, p)
	})

	require.Len(t, reports, 2)
	assert.InDelta(t, 25, reports[0].Percent, 0.01)
	assert.Equal(t, 2500*time.Millisecond, reports[0].OutTime)
	assert.Equal(t, "4.1x", reports[0].Speed)
	assert.Equal(t, 100.0, reports[1].Percent)
}

func TestConsumeProgressSkipsGarbage(t *testing.T) {
	stream := "not a progress line\nout_time_us=abc\nout_time_us=-5\nprogress=continue\n"

	var reports []Progress
	tr := NewTranscoder("", nil)
	tr.consumeProgress(strings.NewReader(stream), 10, func(p Progress) {
		reports = append(reports, p)
	})

	require.Len(t, reports, 1)
	assert.Zero(t, reports[0].Percent)
	assert.Zero(t, reports[0].OutTime)
}

func TestConsumeProgressCapsAtHundred(t *testing.T) {
	stream := "out_time_us=20000000\nprogress=continue\n"

	var got Progress
	tr := NewTranscoder("", nil)
	tr.consumeProgress(strings.NewReader(stream), 10, func(p Progress) { got = p })

	assert.Equal(t, 100.0, got.Percent)
}

func TestBuildExportArgsAudioHandling(t *testing.T) {
	withAudio := buildExportArgs("in.mp4", "out.mp4", "format=yuv420p", true)
	assert.Contains(t, strings.Join(withAudio, " "), "-c:a copy")

	silent := buildExportArgs("in.mp4", "out.mp4", "format=yuv420p", false)
	assert.Contains(t, silent, "-an")
	assert.NotContains(t, strings.Join(silent, " "), "-c:a")
}

func TestBuildExportArgsStreamingProgress(t *testing.T) {
	args := strings.Join(buildExportArgs("in.mp4", "out.mp4", "scale=2:2", true), " ")
	assert.Contains(t, args, "-progress pipe:1")
	assert.Contains(t, args, "-movflags +faststart")
	assert.True(t, strings.HasSuffix(args, "out.mp4"))
}

func TestTailBufferKeepsOnlyRecentLines(t *testing.T) {
	b := &tailBuffer{limit: 3}
	for _, line := range []string{"one", "two", "three", "four", "", "five"} {
		_, err := b.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	assert.Equal(t, "three; four; five", b.String())
}

func TestExportRejectsInvalidJobs(t *testing.T) {
	tr := NewTranscoder("", nil)
	_, err := tr.Export(context.Background(), Job{Target: Dimensions{Width: 1280, Height: 720}})
	assert.Error(t, err)

	_, err = tr.Export(context.Background(), Job{SourcePath: "in.mp4"})
	assert.Error(t, err)
}
