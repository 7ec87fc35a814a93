package stream

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"
)

// PlaybackMirror pipes raw PCM into an ffplay subprocess so an operator can
// listen along to a live source. It is monitoring-only and sits outside the
// segmentation path.
type PlaybackMirror struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewPlaybackMirror starts ffplay reading s16le mono PCM from stdin at the
// given sample rate.
func NewPlaybackMirror(ctx context.Context, sampleRate int) (*PlaybackMirror, error) {
	cmd := exec.CommandContext(ctx, "ffplay",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ch_layout", "mono",
		"-nodisp",
		"-loglevel", "error",
		"-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffplay stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffplay: %w", err)
	}

	log.Debug().Int("sample_rate", sampleRate).Msg("Playback mirror started")

	return &PlaybackMirror{cmd: cmd, stdin: stdin}, nil
}

// Write implements io.Writer over the ffplay stdin pipe.
func (m *PlaybackMirror) Write(p []byte) (int, error) {
	return m.stdin.Write(p)
}

// Close stops the subprocess.
func (m *PlaybackMirror) Close() error {
	m.stdin.Close()
	return m.cmd.Wait()
}
