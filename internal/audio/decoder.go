package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"
)

// ChunkReader is a blocking source of fixed-size sample chunks. ReadChunk
// returns io.EOF after the final chunk; a short final chunk is returned
// as-is before EOF.
type ChunkReader interface {
	ReadChunk() ([]int16, error)
	Close() error
}

// DecodeError reports a decoder subprocess that exited non-zero.
type DecodeError struct {
	ExitCode int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ffmpeg failed with a non-zero exit code %d", e.ExitCode)
}

// FFmpegDecoder shells out to ffmpeg to turn an arbitrary input locator
// (URL, file path, capture device) into raw s16le mono PCM at the target
// sample rate, exposed as fixed-size chunks.
type FFmpegDecoder struct {
	cmd          *exec.Cmd
	stdout       io.ReadCloser
	reader       *bufio.Reader
	chunkSamples int
	closed       bool
}

// NewFFmpegDecoder starts the ffmpeg subprocess for the given input. The
// recovery flags let ffmpeg ride out brief network hiccups on live URLs
// before giving up and exiting.
func NewFFmpegDecoder(ctx context.Context, input string, sampleRate, chunkSamples int) (*FFmpegDecoder, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", input,
		"-attempt_recovery", "1",
		"-hide_banner",
		"-loglevel", "error",
		"-recovery_wait_time", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	log.Debug().Str("input", input).Int("sample_rate", sampleRate).Msg("ffmpeg decoder started")

	return &FFmpegDecoder{
		cmd:          cmd,
		stdout:       stdout,
		reader:       bufio.NewReader(stdout),
		chunkSamples: chunkSamples,
	}, nil
}

// ReadChunk blocks until chunkSamples samples are available, the stream ends,
// or the subprocess dies. At true end-of-input a short final chunk is
// returned with a nil error; the following call returns io.EOF.
func (d *FFmpegDecoder) ReadChunk() ([]int16, error) {
	buf := make([]byte, d.chunkSamples*2)
	n, err := io.ReadFull(d.reader, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return BytesToInt16(buf[:n]), nil
		}
		return nil, err
	}
	return BytesToInt16(buf), nil
}

// Close reaps the subprocess. A non-zero exit surfaces as *DecodeError so
// callers can distinguish a decode failure from a clean end of stream.
func (d *FFmpegDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.stdout.Close()
	if err := d.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &DecodeError{ExitCode: exitErr.ExitCode()}
		}
		return fmt.Errorf("failed to reap ffmpeg: %w", err)
	}
	return nil
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeOutput struct {
	Format ffprobeFormat `json:"format"`
}

// ProbeDuration runs ffprobe against the input. It returns the duration in
// seconds and live=false for finite sources; live=true when ffprobe reports
// no duration (a continuous stream).
func ProbeDuration(ctx context.Context, input string) (duration float64, live bool, err error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		input,
	).Output()
	if err != nil {
		return 0, false, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, false, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if probe.Format.Duration == "" {
		return 0, true, nil
	}

	duration, err = strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed ffprobe duration %q: %w", probe.Format.Duration, err)
	}
	return duration, false, nil
}
