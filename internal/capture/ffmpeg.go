package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/gokit/process"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/pkg/logger"
)

// ffmpegGracePeriod is how long ffmpeg gets to flush after SIGTERM
const ffmpegGracePeriod = 5 * time.Second

// earlyExitTolerance absorbs the burst-on-connect buffer some relays send,
// which lets ffmpeg finish slightly faster than real time
const earlyExitTolerance = 2 * time.Second

// firstAudioPoll is how often the output file is checked while waiting for
// the stream to connect
const firstAudioPoll = 100 * time.Millisecond

// errNoAudio cancels an ffmpeg run whose stream never delivered audio
var errNoAudio = errors.New("no audio received")

// ffmpegArgs builds the recording command line. connectTimeout bounds every
// network read of the input, zero leaves ffmpeg's default.
func ffmpegArgs(streamURL string, duration, connectTimeout time.Duration, bitrate, output string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
	}
	if connectTimeout > 0 {
		args = append(args, "-rw_timeout", strconv.FormatInt(connectTimeout.Microseconds(), 10))
	}
	return append(args,
		"-i", streamURL,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', -1, 64),
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", bitrate,
		"-y",
		output,
	)
}

// recordFFmpeg lets ffmpeg pull and transcode the stream. The ffmpeg process
// group gets SIGTERM when ctx expires and SIGKILL after a grace period. A
// run that has written nothing by the connect timeout is stopped and
// reported unreachable.
func (c *Capturer) recordFFmpeg(ctx context.Context, freq frequencies.Frequency, duration time.Duration) (*Artifact, error) {
	file, err := c.createTempFile(freq.Airport, "mp3")
	if err != nil {
		return nil, err
	}
	file.Close()

	artifact := &Artifact{
		Path:      file.Name(),
		Airport:   freq.Airport,
		Format:    "mp3",
		StartedAt: time.Now(),
		Nominal:   duration,
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go c.awaitFirstAudio(runCtx, cancel, artifact.Path)

	result, runErr := process.Run(runCtx, process.Command{
		Binary:      c.config.FFmpegPath,
		Args:        ffmpegArgs(freq.StreamURL, duration, c.config.ConnectTimeout, c.config.FFmpegBitrate, artifact.Path),
		GracePeriod: ffmpegGracePeriod,
	})
	artifact.Captured = time.Since(artifact.StartedAt)

	if errors.Is(runErr, exec.ErrNotFound) {
		_ = artifact.Remove()
		return nil, fmt.Errorf("ffmpeg binary not available: %w", runErr)
	}

	if info, statErr := os.Stat(artifact.Path); statErr == nil {
		artifact.Size = info.Size()
	}

	if runErr != nil {
		var stderr string
		if result != nil {
			stderr = tail(string(result.Stderr), 512)
		}
		c.logger.Warn("ffmpeg exited with error",
			logger.Airport(freq.Airport),
			logger.Error(runErr),
			logger.String("stderr", stderr))

		if artifact.Size == 0 {
			_ = artifact.Remove()
			if errors.Is(context.Cause(runCtx), errNoAudio) {
				return nil, fmt.Errorf("%w: no audio within %s", ErrStreamUnreachable, c.config.ConnectTimeout)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrStreamUnreachable, ctxErr)
			}
			return nil, fmt.Errorf("%w: %s", ErrStreamUnreachable, tail(stderr, 256))
		}

		// Whatever made it to disk is still usable
		artifact.Truncated = true
		return artifact, nil
	}

	artifact.Truncated = artifact.Captured+earlyExitTolerance < duration
	return artifact, nil
}

// awaitFirstAudio cancels the run with errNoAudio when nothing reaches path
// within the connect timeout
func (c *Capturer) awaitFirstAudio(ctx context.Context, cancel context.CancelCauseFunc, path string) {
	if c.config.ConnectTimeout <= 0 {
		return
	}

	deadline := time.NewTimer(c.config.ConnectTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(firstAudioPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hasData(path) {
				return
			}
		case <-deadline.C:
			if !hasData(path) {
				cancel(errNoAudio)
			}
			return
		}
	}
}

func hasData(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// tail returns at most n trailing bytes of s
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
