package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/andresmejia3/kiosk/internal/types"
	"github.com/andresmejia3/kiosk/internal/utils"
)

const megabyte = 1024 * 1024

// ErrFFmpegMissing is returned by Start when no ffmpeg binary is on PATH.
var ErrFFmpegMissing = errors.New("ffmpeg not found in PATH")

// Source produces frames for the lifetime of the pipeline.
type Source interface {
	Start(ctx context.Context) error
	Close() error
}

// FFmpegSource reads the camera through an ffmpeg subprocess and publishes
// every decoded frame to a Mailbox.
type FFmpegSource struct {
	spec   utils.CaptureSpec
	out    *Mailbox
	logger *zap.Logger

	mu     sync.Mutex
	cmd    *utils.SafeCommand
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewFFmpegSource(spec utils.CaptureSpec, out *Mailbox, logger *zap.Logger) *FFmpegSource {
	return &FFmpegSource{
		spec:   spec,
		out:    out,
		logger: logger.Named("capture"),
	}
}

// Start launches ffmpeg and the reader goroutine. A stream that fails after
// starting is logged once and never restarted.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("capture source already started")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFFmpegMissing
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := utils.NewFFmpegCaptureCmd(runCtx, s.spec)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("could not create decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("could not start decoder: %w", err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("camera stream acquired",
		zap.String("device", s.spec.Device),
		zap.String("input_format", s.spec.InputFormat),
		zap.Bool("mjpeg", s.spec.MJPEG),
		zap.Int("width", s.spec.Width),
		zap.Int("height", s.spec.Height))

	go s.run(runCtx, cmd, stdout)
	return nil
}

func (s *FFmpegSource) run(ctx context.Context, cmd *utils.SafeCommand, stdout io.Reader) {
	defer close(s.done)

	var readErr error
	if s.spec.MJPEG {
		readErr = ReadMJPEGFrames(stdout, s.spec.Width, s.spec.Height, s.out.Publish)
	} else {
		readErr = ReadRawFrames(stdout, s.spec.Width, s.spec.Height, s.out.Publish)
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		// Shutdown killed the process, nothing to report.
		return
	}

	err := errors.Join(readErr, waitErr)
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.logger.Error("camera stream ended",
		zap.Error(err),
		zap.String("device", s.spec.Device),
		zap.String("ffmpeg_stderr", strings.TrimSpace(cmd.Stderr.String())))
}

// Done is closed once the reader goroutine exits. Nil before Start.
func (s *FFmpegSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err reports why the stream ended on its own, if it did.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close kills ffmpeg and waits for the reader to exit.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// ReadRawFrames reads fixed-size RGBA frames until r is exhausted.
// A clean EOF on a frame boundary returns nil.
func ReadRawFrames(r io.Reader, width, height int, publish func(*types.Frame)) error {
	frameSize := width * height * 4
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("truncated frame: %w", err)
			}
			return err
		}
		publish(&types.Frame{
			Timestamp: time.Now(),
			Width:     width,
			Height:    height,
			Pix:       buf,
		})
	}
}

// ReadMJPEGFrames splits r on JPEG markers, decodes each image and converts
// it to an RGBA frame of the requested size.
func ReadMJPEGFrames(r io.Reader, width, height int, publish func(*types.Frame)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			return fmt.Errorf("could not decode jpeg frame: %w", err)
		}
		publish(toFrame(img, width, height))
	}
	return scanner.Err()
}

func toFrame(img image.Image, width, height int) *types.Frame {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return &types.Frame{
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Pix:       dst.Pix,
	}
}
