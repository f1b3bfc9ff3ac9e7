package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg logs)
// so a camera that dies early still leaves its reason behind.
type SafeCommand struct {
	*exec.Cmd
	Stderr *SyncBuffer
}

// SyncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *SyncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &SyncBuffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps ffmpeg logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	FprintError(os.Stderr, context, err, s)
}

// FprintError is ShowError with an explicit destination.
func FprintError(w io.Writer, context string, err error, s *SafeCommand) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 KIOSK ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(w, "\nFFMPEG LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// --- 2. Camera Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CaptureSpec describes what the camera pipe should produce.
type CaptureSpec struct {
	Device      string
	InputFormat string // ffmpeg -f for the input; empty lets ffmpeg probe
	Width       int
	Height      int
	MJPEG       bool // image2pipe MJPEG instead of raw RGBA
}

// FrameSize is the byte size of one raw RGBA frame.
func (s CaptureSpec) FrameSize() int {
	return s.Width * s.Height * 4
}

// FFmpegCaptureArgs builds the ffmpeg argument list for a camera pipe.
// Output is scaled to the requested size so every frame matches the canvas.
func FFmpegCaptureArgs(spec CaptureSpec) []string {
	// -hide_banner and -loglevel error keep the stderr buffer small
	args := []string{"-hide_banner", "-loglevel", "error"}
	if spec.InputFormat != "" {
		args = append(args, "-f", spec.InputFormat)
	}
	args = append(args,
		"-i", spec.Device,
		"-vf", "scale="+strconv.Itoa(spec.Width)+":"+strconv.Itoa(spec.Height),
	)

	if spec.MJPEG {
		return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")
	}
	return append(args, "-pix_fmt", "rgba", "-f", "rawvideo", "-")
}

// NewFFmpegCaptureCmd creates the camera decoder pipe. Frames are written to Stdout.
func NewFFmpegCaptureCmd(ctx context.Context, spec CaptureSpec) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", FFmpegCaptureArgs(spec)...)
}
