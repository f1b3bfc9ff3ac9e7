package recognition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andresmejia3/kiosk/internal/render"
	"github.com/andresmejia3/kiosk/internal/types"
)

type stubCanvas struct {
	mu       sync.Mutex
	overlays [][]types.FaceBox
	err      error
}

func (s *stubCanvas) DataURL() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "data:image/png;base64,AAAA", nil
}

func (s *stubCanvas) QueueOverlay(faces []types.FaceBox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays = append(s.overlays, faces)
}

func (s *stubCanvas) Overlays() [][]types.FaceBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlays
}

type funcRecognizer func(ctx context.Context, image string) (*types.RecognitionResult, error)

func (f funcRecognizer) ProcessImage(ctx context.Context, image string) (*types.RecognitionResult, error) {
	return f(ctx, image)
}

type attendanceRecorder struct {
	mu    sync.Mutex
	calls []*types.RecognitionResult
}

func (a *attendanceRecorder) handle(ctx context.Context, res *types.RecognitionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, res)
}

func (a *attendanceRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func aliceResult() *types.RecognitionResult {
	return &types.RecognitionResult{
		Faces:         []types.FaceBox{{Top: 10, Right: 110, Bottom: 90, Left: 20, Name: "Alice"}},
		NewAttendance: true,
	}
}

func TestTickIssuesRequestPerTickWithoutWaiting(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	started := 0
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		mu.Lock()
		started++
		mu.Unlock()
		select {
		case <-release:
			return &types.RecognitionResult{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	c := New(Config{Interval: time.Hour, Timeout: time.Minute}, &stubCanvas{}, rec, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !c.Tick(ctx) {
			t.Fatalf("tick %d was not issued", i)
		}
	}

	if got := c.Stats().Issued; got != 5 {
		t.Errorf("Issued = %d, want 5", got)
	}
	close(release)
	c.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if started != 5 {
		t.Errorf("recognizer called %d times, want 5", started)
	}
	if c.Stats().InFlight != 0 {
		t.Errorf("InFlight = %d after completion", c.Stats().InFlight)
	}
}

func TestRunKeepsTickingWhileRequestsHang(t *testing.T) {
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := New(Config{Interval: 10 * time.Millisecond, Timeout: time.Minute}, &stubCanvas{}, rec, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(75 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	stats := c.Stats()
	if stats.Issued < 3 {
		t.Errorf("Issued = %d, expected the ticker to keep firing", stats.Issued)
	}
	if stats.InFlight != 0 {
		t.Errorf("InFlight = %d after Run returned", stats.InFlight)
	}
}

func TestAliceResponse(t *testing.T) {
	canvas := &stubCanvas{}
	recorder := &attendanceRecorder{}
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		return aliceResult(), nil
	})
	c := New(Config{Interval: time.Hour}, canvas, rec, recorder.handle, zap.NewNop())

	c.Tick(context.Background())
	c.wg.Wait()

	overlays := canvas.Overlays()
	if len(overlays) != 1 || len(overlays[0]) != 1 || overlays[0][0].Name != "Alice" {
		t.Fatalf("overlay = %+v", overlays)
	}
	if recorder.count() != 1 {
		t.Errorf("attendance handler called %d times, want 1", recorder.count())
	}
	if recorder.calls[0].Seq != 1 {
		t.Errorf("Seq = %d, want 1", recorder.calls[0].Seq)
	}
}

func TestEmptyResponse(t *testing.T) {
	canvas := &stubCanvas{}
	recorder := &attendanceRecorder{}
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		return &types.RecognitionResult{Faces: []types.FaceBox{}, NewAttendance: false}, nil
	})
	c := New(Config{Interval: time.Hour}, canvas, rec, recorder.handle, zap.NewNop())

	c.Tick(context.Background())
	c.wg.Wait()

	overlays := canvas.Overlays()
	if len(overlays) != 1 || len(overlays[0]) != 0 {
		t.Errorf("expected one empty overlay, got %+v", overlays)
	}
	if recorder.count() != 0 {
		t.Errorf("expected no attendance signal, got %d", recorder.count())
	}
	if c.Stats().Applied != 1 {
		t.Errorf("Applied = %d, want 1", c.Stats().Applied)
	}
}

func TestEmptyResponseClearsQueuedOverlay(t *testing.T) {
	surface := render.NewSurface(160, 120)
	var calls atomic.Int64
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		if calls.Add(1) == 1 {
			return aliceResult(), nil
		}
		return &types.RecognitionResult{Faces: []types.FaceBox{}}, nil
	})
	c := New(Config{Interval: time.Hour}, surface, rec, nil, zap.NewNop())
	ctx := context.Background()

	c.Tick(ctx)
	c.wg.Wait()
	c.Tick(ctx)
	c.wg.Wait()

	if stats := c.Stats(); stats.Applied != 2 || stats.Stale != 0 {
		t.Fatalf("stats = %+v, want 2 applied", stats)
	}

	surface.Paint(&types.Frame{Seq: 1, Width: 160, Height: 120, Pix: make([]byte, 160*120*4)})
	if overlay := surface.Overlay(); len(overlay) != 0 {
		t.Errorf("older overlay drawn after an empty newer result: %+v", overlay)
	}
}

func TestStaleResponseSkipsOverlay(t *testing.T) {
	canvas := &stubCanvas{}
	recorder := &attendanceRecorder{}
	c := New(Config{Interval: time.Hour}, canvas, nil, recorder.handle, zap.NewNop())
	ctx := context.Background()

	newer := aliceResult()
	newer.Seq = 2
	older := &types.RecognitionResult{
		Faces:         []types.FaceBox{{Top: 1, Right: 2, Bottom: 3, Left: 0, Name: "Bob"}},
		NewAttendance: true,
		Seq:           1,
	}

	c.apply(ctx, newer)
	c.apply(ctx, older)

	overlays := canvas.Overlays()
	if len(overlays) != 1 || overlays[0][0].Name != "Alice" {
		t.Errorf("stale response reached the overlay: %+v", overlays)
	}
	if c.Stats().Stale != 1 {
		t.Errorf("Stale = %d, want 1", c.Stats().Stale)
	}
	if recorder.count() != 2 {
		t.Errorf("stale new attendance should still be forwarded, got %d", recorder.count())
	}
}

func TestMaxInFlightSkipsTicks(t *testing.T) {
	release := make(chan struct{})
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		<-release
		return &types.RecognitionResult{}, nil
	})
	c := New(Config{Interval: time.Hour, MaxInFlight: 1}, &stubCanvas{}, rec, nil, zap.NewNop())
	ctx := context.Background()

	if !c.Tick(ctx) {
		t.Fatal("first tick should be issued")
	}
	if c.Tick(ctx) {
		t.Error("second tick should be skipped while one request is pending")
	}
	close(release)
	c.wg.Wait()

	if stats := c.Stats(); stats.Issued != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFailuresAreLoggedNotRetried(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	calls := 0
	rec := funcRecognizer(func(ctx context.Context, image string) (*types.RecognitionResult, error) {
		calls++
		return nil, errors.New("request failed with status 500: boom")
	})
	canvas := &stubCanvas{}
	c := New(Config{Interval: time.Hour}, canvas, rec, nil, zap.New(core))

	c.Tick(context.Background())
	c.wg.Wait()

	if calls != 1 {
		t.Errorf("recognizer called %d times, want 1", calls)
	}
	if logs.Len() != 1 {
		t.Errorf("expected one error log, got %d", logs.Len())
	}
	if len(canvas.Overlays()) != 0 || c.Stats().Failed != 1 {
		t.Errorf("failure should not draw: %+v", c.Stats())
	}
}

func TestCanvasEncodeFailure(t *testing.T) {
	c := New(Config{Interval: time.Hour}, &stubCanvas{err: errors.New("encode")}, nil, nil, zap.NewNop())
	if c.Tick(context.Background()) {
		t.Error("tick should not be issued without an image")
	}
	if c.Stats().Issued != 0 || c.Stats().Failed != 1 {
		t.Errorf("stats = %+v", c.Stats())
	}
}
