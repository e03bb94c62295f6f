package scanner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
)

type fakeSource struct {
	mu      sync.Mutex
	openErr error
	frame   func() (image.Image, bool, error)
	closed  bool
}

func (s *fakeSource) Open(context.Context) error { return s.openErr }

func (s *fakeSource) Frame(context.Context) (image.Image, bool, error) {
	if s.frame != nil {
		return s.frame()
	}
	return image.NewGray(image.Rect(0, 0, 8, 8)), true, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// queueDecoder returns the queued payloads in order, then nothing.
func queueDecoder(payloads ...string) Decoder {
	var mu sync.Mutex
	return func(image.Image) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(payloads) == 0 {
			return "", qrcodec.ErrNoCode
		}
		p := payloads[0]
		payloads = payloads[1:]
		return p, nil
	}
}

type fakeMarker struct {
	mu       sync.Mutex
	payloads []string
	results  map[string]error
}

func (m *fakeMarker) MarkScanned(_ context.Context, sessionID, payload string) (*models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	if err := m.results[payload]; err != nil {
		return nil, err
	}
	return &models.AttendanceRecord{SessionID: sessionID, StudentID: payload, Status: models.AttendancePresent}, nil
}

func (m *fakeMarker) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.payloads...)
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "events channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scan event")
	}
	return Event{}
}

func fastOptions() Options {
	return Options{Interval: 2 * time.Millisecond, Cooldown: 5 * time.Millisecond}
}

func TestLoopDispatchesDecodedPayloads(t *testing.T) {
	src := &fakeSource{}
	marker := &fakeMarker{results: map[string]error{
		"garbage": appErrors.Clone(appErrors.ErrMalformedPayload, "Invalid QR code format"),
		"S2":      appErrors.Clone(appErrors.ErrAlreadyMarked, ""),
	}}
	var seen []EventType
	var seenMu sync.Mutex
	opts := fastOptions()
	opts.OnEvent = func(e Event) {
		seenMu.Lock()
		seen = append(seen, e.Type)
		seenMu.Unlock()
	}
	loop := New("sess-1", src, queueDecoder("S1", "garbage", "S2"), marker, opts)
	require.NoError(t, loop.Start(context.Background()))

	first := nextEvent(t, loop.Events())
	assert.Equal(t, EventMarked, first.Type)
	assert.Equal(t, "sess-1", first.SessionID)
	require.NotNil(t, first.Record)
	assert.Equal(t, "S1", first.Record.StudentID)

	second := nextEvent(t, loop.Events())
	assert.Equal(t, EventInvalidPayload, second.Type)

	third := nextEvent(t, loop.Events())
	assert.Equal(t, EventRejected, third.Type)
	assert.True(t, appErrors.HasCode(third.Err, appErrors.ErrAlreadyMarked))

	loop.Stop()
	_, open := <-loop.Events()
	assert.False(t, open)
	assert.True(t, src.isClosed())
	assert.Equal(t, []string{"S1", "garbage", "S2"}, marker.calls())

	seenMu.Lock()
	defer seenMu.Unlock()
	assert.Equal(t, []EventType{EventMarked, EventInvalidPayload, EventRejected}, seen)
}

func TestLoopPausesAfterSuccessfulDecode(t *testing.T) {
	marker := &fakeMarker{}
	decode := func(image.Image) (string, error) { return "S1", nil }
	loop := New("sess-1", &fakeSource{}, decode, marker, Options{Interval: 2 * time.Millisecond, Cooldown: time.Second})
	require.NoError(t, loop.Start(context.Background()))

	nextEvent(t, loop.Events())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, marker.calls(), 1)

	loop.Stop()
}

func TestLoopStartFailsWhenDeviceUnavailable(t *testing.T) {
	src := &fakeSource{openErr: errors.New("permission denied")}
	loop := New("sess-1", src, queueDecoder(), &fakeMarker{}, fastOptions())

	err := loop.Start(context.Background())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDeviceUnavailable))

	select {
	case <-loop.Done():
	default:
		t.Fatal("loop should be finished after a failed start")
	}
	loop.Stop()
}

func TestLoopEndsOnDeviceLost(t *testing.T) {
	src := &fakeSource{frame: func() (image.Image, bool, error) {
		return nil, false, ErrDeviceLost
	}}
	loop := New("sess-1", src, queueDecoder(), &fakeMarker{}, fastOptions())
	require.NoError(t, loop.Start(context.Background()))

	e := nextEvent(t, loop.Events())
	assert.Equal(t, EventDeviceError, e.Type)
	assert.ErrorIs(t, e.Err, ErrDeviceLost)

	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not finish")
	}
	assert.True(t, src.isClosed())
}

func TestLoopIgnoresTransientFrameErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	src := &fakeSource{frame: func() (image.Image, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls {
		case 1:
			return nil, false, errors.New("timeout")
		case 2:
			return nil, false, nil
		default:
			return image.NewGray(image.Rect(0, 0, 8, 8)), true, nil
		}
	}}
	loop := New("sess-1", src, queueDecoder("S1"), &fakeMarker{}, fastOptions())
	require.NoError(t, loop.Start(context.Background()))

	assert.Equal(t, EventMarked, nextEvent(t, loop.Events()).Type)
	loop.Stop()
}

func TestLoopStopIsIdempotent(t *testing.T) {
	loop := New("sess-1", &fakeSource{}, queueDecoder(), &fakeMarker{}, fastOptions())
	loop.Stop()
	loop.Stop()
	assert.ErrorIs(t, loop.Start(context.Background()), ErrStopped)

	running := New("sess-2", &fakeSource{}, queueDecoder(), &fakeMarker{}, fastOptions())
	require.NoError(t, running.Start(context.Background()))
	assert.ErrorIs(t, running.Start(context.Background()), ErrAlreadyRunning)
	running.Stop()
	running.Stop()
}

func TestLoopStoppedFromEventCallbackGoroutine(t *testing.T) {
	var loop *Loop
	opts := fastOptions()
	opts.OnEvent = func(e Event) {
		if e.Type == EventMarked {
			go loop.Stop()
		}
	}
	loop = New("sess-1", &fakeSource{}, queueDecoder("S1", "S2"), &fakeMarker{}, opts)
	require.NoError(t, loop.Start(context.Background()))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-loop.Events():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("loop did not stop")
		}
	}
}

func TestLoopOutlivesStartContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := New("sess-1", &fakeSource{}, queueDecoder("S1"), &fakeMarker{}, fastOptions())
	require.NoError(t, loop.Start(ctx))
	cancel()

	assert.Equal(t, EventMarked, nextEvent(t, loop.Events()).Type)
	loop.Stop()
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func writePNGAt(t *testing.T, path string, img image.Image, at time.Time) {
	t.Helper()
	writePNG(t, path, img)
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestDirectorySourceYieldsNewestFrameWrittenAfterOpen(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writePNGAt(t, filepath.Join(dir, "stale.png"), image.NewGray(image.Rect(0, 0, 5, 5)), base)

	src := NewDirectorySource(dir)
	ctx := context.Background()
	require.NoError(t, src.Open(ctx))

	_, ready, err := src.Frame(ctx)
	require.NoError(t, err)
	assert.False(t, ready, "frames present at open must not be read")

	writePNGAt(t, filepath.Join(dir, "b.png"), image.NewGray(image.Rect(0, 0, 20, 20)), base.Add(2*time.Second))
	writePNGAt(t, filepath.Join(dir, "a.png"), image.NewGray(image.Rect(0, 0, 10, 10)), base.Add(time.Second))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	img, ready, err := src.Frame(ctx)
	require.NoError(t, err)
	require.True(t, ready)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, ready, err = src.Frame(ctx)
	require.NoError(t, err)
	assert.False(t, ready, "older pending frames are skipped")

	writePNGAt(t, filepath.Join(dir, "a.png"), image.NewGray(image.Rect(0, 0, 30, 30)), base.Add(3*time.Second))
	img, ready, err = src.Frame(ctx)
	require.NoError(t, err)
	require.True(t, ready)
	assert.Equal(t, 30, img.Bounds().Dx())

	require.NoError(t, os.RemoveAll(dir))
	_, _, err = src.Frame(ctx)
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestDirectorySourceDoesNotReplayEarlierFrames(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewDirectorySource(dir)
	require.NoError(t, first.Open(ctx))
	writePNG(t, filepath.Join(dir, "frame-001.png"), image.NewGray(image.Rect(0, 0, 10, 10)))
	_, ready, err := first.Frame(ctx)
	require.NoError(t, err)
	require.True(t, ready)
	require.NoError(t, first.Close())

	second := NewDirectorySource(dir)
	require.NoError(t, second.Open(ctx))
	_, ready, err = second.Frame(ctx)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestDirectorySourceOpenRequiresDirectory(t *testing.T) {
	assert.Error(t, NewDirectorySource(filepath.Join(t.TempDir(), "missing")).Open(context.Background()))
}

func TestLoopScansQRCodeFromDirectory(t *testing.T) {
	codec := qrcodec.New(300, []int{6, 7, 8})
	qr, err := codec.Encode(qrcodec.Identity{ID: "S010", Name: "Nimali", Grade: 6})
	require.NoError(t, err)

	dir := t.TempDir()
	marker := &fakeMarker{}
	loop := New("sess-1", NewDirectorySource(dir), qrcodec.Scan, marker, Options{
		Interval:      2 * time.Millisecond,
		Cooldown:      5 * time.Millisecond,
		MaxFrameWidth: 200,
	})
	require.NoError(t, loop.Start(context.Background()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-001.png"), qr.PNG, 0o600))

	e := nextEvent(t, loop.Events())
	assert.Equal(t, EventMarked, e.Type)
	assert.Equal(t, qr.Payload, e.Payload)
	loop.Stop()
}

func TestSnapshotSource(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, 12, 12))))
	healthy := true
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	ctx := context.Background()
	src := NewSnapshotSource(srv.URL, srv.Client())
	require.NoError(t, src.Open(ctx))

	img, ready, err := src.Frame(ctx)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 12, img.Bounds().Dx())

	mu.Lock()
	healthy = false
	mu.Unlock()

	for i := 0; i < src.maxFailures-1; i++ {
		_, _, err = src.Frame(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDeviceLost)
	}
	_, _, err = src.Frame(ctx)
	assert.ErrorIs(t, err, ErrDeviceLost)
	require.NoError(t, src.Close())

	assert.Error(t, NewSnapshotSource("", nil).Open(ctx))
}
