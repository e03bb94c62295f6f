// Package scanner pulls frames from a camera source, finds QR codes in them
// and hands the decoded text to an attendance session.
package scanner

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

var (
	// ErrDeviceLost is returned by a FrameSource that can no longer deliver
	// frames. It ends the loop.
	ErrDeviceLost = errors.New("scanner: device lost")
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("scanner: loop already running")
	// ErrStopped is returned when starting a loop that was stopped.
	ErrStopped = errors.New("scanner: loop stopped")
)

// FrameSource delivers camera frames. Frame reports ready=false when no new
// frame is available yet.
type FrameSource interface {
	Open(ctx context.Context) error
	Frame(ctx context.Context) (img image.Image, ready bool, err error)
	Close() error
}

// Decoder extracts QR text from a frame.
type Decoder func(img image.Image) (string, error)

// Marker receives decoded payloads.
type Marker interface {
	MarkScanned(ctx context.Context, sessionID, payload string) (*models.AttendanceRecord, error)
}

// EventType names a loop event.
type EventType string

const (
	EventMarked         EventType = "marked"
	EventRejected       EventType = "rejected"
	EventInvalidPayload EventType = "invalid_payload"
	EventDeviceError    EventType = "device_error"
)

// Event reports the outcome of a decoded frame or a device failure.
type Event struct {
	Type      EventType
	SessionID string
	Payload   string
	Record    *models.AttendanceRecord
	Err       error
	At        time.Time
}

// Options tunes a Loop.
type Options struct {
	Interval      time.Duration
	Cooldown      time.Duration
	MaxFrameWidth int
	EventBuffer   int
	// OnEvent is called synchronously from the loop goroutine. It must not
	// call Stop, which waits for that goroutine; use go l.Stop() instead.
	OnEvent func(Event)
	Logger  *zap.Logger
}

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultCooldown = 1500 * time.Millisecond
)

type state int

const (
	stateIdle state = iota
	stateStarting
	stateRunning
	stateStopped
)

// Loop scans frames for one session. A Loop runs at most once.
type Loop struct {
	sessionID string
	source    FrameSource
	decode    Decoder
	marker    Marker
	opts      Options
	logger    *zap.Logger

	events chan Event
	done   chan struct{}
	finish sync.Once

	mu     sync.Mutex
	state  state
	cancel context.CancelFunc
}

// New builds a loop for sessionID.
func New(sessionID string, source FrameSource, decode Decoder, marker Marker, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		sessionID: sessionID,
		source:    source,
		decode:    decode,
		marker:    marker,
		opts:      opts,
		logger:    logger.With(zap.String("session_id", sessionID)),
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
	}
}

// Events is closed once the loop has finished.
func (l *Loop) Events() <-chan Event { return l.events }

// Done is closed once the loop has finished.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Start opens the source and begins scanning in the background. The loop
// outlives ctx; use Stop to end it.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case stateStarting, stateRunning:
		l.mu.Unlock()
		return ErrAlreadyRunning
	case stateStopped:
		l.mu.Unlock()
		return ErrStopped
	}
	l.state = stateStarting
	l.mu.Unlock()

	if err := l.source.Open(ctx); err != nil {
		l.mu.Lock()
		l.state = stateStopped
		l.mu.Unlock()
		l.close()
		l.logger.Warn("camera unavailable", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrDeviceUnavailable.Code, appErrors.ErrDeviceUnavailable.Status, appErrors.ErrDeviceUnavailable.Message)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateStopped {
		_ = l.source.Close()
		l.close()
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.state = stateRunning
	go l.run(runCtx)
	l.logger.Info("scan loop started")
	return nil
}

// Stop ends the loop and waits for it. It is safe to call at any time and
// more than once, but not from OnEvent.
func (l *Loop) Stop() {
	l.mu.Lock()
	prev := l.state
	l.state = stateStopped
	cancel := l.cancel
	l.mu.Unlock()

	switch prev {
	case stateIdle:
		l.close()
	case stateRunning:
		cancel()
	}
	<-l.done
}

func (l *Loop) close() {
	l.finish.Do(func() {
		close(l.events)
		close(l.done)
	})
}

func (l *Loop) run(ctx context.Context) {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.logger.Warn("failed to close frame source", zap.Error(err))
		}
		l.mu.Lock()
		l.state = stateStopped
		l.mu.Unlock()
		l.logger.Info("scan loop stopped")
		l.close()
	}()

	timer := time.NewTimer(l.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait, stop := l.step(ctx)
		if stop {
			return
		}
		timer.Reset(wait)
	}
}

// step processes one frame and returns how long to wait before the next.
func (l *Loop) step(ctx context.Context) (time.Duration, bool) {
	img, ready, err := l.source.Frame(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceLost) {
			l.emit(Event{Type: EventDeviceError, Err: err})
			return 0, true
		}
		if ctx.Err() != nil {
			return 0, true
		}
		l.logger.Debug("frame error", zap.Error(err))
		return l.opts.Interval, false
	}
	if !ready || img == nil {
		return l.opts.Interval, false
	}

	text, err := l.decode(l.prepare(img))
	if err != nil || text == "" {
		return l.opts.Interval, false
	}

	rec, err := l.marker.MarkScanned(ctx, l.sessionID, text)
	switch {
	case err == nil:
		l.emit(Event{Type: EventMarked, Payload: text, Record: rec})
	case errors.Is(err, appErrors.ErrMalformedPayload):
		l.emit(Event{Type: EventInvalidPayload, Payload: text, Err: err})
		return l.opts.Interval, false
	case errors.Is(err, appErrors.ErrSessionNotActive):
		return 0, true
	default:
		l.emit(Event{Type: EventRejected, Payload: text, Err: err})
	}
	return l.opts.Cooldown, false
}

// prepare shrinks wide frames and drops colour before decoding.
func (l *Loop) prepare(img image.Image) image.Image {
	if w := l.opts.MaxFrameWidth; w > 0 && img.Bounds().Dx() > w {
		img = imaging.Resize(img, w, 0, imaging.Linear)
	}
	return imaging.Grayscale(img)
}

func (l *Loop) emit(e Event) {
	e.SessionID = l.sessionID
	e.At = time.Now().UTC()
	if l.opts.OnEvent != nil {
		l.opts.OnEvent(e)
	}
	select {
	case l.events <- e:
	default:
		l.logger.Warn("scan event dropped", zap.String("type", string(e.Type)))
	}
}
