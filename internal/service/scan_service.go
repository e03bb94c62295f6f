package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/scanner"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
)

type scanSessions interface {
	Get(sessionID string) (*models.SessionSnapshot, error)
	MarkScanned(ctx context.Context, sessionID, payload string) (*models.AttendanceRecord, error)
	OnEnd(fn func(sessionID string))
}

// FrameSourceFactory opens the camera for a session. It returns nil when no
// camera is configured.
type FrameSourceFactory func(sessionID string) scanner.FrameSource

// ScanService attaches camera scan loops to attendance sessions and decodes
// uploaded frames.
type ScanService struct {
	sessions scanSessions
	sources  FrameSourceFactory
	decode   scanner.Decoder
	options  scanner.Options
	events   EventPublisher
	metrics  *MetricsService
	logger   *zap.Logger

	mu    sync.Mutex
	loops map[string]*scanner.Loop
}

// NewScanService wires loops to sessions; ending a session stops its loop.
func NewScanService(sessions scanSessions, sources FrameSourceFactory, options scanner.Options, events EventPublisher, metrics *MetricsService, logger *zap.Logger) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ScanService{
		sessions: sessions,
		sources:  sources,
		decode:   qrcodec.Scan,
		options:  options,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		loops:    make(map[string]*scanner.Loop),
	}
	sessions.OnEnd(func(sessionID string) { s.StopCamera(sessionID) })
	return s
}

// StartCamera opens the camera and starts scanning for sessionID.
func (s *ScanService) StartCamera(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	if _, running := s.loops[sessionID]; running {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, "camera already active for this session")
	}
	var source scanner.FrameSource
	if s.sources != nil {
		source = s.sources(sessionID)
	}
	if source == nil {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrDeviceUnavailable, "no camera configured")
	}
	opts := s.options
	opts.Logger = s.logger
	opts.OnEvent = s.forward
	loop := scanner.New(sessionID, source, s.decode, s.sessions, opts)
	s.loops[sessionID] = loop
	s.mu.Unlock()

	if err := loop.Start(ctx); err != nil {
		s.mu.Lock()
		delete(s.loops, sessionID)
		s.mu.Unlock()
		return err
	}

	s.metrics.CameraStarted()
	s.publish(sessionID, models.EventCameraStarted, "")
	go s.watch(sessionID, loop)
	return nil
}

func (s *ScanService) watch(sessionID string, loop *scanner.Loop) {
	for range loop.Events() {
	}
	s.mu.Lock()
	if s.loops[sessionID] == loop {
		delete(s.loops, sessionID)
	}
	s.mu.Unlock()
	s.metrics.CameraStopped()
	s.publish(sessionID, models.EventCameraStopped, "")
}

// forward relays device failures; mark outcomes are published by the
// session itself.
func (s *ScanService) forward(e scanner.Event) {
	if e.Type != scanner.EventDeviceError {
		return
	}
	s.logger.Warn("camera lost", zap.String("session_id", e.SessionID), zap.Error(e.Err))
	s.publish(e.SessionID, models.EventDeviceError, "Camera disconnected")
}

// StopCamera stops the loop for sessionID if one is running.
func (s *ScanService) StopCamera(sessionID string) {
	s.mu.Lock()
	loop := s.loops[sessionID]
	s.mu.Unlock()
	if loop == nil {
		return
	}
	loop.Stop()
	s.mu.Lock()
	if s.loops[sessionID] == loop {
		delete(s.loops, sessionID)
	}
	s.mu.Unlock()
}

// CameraActive reports whether a loop is running for sessionID.
func (s *ScanService) CameraActive(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[sessionID]
	return ok
}

// StopAll stops every running loop.
func (s *ScanService) StopAll() {
	s.mu.Lock()
	loops := make([]*scanner.Loop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.Unlock()
	for _, l := range loops {
		l.Stop()
	}
}

// ScanImage decodes a single uploaded frame and marks the student it shows.
func (s *ScanService) ScanImage(ctx context.Context, sessionID string, frame io.Reader) (*models.AttendanceRecord, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(frame, imaging.AutoOrientation(true))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "frame is not a readable image")
	}
	text, err := s.decode(imaging.Grayscale(img))
	if err != nil {
		s.metrics.RecordScan("no_code")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "no QR code found in frame")
	}
	return s.sessions.MarkScanned(ctx, sessionID, text)
}

func (s *ScanService) publish(sessionID string, kind models.SessionEventType, message string) {
	if s.events == nil {
		return
	}
	s.events.Publish(sessionID, models.SessionEvent{Type: kind, SessionID: sessionID, Message: message, At: time.Now().UTC()})
}
