package mapview

import (
	"context"
	"dispatch-map-service/internal/domain"
	"dispatch-map-service/internal/ports"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder receives map metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	AddMapSessions(delta int)
	AddMarkerContents(delta int)
	IncMapUpdate()
	IncDrivingTimeLookup(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AddMapSessions(int)          {}
func (nopRecorder) AddMarkerContents(int)       {}
func (nopRecorder) IncMapUpdate()               {}
func (nopRecorder) IncDrivingTimeLookup(string) {}

// StoreConfig holds the defaults applied to every new session.
type StoreConfig struct {
	Center             domain.Coordinates
	Zoom               int
	MaxPoints          int
	MinPointsInCluster int
}

// Store keeps the mounted map sessions by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg       StoreConfig
	distances ports.DistanceProvider
	content   ContentBuilder
	rec       Recorder
	log       zerolog.Logger
}

func NewStore(cfg StoreConfig, distances ports.DistanceProvider, rec Recorder, log zerolog.Logger) *Store {
	if rec == nil {
		rec = nopRecorder{}
	}

	var provider ports.DistanceProvider
	if distances != nil {
		provider = &countingProvider{next: distances, rec: rec}
	}

	return &Store{
		sessions:  make(map[string]*Session),
		cfg:       cfg,
		distances: provider,
		content:   TrackedContentBuilder(DefaultContentBuilder, rec.AddMarkerContents),
		rec:       rec,
		log:       log,
	}
}

// CreateOptions overrides the store defaults for one session. Zero values
// keep the default.
type CreateOptions struct {
	Center             *domain.Coordinates
	Zoom               *int
	Width              int
	Height             int
	MaxPoints          *int
	MinPointsInCluster *int
}

// Create mounts a new session and registers it.
func (s *Store) Create(opts CreateOptions) (*Session, error) {
	so := SessionOptions{
		Center: s.cfg.Center,
		Zoom:   s.cfg.Zoom,
		Width:  opts.Width,
		Height: opts.Height,
		Markers: Options{
			MaxPoints:          s.cfg.MaxPoints,
			MinPointsInCluster: s.cfg.MinPointsInCluster,
			Distances:          s.distances,
			ContentBuilder:     s.content,
		},
	}
	if opts.Center != nil {
		so.Center = *opts.Center
	}
	if opts.Zoom != nil {
		so.Zoom = *opts.Zoom
	}
	if opts.MaxPoints != nil {
		so.Markers.MaxPoints = *opts.MaxPoints
	}
	if opts.MinPointsInCluster != nil {
		so.Markers.MinPointsInCluster = *opts.MinPointsInCluster
	}

	id := uuid.NewString()
	sess := NewSession(id, so)
	if err := sess.Mount(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.rec.AddMapSessions(1)
	s.log.Info().Str("session_id", id).Str("center", so.Center.Fingerprint()).Int("zoom", so.Zoom).Msg("map session mounted")
	return sess, nil
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// UpdateFeatures applies a feature set to a session and counts the update.
func (s *Store) UpdateFeatures(sess *Session, points []domain.PointFeature, lines []domain.LineFeature) error {
	if err := sess.UpdateFeatures(points, lines); err != nil {
		return err
	}
	s.rec.IncMapUpdate()
	return nil
}

// Remove unmounts and forgets a session. It reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}

	sess.Unmount()
	s.rec.AddMapSessions(-1)
	s.log.Info().Str("session_id", id).Msg("map session unmounted")
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close unmounts every session.
func (s *Store) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Unmount()
		s.rec.AddMapSessions(-1)
	}
}

type countingProvider struct {
	next ports.DistanceProvider
	rec  Recorder
}

func (p *countingProvider) GetDistance(ctx context.Context, origin, destination domain.Coordinates) (ports.DistanceResult, error) {
	res, err := p.next.GetDistance(ctx, origin, destination)
	switch {
	case err == nil:
		p.rec.IncDrivingTimeLookup("ok")
	case errors.Is(err, ports.ErrNotFound):
		p.rec.IncDrivingTimeLookup("empty")
	default:
		p.rec.IncDrivingTimeLookup("error")
	}
	return res, err
}
