package services

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/upcycleai/internal/domain"
	"github.com/yungbote/upcycleai/internal/platform/audio"
	"github.com/yungbote/upcycleai/internal/platform/logger"
)

// Tutorials tracks the open step-by-step sessions.
type Tutorials interface {
	Open(projectID string) (*TutorialSession, error)
	Get(sessionID string) (*TutorialSession, bool)
	Close(sessionID string) bool
	CloseAll()
}

type tutorials struct {
	log       *logger.Logger
	companion Companion
	projects  ProjectCollection
	profiles  ProfileStore
	gateway   AnalysisGateway
	cache     ArtifactCache
	notify    ProjectNotifier
	player    audio.PlayerConfig

	mu       sync.Mutex
	sessions map[string]*TutorialSession
}

func NewTutorials(
	log *logger.Logger,
	companion Companion,
	projects ProjectCollection,
	profiles ProfileStore,
	gateway AnalysisGateway,
	cache ArtifactCache,
	notify ProjectNotifier,
	player audio.PlayerConfig,
) Tutorials {
	return &tutorials{
		log:       log.With("service", "Tutorials"),
		companion: companion,
		projects:  projects,
		profiles:  profiles,
		gateway:   gateway,
		cache:     cache,
		notify:    notify,
		player:    player,
		sessions:  make(map[string]*TutorialSession),
	}
}

func (t *tutorials) Open(projectID string) (*TutorialSession, error) {
	p, ok := t.projects.Find(projectID)
	if !ok {
		return nil, ErrProjectNotFound
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &TutorialSession{
		ID:           uuid.NewString(),
		Project:      p,
		OriginalItem: t.companion.OriginalItem(projectID),
		Tier:         domain.TierFor(t.profiles.Snapshot().IsPremium),
		Steps:        domain.NormalizeSteps(p.Steps),
		gateway:      t.gateway,
		cache:        t.cache,
		notify:       t.notify,
		player:       audio.NewPlayer(t.player),
		ctx:          ctx,
		cancel:       cancel,
		images:       make(map[int][]byte),
		audio:        make(map[int][]byte),
	}
	s.log = t.log.With("session_id", s.ID, "project_id", projectID)

	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
	s.log.Debug("tutorial opened", "steps", len(s.Steps))
	return s, nil
}

func (t *tutorials) Get(sessionID string) (*TutorialSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	return s, ok
}

func (t *tutorials) Close(sessionID string) bool {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (t *tutorials) CloseAll() {
	t.mu.Lock()
	open := t.sessions
	t.sessions = make(map[string]*TutorialSession)
	t.mu.Unlock()
	for _, s := range open {
		s.Close()
	}
}

// TutorialSession walks one project's steps. Closing it cancels in-flight requests
// and stops playback; results that arrive afterwards are discarded.
type TutorialSession struct {
	ID           string
	Project      domain.UpcycleProject
	OriginalItem string
	Tier         domain.QualityTier
	Steps        []domain.StepDetail

	log     *logger.Logger
	gateway AnalysisGateway
	cache   ArtifactCache
	notify  ProjectNotifier
	player  *audio.Player

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	images map[int][]byte
	audio  map[int][]byte
}

func (s *TutorialSession) step(i int) (domain.StepDetail, error) {
	if i < 0 || i >= len(s.Steps) {
		return domain.StepDetail{}, ErrStepOutOfRange
	}
	return s.Steps[i], nil
}

// scoped derives a context that ends with either the caller or the session.
func (s *TutorialSession) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *TutorialSession) cached(m map[int][]byte, i int) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrSessionClosed
	}
	v, ok := m[i]
	return v, ok, nil
}

// keep stores a late-arriving result only while the session is open.
func (s *TutorialSession) keep(m map[int][]byte, i int, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Debug("dropping result for closed session", "step", i)
		return ErrSessionClosed
	}
	if _, ok := m[i]; !ok {
		m[i] = v
	}
	return nil
}

func (s *TutorialSession) StepImage(ctx context.Context, i int) ([]byte, error) {
	st, err := s.step(i)
	if err != nil {
		return nil, err
	}
	if v, ok, err := s.cached(s.images, i); err != nil || ok {
		return v, err
	}

	ctx, cancel := s.scoped(ctx)
	defer cancel()
	key := StepImageKey(s.Project.ID, i)
	img, err := s.cache.GetOrCreate(ctx, key, ArtifactImage, func(ctx context.Context) ([]byte, error) {
		return s.gateway.StepImage(ctx, st.Instruction, s.Project.Title, s.OriginalItem, s.Tier)
	})
	if s.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	if err := s.keep(s.images, i, img); err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.ArtifactReady(key, s.Project.ID, ArtifactImage)
	}
	return img, nil
}

// RetryStepImage asks again after a failure. Failures are never cached, so a step
// that already has an image returns it without another request.
func (s *TutorialSession) RetryStepImage(ctx context.Context, i int) ([]byte, error) {
	return s.StepImage(ctx, i)
}

// StepAudio returns the narration of step i as raw PCM.
func (s *TutorialSession) StepAudio(ctx context.Context, i int) ([]byte, error) {
	st, err := s.step(i)
	if err != nil {
		return nil, err
	}
	if v, ok, err := s.cached(s.audio, i); err != nil || ok {
		return v, err
	}

	ctx, cancel := s.scoped(ctx)
	defer cancel()
	key := StepAudioKey(s.Project.ID, i)
	pcm, err := s.cache.GetOrCreate(ctx, key, ArtifactAudio, func(ctx context.Context) ([]byte, error) {
		return s.gateway.Speech(ctx, st.ReadAloudText())
	})
	if s.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	if err := s.keep(s.audio, i, pcm); err != nil {
		return nil, err
	}
	return pcm, nil
}

// ReadAloud narrates step i into sink. Any playback in progress is stopped first.
// onDone fires at natural end (or on a sink error) but never after StopAudio.
func (s *TutorialSession) ReadAloud(ctx context.Context, i int, sink io.Writer, onDone func(error)) error {
	s.player.Stop()
	pcm, err := s.StepAudio(ctx, i)
	if err != nil {
		return err
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	s.player.Play(s.ctx, pcm, sink, onDone)
	return nil
}

func (s *TutorialSession) StopAudio() { s.player.Stop() }

func (s *TutorialSession) Playing() bool { return s.player.Playing() }

func (s *TutorialSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TutorialSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.player.Stop()
	s.log.Debug("tutorial closed")
}
