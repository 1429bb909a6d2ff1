package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Processor runs one video. *Pipeline implements it.
type Processor interface {
	ProcessVideo(ctx context.Context, path string, cb Callbacks) (*Result, error)
}

// Session processes a playlist in order and keeps the results for readers
// such as the HTTP API.
type Session struct {
	ID string

	logger    zerolog.Logger
	processor Processor

	mu      sync.RWMutex
	results []*Result
	byName  map[string]*Result
	current string
	state   State
}

func NewSession(logger zerolog.Logger, processor Processor) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		logger:    logger.With().Str("component", "session").Str("session", id).Logger(),
		processor: processor,
		byName:    make(map[string]*Result),
	}
}

// Run processes paths one after another. A failing video is logged and
// skipped; cancellation stops the playlist and is returned.
func (s *Session) Run(ctx context.Context, paths []string, cb Callbacks) error {
	s.logger.Info().Int("videos", len(paths)).Msg("session started")

	userState := cb.StateChanged
	cb.StateChanged = func(video string, state State) {
		s.mu.Lock()
		s.current, s.state = video, state
		s.mu.Unlock()
		if userState != nil {
			userState(video, state)
		}
	}

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().Int("remaining", len(paths)-i).Msg("session cancelled")
			return err
		}

		res, err := s.processor.ProcessVideo(ctx, path, cb)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.logger.Warn().Str("video", path).Msg("session cancelled")
				return ctxErr
			}
			s.logger.Error().Err(err).Str("video", path).Msg("video failed")
			continue
		}
		s.add(res)
	}

	s.mu.Lock()
	s.current, s.state = "", Idle
	s.mu.Unlock()

	s.logger.Info().Int("processed", len(s.Results())).Msg("session finished")
	return nil
}

// Add records a result produced outside Run, such as one loaded from disk.
func (s *Session) Add(res *Result) {
	s.add(res)
}

func (s *Session) add(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byName[res.Name]; ok {
		for i, r := range s.results {
			if r == old {
				s.results[i] = res
				break
			}
		}
	} else {
		s.results = append(s.results, res)
	}
	s.byName[res.Name] = res
}

// Results returns the finished videos in playlist order.
func (s *Session) Results() []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Result, len(s.results))
	copy(out, s.results)
	return out
}

// Lookup returns the result for a video base name.
func (s *Session) Lookup(name string) (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byName[name]
	return r, ok
}

// Current returns the video being processed and its state. The name is
// empty when the session is idle.
func (s *Session) Current() (string, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.state
}
