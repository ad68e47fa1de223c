package notes

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/clock"
	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/metrics"
)

// ErrInvalidParams wraps validation failures so handlers can answer 400.
var ErrInvalidParams = errors.New("invalid note parameters")

// Config tunes the service.
type Config struct {
	MaxContentLength int
	EventsTopic      string
}

// Service validates input, stamps creation times and publishes mutation events.
type Service struct {
	store     Store
	clock     clock.Clock
	publisher Publisher
	ids       IDGenerator
	cfg       Config
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewService wires a Service. publisher and ids may be nil to disable events.
func NewService(
	store Store,
	clk clock.Clock,
	publisher Publisher,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:     store,
		clock:     clk,
		publisher: publisher,
		ids:       ids,
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logging.OrNop(logger),
	}
}

// Active lists notes that have not been deleted.
func (s *Service) Active(ctx context.Context) ([]Note, error) {
	notes, err := s.store.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list active notes: %w", err)
	}
	return notes, nil
}

// Deleted lists soft-deleted notes.
func (s *Service) Deleted(ctx context.Context) ([]Note, error) {
	notes, err := s.store.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list deleted notes: %w", err)
	}
	return notes, nil
}

// Get loads one note.
func (s *Service) Get(ctx context.Context, id int64) (Note, error) {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return Note{}, fmt.Errorf("get note %d: %w", id, err)
	}
	return note, nil
}

// Create validates params and stores a note stamped with the current time.
func (s *Service) Create(ctx context.Context, params Params) (Note, error) {
	if err := s.Validate(params); err != nil {
		return Note{}, err
	}
	note, err := s.store.Create(ctx, NewNote{
		Content:   params.Content,
		CreatedAt: s.clock.Now().Unix(),
		X:         params.X,
		Y:         params.Y,
	})
	metrics.ObserveNoteMutation("create", err)
	if err != nil {
		return Note{}, fmt.Errorf("create note: %w", err)
	}
	s.publish(ctx, EventCreated, note.ID)
	return note, nil
}

// Update validates params and rewrites a note's content and position.
func (s *Service) Update(ctx context.Context, id int64, params Params) error {
	if err := s.Validate(params); err != nil {
		return err
	}
	err := s.store.Update(ctx, id, params)
	metrics.ObserveNoteMutation("update", err)
	if err != nil {
		return fmt.Errorf("update note %d: %w", id, err)
	}
	s.publish(ctx, EventUpdated, id)
	return nil
}

// Delete soft-deletes a note.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.SoftDelete(ctx, id)
	metrics.ObserveNoteMutation("delete", err)
	if err != nil {
		return fmt.Errorf("delete note %d: %w", id, err)
	}
	s.publish(ctx, EventDeleted, id)
	return nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping note store: %w", err)
	}
	return nil
}

// Validate checks positions are non-negative and content fits the configured length.
func (s *Service) Validate(params Params) error {
	if err := s.validate.Struct(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if s.cfg.MaxContentLength > 0 {
		if err := s.validate.Var(params.Content, "max="+strconv.Itoa(s.cfg.MaxContentLength)); err != nil {
			return fmt.Errorf("%w: content longer than %d characters", ErrInvalidParams, s.cfg.MaxContentLength)
		}
	}
	return nil
}

// publish is best effort: the mutation already happened, so failures are only logged.
func (s *Service) publish(ctx context.Context, typ EventType, noteID int64) {
	if s.publisher == nil || s.cfg.EventsTopic == "" {
		return
	}
	event := Event{Type: typ, NoteID: noteID, At: s.clock.Now()}
	if s.ids != nil {
		id, err := s.ids.NewID()
		if err != nil {
			s.logger.Warn("note event id generation failed", zap.Error(err))
		}
		event.ID = id
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.EventsTopic, event); err != nil {
		s.logger.Warn("note event publish failed",
			zap.String("type", string(typ)),
			zap.Int64("note_id", noteID),
			zap.Error(err),
		)
	}
}
