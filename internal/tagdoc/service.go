package tagdoc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/starwatchapp/starwatch/internal/color"
	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/validation"
)

// DefaultNameMaxLength is the longest tag name accepted, in characters.
const DefaultNameMaxLength = 50

// TagFields are the user-editable fields of a tag. Nil fields are left
// unchanged on update; Name is required on create.
type TagFields struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// ChangeHook runs after a mutation is persisted. entityID is the channel whose
// assignments changed, or "" when the change was not about one channel.
type ChangeHook func(ctx context.Context, doc *domain.TagDocument, entityID string)

// Broadcaster pushes events to open surfaces.
type Broadcaster interface {
	Broadcast(eventType sse.EventType, data any)
}

// Options configures a Service.
type Options struct {
	QueueCapacity int
	NameMaxLength int
}

// Service owns the tag document.
type Service struct {
	scope     store.Scope
	guard     *store.QuotaGuard
	queue     *Queue
	validator *validation.Validator
	events    Broadcaster
	logger    *slog.Logger
	nameMax   int
	now       func() time.Time

	hooksMu sync.RWMutex
	hooks   []ChangeHook
}

// NewService creates the tag document service and starts its queue.
func NewService(
	scope store.Scope,
	guard *store.QuotaGuard,
	validator *validation.Validator,
	events Broadcaster,
	opts Options,
	logger *slog.Logger,
) *Service {
	if opts.NameMaxLength <= 0 {
		opts.NameMaxLength = DefaultNameMaxLength
	}
	return &Service{
		scope:     scope,
		guard:     guard,
		queue:     NewQueue(opts.QueueCapacity, logger),
		validator: validator,
		events:    events,
		logger:    logger,
		nameMax:   opts.NameMaxLength,
		now:       time.Now,
	}
}

// OnChange registers a hook run after every successful mutation.
func (s *Service) OnChange(hook ChangeHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Get loads and normalizes the document without queueing.
func (s *Service) Get(ctx context.Context) (*domain.TagDocument, error) {
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) (*domain.TagDocument, error) {
	doc, _, err := store.Load[*domain.TagDocument](ctx, s.scope, store.KeyTagDocument)
	if err != nil {
		return nil, err
	}
	return Normalize(doc, s.now()), nil
}

// Mutate runs fn against a normalized copy of the document inside the queue,
// then normalizes, quota-checks and persists the result as one value. Nothing
// is written when fn or any later step fails.
func (s *Service) Mutate(ctx context.Context, entityID string, fn func(doc *domain.TagDocument, now time.Time) error) (*domain.TagDocument, error) {
	var result *domain.TagDocument
	err := s.queue.Run(ctx, func(ctx context.Context) error {
		now := s.now()
		doc, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := fn(doc, now); err != nil {
			return err
		}
		doc = Normalize(doc, now)

		if err := s.guard.Check(ctx, store.KeyTagDocument, doc); err != nil {
			return err
		}
		if err := s.scope.Set(ctx, store.KeyTagDocument, doc); err != nil {
			return fmt.Errorf("save tag document: %w", err)
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Broadcast(sse.EventTagsUpdated, result)

	s.hooksMu.RLock()
	hooks := slices.Clone(s.hooks)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, result.Clone(), entityID)
	}
	return result, nil
}

// UpsertTag creates a tag when id is empty, otherwise updates tag id.
// A created tag without a color gets the palette color for its numeric id.
func (s *Service) UpsertTag(ctx context.Context, fields TagFields, id string) (*domain.TagDocument, error) {
	var parsedColor string
	if fields.Color != nil {
		c, err := color.ParseHex(*fields.Color)
		if err != nil {
			return nil, domainerrors.Validationf("Invalid color %q: use a 6-digit hex value like #1E90FF", *fields.Color)
		}
		parsedColor = c
	}

	if id == "" {
		if fields.Name == nil {
			return nil, domainerrors.Validation("Tag name cannot be empty")
		}
		return s.Mutate(ctx, "", func(doc *domain.TagDocument, now time.Time) error {
			name, err := checkName(doc, *fields.Name, "", s.nameMax)
			if err != nil {
				return err
			}
			tag := newTag(doc, name, parsedColor, now)
			s.logger.Info("tag created", slog.String("tag_id", tag.ID), slog.String("name", name))
			return nil
		})
	}

	return s.Mutate(ctx, "", func(doc *domain.TagDocument, now time.Time) error {
		tag, err := editableTag(doc, id)
		if err != nil {
			return err
		}
		if fields.Name != nil {
			name, err := checkName(doc, *fields.Name, id, s.nameMax)
			if err != nil {
				return err
			}
			tag.Name = name
		}
		if fields.Color != nil {
			tag.Color = parsedColor
		}
		tag.Touch(now)
		return nil
	})
}

// AddTag validates rawName and appends a new tag to doc. It is meant for
// Mutate callbacks that create several tags in one operation. An empty hex
// picks the palette color.
func (s *Service) AddTag(doc *domain.TagDocument, rawName, hex string, now time.Time) (*domain.Tag, error) {
	name, err := checkName(doc, rawName, "", s.nameMax)
	if err != nil {
		return nil, err
	}
	return newTag(doc, name, hex, now), nil
}

// newTag mints the next numeric id and appends the tag after every other.
func newTag(doc *domain.TagDocument, name, hex string, now time.Time) *domain.Tag {
	n := doc.NextID
	if hex == "" {
		hex = color.ForTag(n)
	}
	tag := &domain.Tag{
		ID:        strconv.Itoa(n),
		Name:      name,
		Color:     hex,
		CreatedAt: now,
		SortOrder: len(doc.Tags) + 1,
	}
	doc.Tags[tag.ID] = tag
	doc.NextID = n + 1
	return tag
}

func editableTag(doc *domain.TagDocument, id string) (*domain.Tag, error) {
	if id == domain.StarredTagID {
		return nil, domainerrors.Validation("The starred tag cannot be changed")
	}
	tag, ok := doc.Tags[id]
	if !ok {
		return nil, domainerrors.Validationf("Unknown tag %q", id)
	}
	return tag, nil
}

// RemoveTag deletes a tag and strips it from every assignment.
func (s *Service) RemoveTag(ctx context.Context, id string) (*domain.TagDocument, error) {
	return s.Mutate(ctx, "", func(doc *domain.TagDocument, _ time.Time) error {
		if _, err := editableTag(doc, id); err != nil {
			return err
		}
		delete(doc.Tags, id)
		for entity, ids := range doc.Assignments {
			doc.Assignments[entity] = slices.DeleteFunc(ids, func(t string) bool { return t == id })
		}
		s.logger.Info("tag removed", slog.String("tag_id", id))
		return nil
	})
}

// UpdateAssignment adds or removes one tag on one channel.
func (s *Service) UpdateAssignment(ctx context.Context, entityID, tagID string, assign bool) (*domain.TagDocument, error) {
	if err := s.validator.Var("entityId", entityID, "required,entityid"); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, entityID, func(doc *domain.TagDocument, _ time.Time) error {
		if _, ok := doc.Tags[tagID]; !ok {
			return domainerrors.Validationf("Unknown tag %q", tagID)
		}
		ids := doc.Assignments[entityID]
		has := slices.Contains(ids, tagID)
		switch {
		case assign && !has:
			doc.Assignments[entityID] = append(ids, tagID)
		case !assign && has:
			doc.Assignments[entityID] = slices.DeleteFunc(ids, func(t string) bool { return t == tagID })
		}
		return nil
	})
}

// ReplaceAssignments sets the full tag set of one channel. An empty set
// removes the channel's entry.
func (s *Service) ReplaceAssignments(ctx context.Context, entityID string, tagIDs []string) (*domain.TagDocument, error) {
	if err := s.validator.Var("entityId", entityID, "required,entityid"); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, entityID, func(doc *domain.TagDocument, _ time.Time) error {
		for _, id := range tagIDs {
			if _, ok := doc.Tags[id]; !ok {
				return domainerrors.Validationf("Unknown tag %q", id)
			}
		}
		if len(tagIDs) == 0 {
			delete(doc.Assignments, entityID)
			return nil
		}
		doc.Assignments[entityID] = slices.Clone(tagIDs)
		return nil
	})
}

// ReorderTags assigns positions 1..N in the given order. Unknown, duplicate
// and starred ids are skipped; custom tags left out keep their relative order
// after the listed ones. The starred tag stays first.
func (s *Service) ReorderTags(ctx context.Context, orderedIDs []string) (*domain.TagDocument, error) {
	return s.Mutate(ctx, "", func(doc *domain.TagDocument, _ time.Time) error {
		prior := doc.SortedTags()
		placed := make(map[string]bool, len(orderedIDs))
		pos := 1

		for _, id := range orderedIDs {
			tag, ok := doc.Tags[id]
			if !ok || tag.IsStarred() || placed[id] {
				continue
			}
			tag.SortOrder = pos
			placed[id] = true
			pos++
		}
		for _, tag := range prior {
			if tag.IsStarred() || placed[tag.ID] {
				continue
			}
			tag.SortOrder = pos
			pos++
		}
		return nil
	})
}

// Reset replaces the document with the default one.
func (s *Service) Reset(ctx context.Context) (*domain.TagDocument, error) {
	return s.Mutate(ctx, "", func(doc *domain.TagDocument, now time.Time) error {
		fresh := domain.NewTagDocument(now)
		*doc = *fresh
		s.logger.Info("tag document reset")
		return nil
	})
}

// Shutdown stops the queue after admitted operations finish.
func (s *Service) Shutdown() error {
	return s.queue.Close()
}
