package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/starwatchapp/starwatch/internal/color"
	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/tagdoc"
	"github.com/starwatchapp/starwatch/internal/validation"
)

// FormatVersion is the export format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// File is the portable export: tags are keyed by name because ids are
// re-minted on import.
type File struct {
	Version     string              `json:"version,omitempty"`
	ExportedAt  *time.Time          `json:"exportedAt,omitempty"`
	Tags        []FileTag           `json:"tags"`
	Assignments map[string][]string `json:"assignments"`
	Starred     []string            `json:"starred"`
}

// FileTag is one custom tag in an export.
type FileTag struct {
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	SortOrder int    `json:"sortOrder,omitempty"`
}

// TagStore is the tag document as the importer needs it.
type TagStore interface {
	Get(ctx context.Context) (*domain.TagDocument, error)
	Mutate(ctx context.Context, entityID string, fn func(doc *domain.TagDocument, now time.Time) error) (*domain.TagDocument, error)
	AddTag(doc *domain.TagDocument, rawName, hex string, now time.Time) (*domain.Tag, error)
}

// Service exports and imports the tag document.
type Service struct {
	tags      TagStore
	validator *validation.Validator
	limits    Limits
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service.
func NewService(tags TagStore, validator *validation.Validator, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		tags:      tags,
		validator: validator,
		limits:    limits,
		logger:    logger,
		now:       time.Now,
	}
}

// Export snapshots the current document.
func (s *Service) Export(ctx context.Context) (*File, error) {
	doc, err := s.tags.Get(ctx)
	if err != nil {
		return nil, err
	}
	file := ExportDocument(doc, s.now())
	s.logger.Info("tags exported",
		slog.Int("tags", len(file.Tags)),
		slog.Int("assignments", len(file.Assignments)),
		slog.Int("starred", len(file.Starred)))
	return file, nil
}

// ExportDocument converts doc to the portable format. The starred tag is
// exported as the starred id list rather than as a tag.
func ExportDocument(doc *domain.TagDocument, now time.Time) *File {
	file := &File{
		Version:     FormatVersion,
		ExportedAt:  &now,
		Tags:        []FileTag{},
		Assignments: map[string][]string{},
		Starred:     []string{},
	}

	for _, tag := range doc.SortedTags() {
		if tag.IsStarred() {
			continue
		}
		file.Tags = append(file.Tags, FileTag{Name: tag.Name, Color: tag.Color, SortOrder: tag.SortOrder})
	}

	for _, entityID := range slices.Sorted(maps.Keys(doc.Assignments)) {
		var names []string
		for _, id := range doc.Assignments[entityID] {
			if id == domain.StarredTagID {
				file.Starred = append(file.Starred, entityID)
				continue
			}
			if tag, ok := doc.Tags[id]; ok {
				names = append(names, tag.Name)
			}
		}
		if len(names) > 0 {
			slices.Sort(names)
			file.Assignments[entityID] = names
		}
	}
	return file
}

// Parse decodes an export file and checks its version.
func Parse(data []byte) (*File, error) {
	var file File
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&file); err != nil {
		return nil, domainerrors.Wrapf(fmt.Errorf("%w: %v", ErrInvalidFile, err), domainerrors.CodeValidation, "Import file is not valid JSON")
	}
	if err := checkVersion(file.Version); err != nil {
		return nil, err
	}
	return &file, nil
}

func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	major, _, _ := strings.Cut(v, ".")
	wantMajor, _, _ := strings.Cut(FormatVersion, ".")
	if major != wantMajor {
		return domainerrors.Wrapf(ErrVersionMismatch, domainerrors.CodeValidation, "Import file version %s is not supported", v)
	}
	return nil
}

func (s *Service) checkLimits(file *File) error {
	switch {
	case len(file.Tags) > s.limits.Tags:
		return domainerrors.Validationf("Import has %d tags; at most %d are allowed", len(file.Tags), s.limits.Tags)
	case len(file.Assignments) > s.limits.Assignments:
		return domainerrors.Validationf("Import has %d assigned channels; at most %d are allowed", len(file.Assignments), s.limits.Assignments)
	case len(file.Starred) > s.limits.Starred:
		return domainerrors.Validationf("Import has %d starred channels; at most %d are allowed", len(file.Starred), s.limits.Starred)
	}
	return nil
}

// Import applies file to the tag document in one serialized operation.
// Reserved starred names are skipped silently, tags that already exist are
// reused, and assignments to unknown tag names or malformed channel ids are
// dropped. Nothing is written if the result would not fit.
func (s *Service) Import(ctx context.Context, file *File, mode ImportMode) (*ImportResult, error) {
	if file == nil {
		return nil, domainerrors.Validation("Import file is empty")
	}
	if !mode.Valid() {
		return nil, domainerrors.Validationf("Unknown import mode %q", mode)
	}
	if err := checkVersion(file.Version); err != nil {
		return nil, err
	}
	if err := s.checkLimits(file); err != nil {
		return nil, err
	}

	var result ImportResult
	_, err := s.tags.Mutate(ctx, "", func(doc *domain.TagDocument, now time.Time) error {
		result = ImportResult{}
		if mode == ImportModeReplace {
			*doc = *domain.NewTagDocument(now)
		}
		s.importTags(doc, file.Tags, now, &result)
		s.importAssignments(doc, file.Assignments, &result)
		s.importStarred(doc, file.Starred, &result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tags imported",
		slog.String("mode", string(mode)),
		slog.Int("created", result.TagsCreated),
		slog.Int("skipped", result.TagsSkipped),
		slog.Int("assignments", result.Assignments),
		slog.Int("starred", result.Starred))
	return &result, nil
}

func (s *Service) importTags(doc *domain.TagDocument, tags []FileTag, now time.Time, result *ImportResult) {
	ordered := slices.Clone(tags)
	// Tags with an explicit position first, in that order, then the rest as listed.
	slices.SortStableFunc(ordered, func(a, b FileTag) int {
		return position(a.SortOrder) - position(b.SortOrder)
	})

	for _, t := range ordered {
		name := tagdoc.SanitizeName(t.Name)
		if name == "" || tagdoc.IsReservedName(name) {
			result.TagsSkipped++
			continue
		}
		if _, exists := tagdoc.FindByName(doc, name); exists {
			result.TagsSkipped++
			continue
		}

		hex, err := color.ParseHex(t.Color)
		if err != nil {
			hex = ""
		}
		if _, err := s.tags.AddTag(doc, name, hex, now); err != nil {
			s.logger.Debug("skipping imported tag", slog.String("name", name), slog.String("error", err.Error()))
			result.TagsSkipped++
			continue
		}
		result.TagsCreated++
	}
}

func position(order int) int {
	if order <= 0 {
		return math.MaxInt32
	}
	return order
}

func (s *Service) importAssignments(doc *domain.TagDocument, assignments map[string][]string, result *ImportResult) {
	for _, entityID := range slices.Sorted(maps.Keys(assignments)) {
		if s.validator.Var("entityId", entityID, "required,entityid") != nil {
			continue
		}
		for _, name := range assignments[entityID] {
			tag, ok := tagdoc.FindByName(doc, name)
			if !ok {
				continue
			}
			if assign(doc, entityID, tag.ID) {
				result.Assignments++
			}
		}
	}
}

func (s *Service) importStarred(doc *domain.TagDocument, starred []string, result *ImportResult) {
	for _, entityID := range starred {
		if s.validator.Var("entityId", entityID, "required,entityid") != nil {
			continue
		}
		if assign(doc, entityID, domain.StarredTagID) {
			result.Starred++
		}
	}
}

// assign adds tagID to entityID, reporting whether it was new.
func assign(doc *domain.TagDocument, entityID, tagID string) bool {
	if doc.HasTag(entityID, tagID) {
		return false
	}
	doc.Assignments[entityID] = append(doc.Assignments[entityID], tagID)
	return true
}
