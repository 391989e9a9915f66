package bus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/backup"
	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/prefs"
	"github.com/starwatchapp/starwatch/internal/search"
	"github.com/starwatchapp/starwatch/internal/tagdoc"
)

// Message types.
const (
	TypeDataRequest       = "data:request"
	TypeTagAssign         = "tag:assign"
	TypeTagReplace        = "tag:replace"
	TypeTagCreate         = "tag:create"
	TypeTagUpdate         = "tag:update"
	TypeTagDelete         = "tag:delete"
	TypeTagReorder        = "tag:reorder"
	TypeTagReset          = "tag:reset"
	TypeTagExport         = "tag:export"
	TypeTagImport         = "tag:import"
	TypeFollowAdded       = "follow:added"
	TypeFollowRemoved     = "follow:removed"
	TypeFollowsSearch     = "follows:search"
	TypeOAuthStart        = "oauth:start"
	TypeOAuthSignOut      = "oauth:signout"
	TypeOAuthStatus       = "oauth:status"
	TypePreferencesGet    = "preferences:get"
	TypePreferencesUpdate = "preferences:update"
	TypeLiveCheck         = "live:check"
	TypeDebugGetLog       = "debug:getLog"
	TypeDebugClearLog     = "debug:clearLog"
	TypeSnapshotGet       = "ui:snapshot:get"
	TypeSnapshotSet       = "ui:snapshot:set"
)

// Dashboard assembles the payload surfaces render from.
type Dashboard interface {
	GetPayload(ctx context.Context, forceRefresh bool) *domain.DashboardPayload
}

// Tags mutates the tag document. Every call returns the document as persisted.
type Tags interface {
	UpdateAssignment(ctx context.Context, entityID, tagID string, assign bool) (*domain.TagDocument, error)
	ReplaceAssignments(ctx context.Context, entityID string, tagIDs []string) (*domain.TagDocument, error)
	UpsertTag(ctx context.Context, fields tagdoc.TagFields, id string) (*domain.TagDocument, error)
	RemoveTag(ctx context.Context, id string) (*domain.TagDocument, error)
	ReorderTags(ctx context.Context, orderedIDs []string) (*domain.TagDocument, error)
	Reset(ctx context.Context) (*domain.TagDocument, error)
}

// Backup exports and imports the tag document.
type Backup interface {
	Export(ctx context.Context) (*backup.File, error)
	Import(ctx context.Context, file *backup.File, mode backup.ImportMode) (*backup.ImportResult, error)
}

// Follows patches the follow cache after content scripts see a follow change.
type Follows interface {
	AddEntity(ctx context.Context, login string)
	RemoveEntity(ctx context.Context, login string)
}

// Searcher queries the follow index.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Result, error)
}

// Session drives sign-in and sign-out.
type Session interface {
	Status(ctx context.Context) *domain.AuthStatus
	StartSignIn(ctx context.Context) (*auth.SignInFlow, error)
	SignOut(ctx context.Context) error
}

// Preferences reads and patches user preferences.
type Preferences interface {
	Get(ctx context.Context) (domain.Preferences, error)
	Update(ctx context.Context, patch prefs.Patch) (domain.Preferences, error)
}

// LiveChecker runs a live check on demand.
type LiveChecker interface {
	RunLiveCheck(ctx context.Context, trigger domain.Trigger) domain.UpdateLogEntry
}

// AuditLog exposes the live-check history.
type AuditLog interface {
	List(ctx context.Context) ([]domain.UpdateLogEntry, error)
	Clear(ctx context.Context) error
}

// Snapshots stores the opaque UI snapshot.
type Snapshots interface {
	Get(ctx context.Context) (json.RawMessage, error)
	Set(ctx context.Context, snap json.RawMessage) error
}

// Services are the collaborators the handlers call.
type Services struct {
	Dashboard Dashboard
	Tags      Tags
	Backup    Backup
	Follows   Follows
	Search    Searcher
	Session   Session
	Prefs     Preferences
	Live      LiveChecker
	Log       AuditLog
	Snapshots Snapshots
}

// Payloads.
type (
	dataRequest struct {
		Force bool `json:"force"`
	}
	assignRequest struct {
		EntityID string `json:"entityId" validate:"required,entityid"`
		TagID    string `json:"tagId" validate:"required,max=16"`
		Assign   bool   `json:"assign"`
	}
	replaceRequest struct {
		EntityID string   `json:"entityId" validate:"required,entityid"`
		TagIDs   []string `json:"tagIds" validate:"max=1000,dive,required,max=16"`
	}
	createTagRequest struct {
		Name  string  `json:"name" validate:"required"`
		Color *string `json:"color,omitempty"`
	}
	updateTagRequest struct {
		ID    string  `json:"id" validate:"required,max=16"`
		Name  *string `json:"name,omitempty"`
		Color *string `json:"color,omitempty"`
	}
	tagIDRequest struct {
		ID string `json:"id" validate:"required,max=16"`
	}
	reorderRequest struct {
		OrderedIDs []string `json:"orderedIds" validate:"required,max=1000,dive,required,max=16"`
	}
	importRequest struct {
		Payload json.RawMessage   `json:"payload" validate:"required"`
		Mode    backup.ImportMode `json:"mode,omitempty"`
	}
	loginRequest struct {
		Login string `json:"login" validate:"required,login"`
	}
	searchRequest struct {
		Query    string `json:"query" validate:"max=200"`
		LiveOnly bool   `json:"liveOnly"`
		Limit    int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
	}
	snapshotRequest struct {
		Snapshot json.RawMessage `json:"snapshot"`
	}
)

// Register wires every message type to svc.
func Register(r *Router, svc Services) {
	Handle(r, TypeDataRequest, func(ctx context.Context, p dataRequest) (any, error) {
		return svc.Dashboard.GetPayload(ctx, p.Force), nil
	})

	registerTags(r, svc)
	registerFollows(r, svc)

	Handle(r, TypeOAuthStart, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Session.StartSignIn(ctx)
	})
	Handle(r, TypeOAuthSignOut, func(ctx context.Context, _ struct{}) (any, error) {
		return nil, svc.Session.SignOut(ctx)
	})
	Handle(r, TypeOAuthStatus, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Session.Status(ctx), nil
	})

	Handle(r, TypePreferencesGet, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Prefs.Get(ctx)
	})
	Handle(r, TypePreferencesUpdate, func(ctx context.Context, p prefs.Patch) (any, error) {
		return svc.Prefs.Update(ctx, p)
	})

	Handle(r, TypeLiveCheck, func(ctx context.Context, _ struct{}) (any, error) {
		entry := svc.Live.RunLiveCheck(ctx, domain.TriggerManual)
		return entry, nil
	})
	Handle(r, TypeDebugGetLog, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Log.List(ctx)
	})
	Handle(r, TypeDebugClearLog, func(ctx context.Context, _ struct{}) (any, error) {
		return nil, svc.Log.Clear(ctx)
	})

	Handle(r, TypeSnapshotGet, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Snapshots.Get(ctx)
	})
	Handle(r, TypeSnapshotSet, func(ctx context.Context, p snapshotRequest) (any, error) {
		return nil, svc.Snapshots.Set(ctx, p.Snapshot)
	})
}

func registerTags(r *Router, svc Services) {
	Handle(r, TypeTagAssign, func(ctx context.Context, p assignRequest) (any, error) {
		return svc.Tags.UpdateAssignment(ctx, p.EntityID, p.TagID, p.Assign)
	})
	Handle(r, TypeTagReplace, func(ctx context.Context, p replaceRequest) (any, error) {
		return svc.Tags.ReplaceAssignments(ctx, p.EntityID, p.TagIDs)
	})
	Handle(r, TypeTagCreate, func(ctx context.Context, p createTagRequest) (any, error) {
		return svc.Tags.UpsertTag(ctx, tagdoc.TagFields{Name: &p.Name, Color: p.Color}, "")
	})
	Handle(r, TypeTagUpdate, func(ctx context.Context, p updateTagRequest) (any, error) {
		return svc.Tags.UpsertTag(ctx, tagdoc.TagFields{Name: p.Name, Color: p.Color}, p.ID)
	})
	Handle(r, TypeTagDelete, func(ctx context.Context, p tagIDRequest) (any, error) {
		return svc.Tags.RemoveTag(ctx, p.ID)
	})
	Handle(r, TypeTagReorder, func(ctx context.Context, p reorderRequest) (any, error) {
		return svc.Tags.ReorderTags(ctx, p.OrderedIDs)
	})
	Handle(r, TypeTagReset, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Tags.Reset(ctx)
	})
	Handle(r, TypeTagExport, func(ctx context.Context, _ struct{}) (any, error) {
		return svc.Backup.Export(ctx)
	})
	Handle(r, TypeTagImport, func(ctx context.Context, p importRequest) (any, error) {
		file, err := parseImport(p.Payload)
		if err != nil {
			return nil, err
		}
		mode := p.Mode
		if mode == "" {
			mode = backup.ImportModeMerge
		}
		return svc.Backup.Import(ctx, file, mode)
	})
}

// parseImport accepts the export either as a JSON object or as the file's
// text in a JSON string, which is what a surface reading a picked file sends.
func parseImport(raw json.RawMessage) (*backup.File, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, domainerrors.Validation("Import payload is not valid JSON")
		}
		return backup.Parse([]byte(text))
	}
	return backup.Parse(raw)
}

func registerFollows(r *Router, svc Services) {
	Handle(r, TypeFollowAdded, func(ctx context.Context, p loginRequest) (any, error) {
		svc.Follows.AddEntity(ctx, p.Login)
		return nil, nil
	})
	Handle(r, TypeFollowRemoved, func(ctx context.Context, p loginRequest) (any, error) {
		svc.Follows.RemoveEntity(ctx, p.Login)
		return nil, nil
	})
	Handle(r, TypeFollowsSearch, func(ctx context.Context, p searchRequest) (any, error) {
		return svc.Search.Search(ctx, search.Params{Query: p.Query, LiveOnly: p.LiveOnly, Limit: p.Limit})
	})
}
