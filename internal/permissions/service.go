package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// casRetries bounds the reload-and-retry loop on version conflicts.
const casRetries = 3

// UserDirectory resolves users for the merge engine.
type UserDirectory interface {
	Subject(ctx context.Context, id int64) (Subject, error)
}

// Service is the permission merge engine. It layers role defaults, an
// optional template and custom overrides into effective documents, keeps the
// per-assignment cache honest, and answers capability checks fail-closed.
type Service struct {
	repo    Repository
	users   UserDirectory
	cache   *Cache
	audit   *shared.AuditLogger
	metrics *observability.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService constructs a Service. cache, audit and metrics may be nil.
func NewService(repo Repository, users UserDirectory, cache *Cache, audit *shared.AuditLogger, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, users: users, cache: cache, audit: audit, metrics: metrics, logger: logger}
}

// GetEffectivePermissions computes the effective document for a user in the
// given scope. The result for a user with no assignment is exactly the role
// default document.
func (s *Service) GetEffectivePermissions(ctx context.Context, userID int64, scope Scope) (Document, error) {
	if doc, ok := s.cache.GetDocument(ctx, userID, scope); ok {
		return *doc, nil
	}

	key := fmt.Sprintf("%d:%s", userID, scope.Key())
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.computeEffective(ctx, userID, scope)
	})
	if err != nil {
		return Document{}, err
	}
	return v.(Document), nil
}

func (s *Service) computeEffective(ctx context.Context, userID int64, scope Scope) (Document, error) {
	subject, err := s.users.Subject(ctx, userID)
	if err != nil {
		return Document{}, fmt.Errorf("permissions: resolve user %d: %w", userID, err)
	}
	base := DefaultsFor(subject.Role)

	a, err := s.repo.GetAssignment(ctx, userID, scope)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = s.cache.SetDocument(ctx, userID, scope, base, nil)
			return base, nil
		}
		return Document{}, err
	}

	tpl, err := s.assignmentTemplate(ctx, a)
	if err != nil {
		return Document{}, err
	}

	doc, fresh := s.cachedOrRecompute(subject.Role, a, tpl)
	if !fresh {
		s.persistCache(ctx, subject.Role, a, doc, tpl)
	}
	_ = s.cache.SetDocument(ctx, userID, scope, doc, a.TemplateID)
	return doc, nil
}

// cachedOrRecompute returns the assignment's cached document when every
// merge input is provably unchanged, otherwise the freshly merged document.
// The base role is a merge input like any other: a cache computed against a
// different role than the subject holds now is stale.
func (s *Service) cachedOrRecompute(role Role, a *Assignment, tpl *Template) (Document, bool) {
	var tplStamp time.Time
	if tpl != nil {
		tplStamp = tpl.UpdatedAt
	}
	if a.Cached != nil && a.CachedRole == role && a.DefaultsRev == DefaultsRevision && a.TemplateStamp.Equal(tplStamp) {
		return *a.Cached, true
	}
	return resolve(role, tpl, a.Custom), false
}

// resolve implements the layering order: role default, then template, then
// custom overrides. Custom always wins over template, template over default.
func resolve(role Role, tpl *Template, custom *Overlay) Document {
	doc := DefaultsFor(role)
	if tpl != nil {
		doc = Merge(doc, tpl.Doc)
	}
	if custom != nil {
		doc = Merge(doc, *custom)
	}
	return doc
}

// assignmentTemplate loads the referenced template. A dangling reference is
// tolerated and treated as no template, which only ever removes grants.
func (s *Service) assignmentTemplate(ctx context.Context, a *Assignment) (*Template, error) {
	if a.TemplateID == nil {
		return nil, nil
	}
	tpl, err := s.repo.GetTemplate(ctx, *a.TemplateID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("assignment references missing template",
				slog.Int64("assignment_id", a.ID), slog.Int64("template_id", *a.TemplateID))
			return nil, nil
		}
		return nil, err
	}
	return tpl, nil
}

// persistCache writes the recomputed document back onto the assignment as
// the refreshed cache. Losing the CAS here is harmless: the winner has
// already written an equally fresh cache for the same inputs.
func (s *Service) persistCache(ctx context.Context, role Role, a *Assignment, doc Document, tpl *Template) {
	a.Cached = &doc
	a.CachedAt = time.Now().UTC()
	a.CachedRole = role
	a.DefaultsRev = DefaultsRevision
	if tpl != nil {
		a.TemplateStamp = tpl.UpdatedAt
	} else {
		a.TemplateStamp = time.Time{}
	}
	if err := s.repo.UpdateAssignment(ctx, a); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return
		}
		s.logger.Warn("persist effective cache", slog.Int64("assignment_id", a.ID), slog.Any("error", err))
	}
}

// CheckPermission reports whether the dotted capability path is granted.
// Unknown or malformed paths are denied, never an error.
func (s *Service) CheckPermission(ctx context.Context, userID int64, path string, scope Scope) (bool, error) {
	path = strings.TrimSpace(path)
	doc, err := s.GetEffectivePermissions(ctx, userID, scope)
	if err != nil {
		return false, err
	}
	granted := doc.Has(path)
	s.metrics.ObservePermissionCheck(granted)
	return granted, nil
}

// Grant sets the capability to true via a custom override in the given scope.
func (s *Service) Grant(ctx context.Context, actorID, userID int64, path string, scope Scope) error {
	return s.setOverride(ctx, actorID, userID, path, scope, true)
}

// Revoke sets the capability to false via a custom override. The explicit
// false is stored, so the leaf stays denied even when the role default or a
// later template grants it.
func (s *Service) Revoke(ctx context.Context, actorID, userID int64, path string, scope Scope) error {
	return s.setOverride(ctx, actorID, userID, path, scope, false)
}

func (s *Service) setOverride(ctx context.Context, actorID, userID int64, path string, scope Scope, value bool) error {
	// Validate the path before touching storage.
	if err := (&Overlay{}).SetLeaf(path, value); err != nil {
		return err
	}
	subject, err := s.users.Subject(ctx, userID)
	if err != nil {
		return fmt.Errorf("permissions: resolve user %d: %w", userID, err)
	}

	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		a, err := s.loadOrNewAssignment(ctx, userID, scope)
		if err != nil {
			return err
		}
		custom := Overlay{}
		if a.Custom != nil {
			custom = *a.Custom
		}
		if err := custom.SetLeaf(path, value); err != nil {
			return err
		}
		a.Custom = &custom
		a.Source = SourceCustom

		if err := s.saveRecomputed(ctx, subject, a); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				lastErr = err
				continue
			}
			return err
		}
		_ = s.cache.Invalidate(ctx, userID, scope)
		s.recordAudit(ctx, actorID, auditAction(value), userID, scope, map[string]any{"capability": path})
		return nil
	}
	return lastErr
}

// ApplyTemplate points the assignment at the template and recomputes.
// Pre-existing custom overrides are preserved and re-merged on top of the
// new template, keeping custom-wins precedence stable across swaps.
func (s *Service) ApplyTemplate(ctx context.Context, actorID, userID, templateID int64, scope Scope) error {
	subject, err := s.users.Subject(ctx, userID)
	if err != nil {
		return fmt.Errorf("permissions: resolve user %d: %w", userID, err)
	}
	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("permissions: template %d: %w", templateID, err)
	}
	if tpl.OrgID != nil && *tpl.OrgID != subject.OrgID {
		return fmt.Errorf("template %d is scoped to another organization: %w", templateID, shared.ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		a, err := s.loadOrNewAssignment(ctx, userID, scope)
		if err != nil {
			return err
		}
		a.TemplateID = &templateID
		a.Source = SourceTemplate

		if err := s.saveRecomputed(ctx, subject, a); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				lastErr = err
				continue
			}
			return err
		}
		_ = s.cache.Invalidate(ctx, userID, scope)
		s.recordAudit(ctx, actorID, "permissions.apply_template", userID, scope, map[string]any{"template_id": templateID})
		return nil
	}
	return lastErr
}

func (s *Service) loadOrNewAssignment(ctx context.Context, userID int64, scope Scope) (*Assignment, error) {
	a, err := s.repo.GetAssignment(ctx, userID, scope)
	if err == nil {
		return a, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return &Assignment{UserID: userID, Scope: scope, Source: SourceRole}, nil
	}
	return nil, err
}

// saveRecomputed recomputes the effective document with current inputs and
// persists the assignment, creating it on first use.
func (s *Service) saveRecomputed(ctx context.Context, subject Subject, a *Assignment) error {
	tpl, err := s.assignmentTemplate(ctx, a)
	if err != nil {
		return err
	}
	doc := resolve(subject.Role, tpl, a.Custom)
	a.Cached = &doc
	a.CachedAt = time.Now().UTC()
	a.CachedRole = subject.Role
	a.DefaultsRev = DefaultsRevision
	if tpl != nil {
		a.TemplateStamp = tpl.UpdatedAt
	} else {
		a.TemplateStamp = time.Time{}
	}
	if a.ID == 0 {
		return s.repo.CreateAssignment(ctx, a)
	}
	return s.repo.UpdateAssignment(ctx, a)
}

// CreateTemplate stores a new reusable permission template.
func (s *Service) CreateTemplate(ctx context.Context, actorID int64, tpl Template) (Template, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return Template{}, fmt.Errorf("template name required: %w", shared.ErrValidation)
	}
	if err := s.repo.CreateTemplate(ctx, &tpl); err != nil {
		return Template{}, err
	}
	s.recordAudit(ctx, actorID, "permissions.create_template", tpl.ID, Scope{OrgID: tpl.OrgID}, map[string]any{"name": tpl.Name})
	return tpl, nil
}

// UpdateTemplate rewrites a template's document. Every cached effective
// document computed from it becomes stale; the redis entries are dropped
// eagerly and the database caches are caught by the staleness guard (and
// swept by the recompute job).
func (s *Service) UpdateTemplate(ctx context.Context, actorID int64, tpl Template) error {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return fmt.Errorf("template name required: %w", shared.ErrValidation)
	}
	if err := s.repo.UpdateTemplate(ctx, &tpl); err != nil {
		return err
	}
	if err := s.cache.InvalidateTemplate(ctx, tpl.ID); err != nil {
		s.logger.Warn("invalidate template cache", slog.Int64("template_id", tpl.ID), slog.Any("error", err))
	}
	s.recordAudit(ctx, actorID, "permissions.update_template", tpl.ID, Scope{OrgID: tpl.OrgID}, map[string]any{"name": tpl.Name})
	return nil
}

// ListTemplates returns templates visible to the organization.
func (s *Service) ListTemplates(ctx context.Context, orgID *int64) ([]Template, error) {
	return s.repo.ListTemplates(ctx, orgID)
}

// RecomputeStale refreshes cached documents whose inputs changed since they
// were written. Returns how many assignments were refreshed.
func (s *Service) RecomputeStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListStaleAssignments(ctx, limit)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for i := range stale {
		a := stale[i]
		subject, err := s.users.Subject(ctx, a.UserID)
		if err != nil {
			s.logger.Warn("recompute stale: resolve user", slog.Int64("user_id", a.UserID), slog.Any("error", err))
			continue
		}
		if err := s.saveRecomputed(ctx, subject, &a); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				continue
			}
			return refreshed, err
		}
		_ = s.cache.Invalidate(ctx, a.UserID, a.Scope)
		refreshed++
	}
	return refreshed, nil
}

func auditAction(value bool) string {
	if value {
		return "permissions.grant"
	}
	return "permissions.revoke"
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, scope Scope, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["scope"] = scope.Key()
	if err := s.audit.Record(ctx, shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
