package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/hierarchy"
	"github.com/meridian-erp/meridian-erp/internal/permissions"
)

const defaultRecomputeLimit = 200

// NewPermissionsRecomputeHandler refreshes cached effective documents whose
// merge inputs changed after they were written.
func NewPermissionsRecomputeHandler(svc *permissions.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PermissionsRecomputePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultRecomputeLimit
		}
		refreshed, err := svc.RecomputeStale(ctx, limit)
		if err != nil {
			return err
		}
		if refreshed > 0 {
			logger.Info("recomputed stale permission caches", slog.Int("count", refreshed))
		}
		return nil
	}
}

// NewHierarchyIntegrityHandler scans the active management graph for cycles.
// Findings are logged, not repaired; a cycle here means the assignment-time
// invariant was bypassed and needs a human.
func NewHierarchyIntegrityHandler(svc *hierarchy.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		report, err := svc.ScanIntegrity(ctx)
		if err != nil {
			return err
		}
		if len(report.Cycles) == 0 {
			logger.Info("hierarchy integrity ok", slog.Int("active_edges", report.ActiveEdges))
			return nil
		}
		for _, cycle := range report.Cycles {
			logger.Error("management cycle detected", slog.Any("members", cycle))
		}
		return nil
	}
}
