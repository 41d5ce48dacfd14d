package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fieldglass/billingsync/internal/models"
	"github.com/fieldglass/billingsync/pkg/config"
	"github.com/fieldglass/billingsync/pkg/logctx"
	"github.com/fieldglass/billingsync/pkg/tool"
)

// ErrAlreadyProcessed means the event id is present in the ledger: another
// delivery already handled (or is committing) this event.
var ErrAlreadyProcessed = errors.New("event already processed")

// cleanupProbability makes pruning a low-probability side task on normal
// processing, so no separate scheduler is needed.
const cleanupProbability = 0.01

type Service struct {
	db        *gorm.DB
	log       *zap.SugaredLogger
	retention time.Duration
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, cfg *config.Config) *Service {
	days := cfg.Ledger.RetentionDays
	if days <= 0 {
		days = 30
	}
	return &Service{db: db, log: log, retention: time.Duration(days) * 24 * time.Hour}
}

// RecordTx inserts the event id under the unique constraint, inside the
// caller's transaction. Insert-first discipline: the row goes in before any
// side effect, so a concurrent duplicate delivery hits the constraint and
// short-circuits, and a rolled-back transaction frees the id for redelivery.
func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, eventID, eventType string) error {
	rec := &models.ProcessedEvent{
		ID:          tool.GenerateUUIDV7(),
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrAlreadyProcessed, eventID)
		}
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}

// MaybeCleanup occasionally prunes entries past the retention window.
// Runs detached so webhook latency is unaffected.
func (s *Service) MaybeCleanup(ctx context.Context) {
	if rand.Float64() >= cleanupProbability {
		return
	}
	go func() {
		if err := s.Cleanup(context.WithoutCancel(ctx)); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("ledger cleanup failed: %v", err)
		}
	}()
}

// Cleanup removes ledger entries older than the retention window.
func (s *Service) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)
	res := s.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.ProcessedEvent{})
	if res.Error != nil {
		return fmt.Errorf("failed to prune processed events: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Infow("ledger_pruned", "removed", res.RowsAffected, "cutoff", cutoff)
	}
	return nil
}
