package deadletter

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldglass/billingsync/internal/models"
	"github.com/fieldglass/billingsync/pkg/logctx"
	"github.com/fieldglass/billingsync/pkg/tool"
	"github.com/fieldglass/billingsync/pkg/types"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record writes a dead-letter entry for an event whose tenant could not be
// resolved. Uses its own connection, not the caller's transaction: the failed
// processing transaction rolls back, this entry must survive it. Additive
// only; it never gates later processing of the same event id.
func (s *Service) Record(ctx context.Context, eventID, eventType, reason string, rawPayload []byte) {
	entry := &models.DeadLetterEntry{
		ID:          tool.GenerateUUIDV7(),
		EventID:     eventID,
		EventType:   eventType,
		ErrorReason: reason,
		RawPayload:  datatypes.JSON(rawPayload),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save dead letter entry: %v", err)
		return
	}
	logctx.FromCtx(ctx, s.log).Warnw("webhook_dead_lettered",
		"event_id", eventID,
		"event_type", eventType,
		"reason", reason,
	)
}

// Scan request/response for the admin listing.
type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.DeadLetterEntry `json:"items"`
	Total int64                     `json:"total"`
}

// filtersAnd is a helper to combine multiple CommonFilter into a single clause.Expression
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan implements the paginated/filterable admin listing, newest first unless
// a sort is requested.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.DeadLetterEntry{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count dead letter entries: %w", err)
	}

	var rows []*models.DeadLetterEntry
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list dead letter entries: %w", err)
	}
	return &ScanResponse{Items: rows, Total: total}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
