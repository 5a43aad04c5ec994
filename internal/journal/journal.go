// Package journal persists inbound realtime events for debugging and replay.
// Entirely optional: when no DSN is configured the channel runs without it.
package journal

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketsync/internal/models"
	"marketsync/internal/realtime"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, item *models.RawEvent) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}},
		UpdateAll: true,
	}).Create(state).Error
}

func (r *Repository) GetSyncState(ctx context.Context, channel string) (*models.SyncState, error) {
	var state models.SyncState
	err := r.db.WithContext(ctx).Where("channel = ?", channel).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.RawEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []models.RawEvent
	err := r.db.WithContext(ctx).Order("received_at DESC").Limit(limit).Find(&items).Error
	return items, err
}

// Prune drops events older than the cutoff and returns how many went.
func (r *Repository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("received_at < ?", olderThan).Delete(&models.RawEvent{})
	return res.RowsAffected, res.Error
}

// Recorder adapts the repository to the realtime sink interface. Writes are
// best-effort; a journal failure never disturbs event routing.
type Recorder struct {
	Repo   *Repository
	Logger *zap.Logger
}

func (r *Recorder) Record(ev realtime.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	receivedAt := time.Now().UTC()
	eventAt := receivedAt
	if ev.Timestamp > 0 {
		eventAt = time.UnixMilli(ev.Timestamp).UTC()
	}
	payload := []byte("{}")
	if len(ev.Data) > 0 {
		payload = ev.Data
	}
	item := &models.RawEvent{
		Channel:    ev.Channel,
		EventType:  ev.Event,
		ReceivedAt: receivedAt,
		Payload:    datatypes.JSON(payload),
	}
	if err := r.Repo.Insert(ctx, item); err != nil {
		if r.Logger != nil {
			r.Logger.Warn("journal insert failed", zap.Error(err))
		}
		return
	}
	_ = r.Repo.SaveSyncState(ctx, &models.SyncState{
		Channel:     ev.Channel,
		LastEvent:   ev.Event,
		LastEventAt: eventAt,
	})
}
