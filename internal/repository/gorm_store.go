package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	UserID        string `gorm:"size:64;not null;index"`
	Broker        string `gorm:"size:64"`
	AccountNumber string `gorm:"size:64"`
	Environment   string `gorm:"size:16"`
	CreatedAt     time.Time
}

func (accountRecord) TableName() string { return "accounts" }

type eventRecord struct {
	ID         string         `gorm:"primaryKey;size:36"`
	AccountID  string         `gorm:"size:64;not null;index"`
	Payload    datatypes.JSON `gorm:"not null"`
	ReceivedAt time.Time      `gorm:"not null;index"`
}

func (eventRecord) TableName() string { return "order_flow_events" }

type signalRecord struct {
	ID               string         `gorm:"primaryKey;size:36"`
	AccountID        string         `gorm:"size:64;not null;index"`
	OrderFlowEventID string         `gorm:"size:36;not null;uniqueIndex"`
	Symbol           string         `gorm:"size:32;not null"`
	Direction        string         `gorm:"size:16;not null"`
	Confidence       float64        `gorm:"not null"`
	RiskReward       *float64       `gorm:"column:risk_reward"`
	Status           string         `gorm:"size:16;not null;index"`
	Metadata         datatypes.JSON `gorm:"column:metadata"`
	CreatedAt        time.Time      `gorm:"not null;index"`
}

func (signalRecord) TableName() string { return "signals" }

type decisionRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	SignalID   string    `gorm:"size:36;not null;index"`
	Actor      string    `gorm:"size:16;not null"`
	Rationale  string    `gorm:"type:text"`
	NextAction string    `gorm:"size:64"`
	Confidence *float64  `gorm:"column:confidence"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (decisionRecord) TableName() string { return "decisions" }

// GormStore implements EventStore on any gorm dialect (PostgreSQL in production).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed event store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ repository.EventStore = (*GormStore)(nil)

// Migrate creates or updates the tables owned by the store.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&accountRecord{},
		&eventRecord{},
		&signalRecord{},
		&decisionRecord{},
		&auditRecord{},
	)
}

// PutAccount upserts an account. Account CRUD lives outside this service; this
// is used for seeding.
func (s *GormStore) PutAccount(ctx context.Context, a *models.Account) error {
	rec := accountRecord{
		ID:            a.ID,
		UserID:        a.UserID,
		Broker:        a.Broker,
		AccountNumber: a.AccountNumber,
		Environment:   a.Environment,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

func (s *GormStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var rec accountRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", accountID).Error; err != nil {
		return nil, wrapNotFound(err, "account")
	}
	return &models.Account{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Broker:        rec.Broker,
		AccountNumber: rec.AccountNumber,
		Environment:   rec.Environment,
	}, nil
}

func (s *GormStore) CreateEvent(ctx context.Context, e *models.OrderFlowEvent) error {
	rec := eventRecord{
		ID:         e.ID,
		AccountID:  e.AccountID,
		Payload:    datatypes.JSON(e.Payload),
		ReceivedAt: e.ReceivedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *GormStore) GetEvent(ctx context.Context, id string) (*models.OrderFlowEvent, error) {
	var rec eventRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err, "event")
	}
	return fromEventRecord(&rec), nil
}

func (s *GormStore) CreateSignalWithDecision(ctx context.Context, sig *models.Signal, d *models.Decision) (*models.Signal, bool, error) {
	rec, err := toSignalRecord(sig)
	if err != nil {
		return nil, false, err
	}

	var stored *models.Signal
	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_flow_event_id"}},
			DoNothing: true,
		}).Create(&rec)
		if res.Error != nil {
			return fmt.Errorf("insert signal: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var existing signalRecord
			if err := tx.First(&existing, "order_flow_event_id = ?", sig.OrderFlowEventID).Error; err != nil {
				return fmt.Errorf("load existing signal: %w", err)
			}
			stored = fromSignalRecord(&existing)
			return s.attachDecisions(ctx, tx, []*models.Signal{stored})
		}

		d.SignalID = rec.ID
		drec := toDecisionRecord(d)
		if err := tx.Create(&drec).Error; err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
		stored = fromSignalRecord(&rec)
		stored.Decisions = []models.Decision{*d}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *GormStore) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	var rec signalRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err, "signal")
	}
	sig := fromSignalRecord(&rec)
	if err := s.attachDecisions(ctx, s.db, []*models.Signal{sig}); err != nil {
		return nil, err
	}
	if err := s.attachOrderFlow(ctx, []*models.Signal{sig}); err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *GormStore) GetSignalByEvent(ctx context.Context, eventID string) (*models.Signal, error) {
	var rec signalRecord
	if err := s.db.WithContext(ctx).First(&rec, "order_flow_event_id = ?", eventID).Error; err != nil {
		return nil, wrapNotFound(err, "signal")
	}
	return fromSignalRecord(&rec), nil
}

func (s *GormStore) ListSignals(ctx context.Context, userID string, q models.SignalQuery) ([]*models.Signal, error) {
	tx := s.db.WithContext(ctx).
		Model(&signalRecord{}).
		Joins("JOIN accounts ON accounts.id = signals.account_id").
		Where("accounts.user_id = ?", userID)
	if q.AccountID != "" {
		tx = tx.Where("signals.account_id = ?", q.AccountID)
	}

	var recs []signalRecord
	if err := tx.Order("signals.created_at DESC").Limit(q.Limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}

	out := make([]*models.Signal, 0, len(recs))
	for i := range recs {
		out = append(out, fromSignalRecord(&recs[i]))
	}
	if err := s.attachDecisions(ctx, s.db, out); err != nil {
		return nil, err
	}
	if err := s.attachOrderFlow(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) AppendDecision(ctx context.Context, d *models.Decision) (*models.Signal, error) {
	var sig *models.Signal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec signalRecord
		if err := tx.First(&rec, "id = ?", d.SignalID).Error; err != nil {
			return wrapNotFound(err, "signal")
		}

		from := models.SignalStatus(rec.Status)
		to, err := models.NextStatus(from, d.NextAction)
		if err != nil {
			return fmt.Errorf("%w: %s from %s", err, d.NextAction, from)
		}
		if to != from {
			res := tx.Model(&signalRecord{}).
				Where("id = ? AND status = ?", rec.ID, rec.Status).
				Update("status", string(to))
			if res.Error != nil {
				return fmt.Errorf("update signal status: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: status changed concurrently", models.ErrInvalidTransition)
			}
			rec.Status = string(to)
		}

		drec := toDecisionRecord(d)
		if err := tx.Create(&drec).Error; err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}

		sig = fromSignalRecord(&rec)
		return s.attachDecisions(ctx, tx, []*models.Signal{sig})
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) attachDecisions(ctx context.Context, db *gorm.DB, sigs []*models.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sigs))
	byID := make(map[string]*models.Signal, len(sigs))
	for _, sig := range sigs {
		ids = append(ids, sig.ID)
		byID[sig.ID] = sig
	}

	var recs []decisionRecord
	if err := db.WithContext(ctx).
		Where("signal_id IN ?", ids).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		return fmt.Errorf("load decisions: %w", err)
	}
	for i := range recs {
		if sig, ok := byID[recs[i].SignalID]; ok {
			sig.Decisions = append(sig.Decisions, fromDecisionRecord(&recs[i]))
		}
	}
	return nil
}

func (s *GormStore) attachOrderFlow(ctx context.Context, sigs []*models.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		ids = append(ids, sig.OrderFlowEventID)
	}

	var recs []eventRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return fmt.Errorf("load order flow: %w", err)
	}
	byID := make(map[string]*models.OrderFlowEvent, len(recs))
	for i := range recs {
		byID[recs[i].ID] = fromEventRecord(&recs[i])
	}
	for _, sig := range sigs {
		sig.OrderFlow = byID[sig.OrderFlowEventID]
	}
	return nil
}

func fromEventRecord(r *eventRecord) *models.OrderFlowEvent {
	return &models.OrderFlowEvent{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Payload:    json.RawMessage(r.Payload),
		ReceivedAt: r.ReceivedAt,
	}
}

func toSignalRecord(s *models.Signal) (signalRecord, error) {
	var meta datatypes.JSON
	if len(s.Metadata) > 0 {
		b, err := json.Marshal(s.Metadata)
		if err != nil {
			return signalRecord{}, fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	return signalRecord{
		ID:               s.ID,
		AccountID:        s.AccountID,
		OrderFlowEventID: s.OrderFlowEventID,
		Symbol:           s.Symbol,
		Direction:        s.Direction,
		Confidence:       s.Confidence,
		RiskReward:       s.RiskReward,
		Status:           string(s.Status),
		Metadata:         meta,
		CreatedAt:        s.CreatedAt,
	}, nil
}

func fromSignalRecord(r *signalRecord) *models.Signal {
	s := &models.Signal{
		ID:               r.ID,
		AccountID:        r.AccountID,
		OrderFlowEventID: r.OrderFlowEventID,
		Symbol:           r.Symbol,
		Direction:        r.Direction,
		Confidence:       r.Confidence,
		RiskReward:       r.RiskReward,
		Status:           models.SignalStatus(r.Status),
		CreatedAt:        r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &s.Metadata)
	}
	return s
}

func toDecisionRecord(d *models.Decision) decisionRecord {
	return decisionRecord{
		ID:         d.ID,
		SignalID:   d.SignalID,
		Actor:      d.Actor,
		Rationale:  d.Rationale,
		NextAction: d.NextAction,
		Confidence: d.Confidence,
		CreatedAt:  d.CreatedAt,
	}
}

func fromDecisionRecord(r *decisionRecord) models.Decision {
	return models.Decision{
		ID:         r.ID,
		SignalID:   r.SignalID,
		Actor:      r.Actor,
		Rationale:  r.Rationale,
		NextAction: r.NextAction,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
