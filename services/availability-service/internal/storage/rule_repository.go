package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/mentorslots/libs/db"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
)

const ruleColumns = `id::text, mentor_id, weekday, start_minute, end_minute, timezone, is_active, created_at`

type RuleRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRuleRepository(pool *db.Pool, ob *outbox.Repository) *RuleRepository {
	return &RuleRepository{pool: pool, outbox: ob}
}

func (r *RuleRepository) ListByMentor(ctx context.Context, mentorID string, activeOnly bool) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE mentor_id = $1
			AND (is_active OR NOT $2)
		ORDER BY weekday, start_minute, created_at
	`, mentorID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r *RuleRepository) Get(ctx context.Context, id string) (model.AvailabilityRule, error) {
	return scanRule(r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE id = $1
	`, id))
}

// Create validates rule, inserts it and emits availability.rule.created.v1 in one transaction.
func (r *RuleRepository) Create(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	if err := rule.Validate(); err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.ID = uuid.NewString()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO availability_rules (id, mentor_id, weekday, start_minute, end_minute, timezone, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rule.ID, rule.MentorID, int(rule.Weekday), int(rule.StartMinute), int(rule.EndMinute), rule.Timezone, rule.IsActive).Scan(&rule.CreatedAt)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	if err := r.emit(ctx, tx, outbox.EventRuleCreated, rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	return rule, tx.Commit(ctx)
}

// SetActive toggles a rule. Inactive rules are kept for history and ignored by generation.
func (r *RuleRepository) SetActive(ctx context.Context, id string, active bool) (model.AvailabilityRule, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, err := scanRule(tx.QueryRow(ctx, `
		UPDATE availability_rules
		SET is_active = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns, id, active))
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	if err := r.emit(ctx, tx, outbox.EventRuleUpdated, rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	return rule, tx.Commit(ctx)
}

// Delete removes a rule and returns it so callers know which mentor changed.
func (r *RuleRepository) Delete(ctx context.Context, id string) (model.AvailabilityRule, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, err := scanRule(tx.QueryRow(ctx, `
		DELETE FROM availability_rules
		WHERE id = $1
		RETURNING `+ruleColumns, id))
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	if err := r.emit(ctx, tx, outbox.EventRuleDeleted, rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	return rule, tx.Commit(ctx)
}

func (r *RuleRepository) emit(ctx context.Context, tx pgx.Tx, eventType string, rule model.AvailabilityRule) error {
	evt, err := outbox.NewEvent(outbox.AggregateRule, rule.ID, eventType, outbox.ChangePayload{
		MentorID:   rule.MentorID,
		RecordID:   rule.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("outbox %s: %w", eventType, err)
	}
	return nil
}

func scanRule(row pgx.Row) (model.AvailabilityRule, error) {
	var (
		rule                model.AvailabilityRule
		weekday, start, end int16
	)
	err := row.Scan(&rule.ID, &rule.MentorID, &weekday, &start, &end, &rule.Timezone, &rule.IsActive, &rule.CreatedAt)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.Weekday = time.Weekday(weekday)
	rule.StartMinute = timeunit.Minute(start)
	rule.EndMinute = timeunit.Minute(end)
	return rule, nil
}
