package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealsense.app/coach/internal/model"
)

// The CRM tables are owned by the CRM write path. This layer only reads
// snapshots of them.

type DealStore interface {
	GetByID(ctx context.Context, id string) (*model.Deal, error)
	ListClosedSince(ctx context.Context, since int64, limit int) ([]model.Deal, error)
}

type ContactStore interface {
	GetByID(ctx context.Context, id string) (*model.Contact, error)
}

type ObjectionStore interface {
	GetByID(ctx context.Context, id string) (*model.Objection, error)
	ListByDeal(ctx context.Context, dealID string) ([]model.Objection, error)
}

type InteractionStore interface {
	ListByContact(ctx context.Context, contactID string, limit int) ([]model.Interaction, error)
}

type dealStore struct {
	pool *pgxpool.Pool
}

func (s *dealStore) GetByID(ctx context.Context, id string) (*model.Deal, error) {
	const query = `
		SELECT id, name, contact_id, owner_id, industry, stage, value,
		       loss_reason, expected_close_at, closed_at, created_at, updated_at
		FROM deals
		WHERE id = $1`

	var d model.Deal
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.ContactID, &d.OwnerID, &d.Industry, &d.Stage, &d.Value,
		&d.LossReason, &d.ExpectedCloseAt, &d.ClosedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get deal: %w", err)
	}
	return &d, nil
}

func (s *dealStore) ListClosedSince(ctx context.Context, since int64, limit int) ([]model.Deal, error) {
	const query = `
		SELECT id, name, contact_id, owner_id, industry, stage, value,
		       loss_reason, expected_close_at, closed_at, created_at, updated_at
		FROM deals
		WHERE stage IN ('closed_won', 'closed_lost')
		  AND closed_at >= to_timestamp($1)
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed deals: %w", err)
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(
			&d.ID, &d.Name, &d.ContactID, &d.OwnerID, &d.Industry, &d.Stage, &d.Value,
			&d.LossReason, &d.ExpectedCloseAt, &d.ClosedAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

type contactStore struct {
	pool *pgxpool.Pool
}

func (s *contactStore) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	const query = `
		SELECT id, name, email, title, company, industry, notes, created_at, updated_at
		FROM contacts
		WHERE id = $1`

	var c model.Contact
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Title, &c.Company, &c.Industry, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

type objectionStore struct {
	pool *pgxpool.Pool
}

func (s *objectionStore) GetByID(ctx context.Context, id string) (*model.Objection, error) {
	const query = `
		SELECT id, deal_id, text, category, resolved, created_at
		FROM objections
		WHERE id = $1`

	var o model.Objection
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.DealID, &o.Text, &o.Category, &o.Resolved, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get objection: %w", err)
	}
	return &o, nil
}

func (s *objectionStore) ListByDeal(ctx context.Context, dealID string) ([]model.Objection, error) {
	const query = `
		SELECT id, deal_id, text, category, resolved, created_at
		FROM objections
		WHERE deal_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("list objections: %w", err)
	}
	defer rows.Close()

	var objections []model.Objection
	for rows.Next() {
		var o model.Objection
		if err := rows.Scan(&o.ID, &o.DealID, &o.Text, &o.Category, &o.Resolved, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan objection: %w", err)
		}
		objections = append(objections, o)
	}
	return objections, rows.Err()
}

type interactionStore struct {
	pool *pgxpool.Pool
}

func (s *interactionStore) ListByContact(ctx context.Context, contactID string, limit int) ([]model.Interaction, error) {
	const query = `
		SELECT id, contact_id, deal_id, channel, summary, sentiment, occurred_at
		FROM interactions
		WHERE contact_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var interactions []model.Interaction
	for rows.Next() {
		var i model.Interaction
		if err := rows.Scan(&i.ID, &i.ContactID, &i.DealID, &i.Channel, &i.Summary, &i.Sentiment, &i.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		interactions = append(interactions, i)
	}
	return interactions, rows.Err()
}
