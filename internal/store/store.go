package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Stores bundles the typed store constructors over a shared pool.
type Stores struct {
	pool *pgxpool.Pool
}

func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{pool: pool}
}

func (s *Stores) Deals() DealStore {
	return &dealStore{pool: s.pool}
}

func (s *Stores) Contacts() ContactStore {
	return &contactStore{pool: s.pool}
}

func (s *Stores) Objections() ObjectionStore {
	return &objectionStore{pool: s.pool}
}

func (s *Stores) Interactions() InteractionStore {
	return &interactionStore{pool: s.pool}
}

func (s *Stores) Audit() AuditStore {
	return &auditStore{pool: s.pool}
}

func (s *Stores) Feedback() FeedbackStore {
	return &feedbackStore{pool: s.pool}
}
