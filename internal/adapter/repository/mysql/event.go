package mysql

import (
	"context"

	"gorm.io/gorm"

	eventDomain "microloan/internal/domain/event"
)

type EventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) *EventRepository { return &EventRepository{db: db} }

func (r *EventRepository) Append(ctx context.Context, e *eventDomain.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) List(ctx context.Context, afterSeq uint64, limit int) ([]eventDomain.Event, error) {
	var out []eventDomain.Event
	q := r.db.WithContext(ctx).Where("seq > ?", afterSeq).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *EventRepository) ListByLoan(ctx context.Context, loanID uint64) ([]eventDomain.Event, error) {
	var out []eventDomain.Event
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("seq ASC").Find(&out).Error
	return out, err
}
