package repository

import (
	"context"
	"time"

	"rental-notify-service/internal/domain/entity"
	"rental-notify-service/internal/domain/repository"

	"gorm.io/gorm"
)

// GormStatusEventRepository implements the StatusEventRepository interface
type GormStatusEventRepository struct {
	db *gorm.DB
}

// NewGormStatusEventRepository creates a new GORM status event repository
func NewGormStatusEventRepository(db *gorm.DB) repository.StatusEventRepository {
	return &GormStatusEventRepository{
		db: db,
	}
}

// BookingStatusEvents GORM model for database mapping
type BookingStatusEvents struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BookingID  string    `gorm:"column:booking_id;size:128;not null;index"`
	OwnerID    string    `gorm:"column:owner_id;size:128;not null;index"`
	FromStatus string    `gorm:"column:from_status;size:20;not null"`
	ToStatus   string    `gorm:"column:to_status;size:20;not null"`
	Actor      string    `gorm:"column:actor;size:32;not null"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name
func (BookingStatusEvents) TableName() string {
	return "booking_status_events"
}

// Create inserts a new status event
func (r *GormStatusEventRepository) Create(ctx context.Context, event *entity.BookingStatusEvent) error {
	model := BookingStatusEvents{
		BookingID:  event.BookingID,
		OwnerID:    event.OwnerID,
		FromStatus: string(event.FromStatus),
		ToStatus:   string(event.ToStatus),
		Actor:      event.Actor,
		OccurredAt: event.OccurredAt,
	}

	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		return result.Error
	}

	// Update the entity with the generated ID
	event.ID = model.ID

	return nil
}

// ListByBooking returns the booking's transitions, oldest first
func (r *GormStatusEventRepository) ListByBooking(ctx context.Context, bookingID string) ([]*entity.BookingStatusEvent, error) {
	var rows []BookingStatusEvents
	result := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("occurred_at ASC").
		Find(&rows)

	if result.Error != nil {
		return nil, result.Error
	}

	// Convert to domain entities
	events := make([]*entity.BookingStatusEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, &entity.BookingStatusEvent{
			ID:         row.ID,
			BookingID:  row.BookingID,
			OwnerID:    row.OwnerID,
			FromStatus: entity.BookingStatus(row.FromStatus),
			ToStatus:   entity.BookingStatus(row.ToStatus),
			Actor:      row.Actor,
			OccurredAt: row.OccurredAt,
		})
	}

	return events, nil
}

// NopStatusEventRepository drops events; used when no Postgres DSN is configured
type NopStatusEventRepository struct{}

func (NopStatusEventRepository) Create(context.Context, *entity.BookingStatusEvent) error {
	return nil
}

func (NopStatusEventRepository) ListByBooking(context.Context, string) ([]*entity.BookingStatusEvent, error) {
	return []*entity.BookingStatusEvent{}, nil
}
