package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// NormalizedEvent is the durable record of one provider delivery.
type NormalizedEvent struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider        string       `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string       `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_provider_event_id"`
	EventType       string       `json:"event_type" gorm:"type:text;not null"`
	APIVersion      *string      `json:"api_version" gorm:"type:text"`
	Livemode        bool         `json:"livemode" gorm:"not null;default:false"`
	UserID          *string      `json:"user_id" gorm:"type:varchar(255);index"`

	ExtractedIDs        `gorm:"embedded"`
	SubscriptionDetails `gorm:"embedded"`

	Payload   datatypes.JSON `json:"payload" gorm:"not null"`
	Processed bool           `json:"processed" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
}

func (NormalizedEvent) TableName() string { return "webhook_events" }

// ShouldPublish reports whether downstream consumers care about this type.
// "customer.subscription" is implied by "subscription" but stays listed so a
// provider renaming one family does not silently drop the other.
func ShouldPublish(eventType string) bool {
	return strings.Contains(eventType, "subscription") ||
		strings.Contains(eventType, "invoice") ||
		strings.Contains(eventType, "customer.subscription")
}

// PublishedEvent is the message broadcast on the webhook events topic.
type PublishedEvent struct {
	Provider           string          `json:"provider"`
	ProviderEventID    string          `json:"provider_event_id"`
	EventType          string          `json:"event_type"`
	UserID             *string         `json:"user_id"`
	CustomerID         *string         `json:"customer_id"`
	SubscriptionID     *string         `json:"subscription_id"`
	SubscriptionStatus *string         `json:"subscription_status"`
	Amount             *int64          `json:"amount"`
	Currency           *string         `json:"currency"`
	PlanID             *string         `json:"plan_id"`
	Interval           *string         `json:"interval"`
	CurrentPeriodStart *time.Time      `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time      `json:"current_period_end"`
	CancelAtPeriodEnd  bool            `json:"cancel_at_period_end"`
	CanceledAt         *time.Time      `json:"canceled_at"`
	Payload            json.RawMessage `json:"payload"`
	PublishedAt        time.Time       `json:"published_at"`
}

// ToPublished drops storage bookkeeping and keeps the logical fields.
func (e *NormalizedEvent) ToPublished(now time.Time) PublishedEvent {
	return PublishedEvent{
		Provider:           e.Provider,
		ProviderEventID:    e.ProviderEventID,
		EventType:          e.EventType,
		UserID:             e.UserID,
		CustomerID:         e.CustomerID,
		SubscriptionID:     e.SubscriptionID,
		SubscriptionStatus: e.Status,
		Amount:             e.Amount,
		Currency:           e.Currency,
		PlanID:             e.PlanID,
		Interval:           e.Interval,
		CurrentPeriodStart: e.CurrentPeriodStart,
		CurrentPeriodEnd:   e.CurrentPeriodEnd,
		CancelAtPeriodEnd:  e.CancelAtPeriodEnd,
		CanceledAt:         e.CanceledAt,
		Payload:            json.RawMessage(e.Payload),
		PublishedAt:        now,
	}
}

// WebhookSummary is the listing view of a stored event.
type WebhookSummary struct {
	ID                 string    `json:"id"`
	ProviderEventID    string    `json:"provider_event_id"`
	EventType          string    `json:"event_type"`
	CustomerID         *string   `json:"customer_id"`
	SubscriptionID     *string   `json:"subscription_id"`
	Amount             *int64    `json:"amount"`
	Currency           *string   `json:"currency"`
	SubscriptionStatus *string   `json:"subscription_status"`
	Processed          bool      `json:"processed"`
	CreatedAt          time.Time `json:"created_at"`
}

func (e *NormalizedEvent) Summary() WebhookSummary {
	return WebhookSummary{
		ID:                 e.ID.String(),
		ProviderEventID:    e.ProviderEventID,
		EventType:          e.EventType,
		CustomerID:         e.CustomerID,
		SubscriptionID:     e.SubscriptionID,
		Amount:             e.Amount,
		Currency:           e.Currency,
		SubscriptionStatus: e.Status,
		Processed:          e.Processed,
		CreatedAt:          e.CreatedAt,
	}
}
