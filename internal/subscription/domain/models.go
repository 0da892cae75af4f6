// Package domain holds the subscription read model kept in sync from
// published webhook events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// SubscriptionRecord is the local projection of a provider subscription.
type SubscriptionRecord struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	UserID                 string       `gorm:"type:varchar(255);not null;index"`
	ProviderSubscriptionID string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_subscriptions_provider_subscription_id"`
	ProviderCustomerID     *string      `gorm:"type:varchar(255)"`
	Status                 string       `gorm:"type:text;not null;default:active"`
	PlanID                 *string      `gorm:"type:text"`
	Amount                 *int64       `gorm:""`
	Currency               *string      `gorm:"type:text"`
	Interval               *string      `gorm:"column:billing_interval;type:text"`
	CurrentPeriodStart     *time.Time   `gorm:""`
	CurrentPeriodEnd       *time.Time   `gorm:""`
	CancelAtPeriodEnd      bool         `gorm:"not null;default:false"`
	CanceledAt             *time.Time   `gorm:""`
	CreatedAt              time.Time    `gorm:"not null"`
	UpdatedAt              time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (SubscriptionRecord) TableName() string { return "subscriptions" }
