package domain

import (
	"encoding/json"
	"time"
)

// ProviderEvent is a verified provider envelope. Raw holds the exact bytes
// the signature was computed over.
type ProviderEvent struct {
	ID            string         `json:"id"`
	Object        string         `json:"object"`
	Type          string         `json:"type"`
	APIVersion    *string        `json:"api_version"`
	Livemode      bool           `json:"livemode"`
	Created       int64          `json:"created"`
	Data          *EventData     `json:"data,omitempty"`
	RelatedObject *RelatedObject `json:"related_object,omitempty"`

	Raw []byte `json:"-"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// RelatedObject is the reference carried by thin events in place of data.
type RelatedObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// ExtractedIDs holds the provider ids derivable from the payload itself.
type ExtractedIDs struct {
	CustomerID      *string `json:"customer_id" gorm:"column:customer_id;type:text"`
	SubscriptionID  *string `json:"subscription_id" gorm:"column:subscription_id;type:text;index"`
	InvoiceID       *string `json:"invoice_id" gorm:"column:invoice_id;type:text"`
	PaymentIntentID *string `json:"payment_intent_id" gorm:"column:payment_intent_id;type:text"`
	ChargeID        *string `json:"charge_id" gorm:"column:charge_id;type:text"`
}

// SubscriptionDetails is populated only from subscription-shaped payloads.
type SubscriptionDetails struct {
	Amount             *int64     `json:"amount" gorm:"column:amount"`
	Currency           *string    `json:"currency" gorm:"column:currency;type:text"`
	Status             *string    `json:"subscription_status" gorm:"column:subscription_status;type:text"`
	PlanID             *string    `json:"plan_id" gorm:"column:plan_id;type:text"`
	Interval           *string    `json:"interval" gorm:"column:subscription_interval;type:text"`
	CurrentPeriodStart *time.Time `json:"current_period_start" gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end" gorm:"column:current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end" gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt         *time.Time `json:"canceled_at" gorm:"column:canceled_at"`
}

const (
	PayloadStyleSnapshot = "snapshot"
	PayloadStyleThin     = "thin"
)
