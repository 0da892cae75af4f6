package domain

import "time"

// User is the internal account a provider customer can be linked to. Rows
// are owned by the account service; this module only reads them.
type User struct {
	ID               string    `gorm:"primaryKey;type:text" json:"id"`
	Email            string    `gorm:"type:text;not null" json:"email"`
	Name             *string   `gorm:"type:text" json:"name,omitempty"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;type:varchar(255);uniqueIndex:ux_users_stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
