// internal/model/recipient.go
package model

import (
	"strings"
	"time"
)

type Recipient struct {
	ID                   int64      `db:"id" json:"id"`
	Email                string     `db:"email" json:"email,omitempty"`
	FirstName            string     `db:"first_name" json:"first_name"`
	Verified             bool       `db:"verified" json:"verified"`
	NotificationsEnabled bool       `db:"notifications_enabled" json:"notifications_enabled"`
	Blacklisted          bool       `db:"blacklisted" json:"blacklisted"`
	Audience             string     `db:"audience" json:"audience"`
	LastContactedAt      *time.Time `db:"last_contacted_at" json:"last_contacted_at,omitempty"`
}

// Eligible reports whether r belongs to the campaign audience and may be mailed at all.
func (r *Recipient) Eligible(audience string) bool {
	return r.Verified && r.NotificationsEnabled && !r.Blacklisted && r.Audience == audience
}

// Claimable reports whether r can be picked by the next claim.
func (r *Recipient) Claimable(audience string) bool {
	return r.Eligible(audience) && r.LastContactedAt == nil
}

// HasAddress reports whether r carries a usable email address.
func (r *Recipient) HasAddress() bool {
	return strings.TrimSpace(r.Email) != ""
}
