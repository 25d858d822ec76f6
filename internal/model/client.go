package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a registered business whose transactions flow through the
// daily cycle. Administrative operations mutate clients; the pipeline
// itself only reads them.
type Client struct {
	CreatedAt              time.Time
	UpdatedAt              time.Time
	AuthorizationThreshold *decimal.Decimal
	ID                     string
	Name                   string
	Source                 string
	Destination            string
	NotifyEmails           []string
	Active                 bool
}

// EffectiveAuthorizationThreshold returns the per-client materiality
// threshold, falling back to the given default when the client carries
// no override.
func (c *Client) EffectiveAuthorizationThreshold(def decimal.Decimal) decimal.Decimal {
	if c.AuthorizationThreshold != nil {
		return *c.AuthorizationThreshold
	}
	return def
}
