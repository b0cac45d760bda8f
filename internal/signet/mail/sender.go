// Package mail delivers one-time codes out of band. Delivery is an external
// concern to the factor store itself, so the service only sees the narrow
// Sender interface.
package mail

import "context"

// Sender sends a one-time code to a recipient address.
type Sender interface {
	SendCode(ctx context.Context, to, code string) error
}

// Discard is a Sender that drops codes. Used when no SMTP host is configured
// (the code is still returned to the API caller once at issuance).
type Discard struct{}

func (Discard) SendCode(_ context.Context, _, _ string) error { return nil }
