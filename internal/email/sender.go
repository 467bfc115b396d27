// Package email sends scout event notifications. The production SMTP
// credential wiring is the external collaborator named in spec.md §1;
// Sender keeps it swappable behind one narrow method.
package email

import "context"

// Sender dispatches one HTML email.
type Sender interface {
	Send(ctx context.Context, from, to, subject, html string) error
}
