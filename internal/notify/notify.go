// Package notify tells members about changes to their loans.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// LoanNotice carries everything a loan message shows.
type LoanNotice struct {
	To         string
	Name       string
	Title      string
	Author     string
	Barcode    string
	Reference  string
	IssuedAt   time.Time
	DueAt      time.Time
	ReturnedAt time.Time
}

// Notifier delivers loan notices. Implementations must not block the caller on delivery;
// a returned error means the notice was not accepted for delivery at all.
type Notifier interface {
	LoanIssued(ctx context.Context, n LoanNotice) error
	LoanReturned(ctx context.Context, n LoanNotice) error
	LoanReissued(ctx context.Context, n LoanNotice) error
}

// LogNotifier writes notices to the log. Used when no SMTP server is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l LogNotifier) LoanIssued(ctx context.Context, n LoanNotice) error {
	l.logger().InfoContext(ctx, "loan issued", "to", n.To, "title", n.Title, "reference", n.Reference,
		"due", n.DueAt.Format(time.DateOnly))
	return nil
}

func (l LogNotifier) LoanReturned(ctx context.Context, n LoanNotice) error {
	l.logger().InfoContext(ctx, "loan returned", "to", n.To, "title", n.Title, "reference", n.Reference)
	return nil
}

func (l LogNotifier) LoanReissued(ctx context.Context, n LoanNotice) error {
	l.logger().InfoContext(ctx, "loan reissued", "to", n.To, "title", n.Title, "reference", n.Reference,
		"due", n.DueAt.Format(time.DateOnly))
	return nil
}
