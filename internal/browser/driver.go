package browser

import (
	"context"
	"time"
)

// Driver is the set of page interactions a workflow can perform. Selectors are
// CSS queries; element ids are written as "#id".
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) WaitResult
	WaitText(ctx context.Context, selector, contains string, timeout time.Duration) WaitResult
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectByText(ctx context.Context, selector, text string) error
	SelectByIndex(ctx context.Context, selector string, index int) error
	Text(ctx context.Context, selector string) (string, error)
	Evaluate(ctx context.Context, script string) (string, error)
	Location(ctx context.Context) (string, error)

	// AwaitDialog returns the message of the next JavaScript dialog. Dialogs are
	// accepted as soon as they open so a click that triggers one never blocks.
	AwaitDialog(ctx context.Context, timeout time.Duration) (string, WaitResult)
	// DiscardDialogs forgets dialogs that were not awaited.
	DiscardDialogs()
}

// Provider hands out a connected Driver for one run.
type Provider interface {
	Driver(ctx context.Context) (Driver, error)
}
