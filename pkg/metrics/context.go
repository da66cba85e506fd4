// Package metrics reports to New Relic when an application has been attached
// to the context, and does nothing otherwise.
package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type newRelicContextKey struct{}

// NewRelicContextKey is the context key holding the *newrelic.Application.
var NewRelicContextKey = newRelicContextKey{}

// WithApplication returns a context carrying app. A nil app leaves ctx as is.
func WithApplication(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey, app)
}

func application(ctx context.Context) *newrelic.Application {
	app, _ := ctx.Value(NewRelicContextKey).(*newrelic.Application)
	return app
}

// StartTransaction starts a transaction named name. The returned function
// ends it, and is safe to call when no application is attached.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	app := application(ctx)
	if app == nil {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}
