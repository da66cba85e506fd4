package metrics

import (
	"context"
	"time"
)

// RecordCount records count under metricName.
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if app := application(ctx); app != nil {
		app.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records duration, in milliseconds, under metricName.
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if app := application(ctx); app != nil {
		app.RecordCustomMetric(metricName, float64(duration.Milliseconds()))
	}
}

// RecordEvent records a custom event with the given attributes.
func RecordEvent(ctx context.Context, eventName string, attributes map[string]interface{}) {
	if app := application(ctx); app != nil {
		app.RecordCustomEvent(eventName, attributes)
	}
}
