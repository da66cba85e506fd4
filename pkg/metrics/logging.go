package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// NewCustomNewRelicLogFormatter wraps formatter so that entries are also
// forwarded to app, with the entry's fields folded into the message. Output is
// enriched with linking metadata for the transaction in the entry's context,
// or for app when there is none. When app is nil, formatter is returned as is.
func NewCustomNewRelicLogFormatter(app *newrelic.Application, formatter logrus.Formatter) logrus.Formatter {
	if app == nil {
		return formatter
	}
	return &newRelicFormatter{app: app, base: formatter}
}

type newRelicFormatter struct {
	app  *newrelic.Application
	base logrus.Formatter
}

func (f *newRelicFormatter) Format(e *logrus.Entry) ([]byte, error) {
	formatted, err := f.base.Format(e)
	if err != nil {
		return nil, err
	}

	data := newrelic.LogData{
		Severity: e.Level.String(),
		Message:  summarize(e),
	}

	var enrich newrelic.EnricherOption
	if txn := transaction(e); txn != nil {
		txn.RecordLog(data)
		enrich = newrelic.FromTxn(txn)
	} else {
		f.app.RecordLog(data)
		enrich = newrelic.FromApp(f.app)
	}

	b := bytes.NewBuffer(bytes.TrimRight(formatted, "\n"))
	if err := newrelic.EnrichLog(b, enrich); err != nil {
		return nil, err
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func transaction(e *logrus.Entry) *newrelic.Transaction {
	if e.Context == nil {
		return nil
	}
	return newrelic.FromContext(e.Context)
}

// summarize renders the message along with the entry's error and fields.
func summarize(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}

	errText := "<nil>"
	fields := make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		if err, ok := v.(error); ok && k == logrus.ErrorKey {
			errText = fmt.Sprintf("%q", err.Error())
			continue
		}
		fields[k] = v
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return e.Message
	}
	return fmt.Sprintf("message=%q, error=%s, data=%s", e.Message, errText, encoded)
}
