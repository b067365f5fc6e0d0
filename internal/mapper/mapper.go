package mapper

import (
	"context"
	"errors"
	"net/http"

	"basegraph.app/concierge/internal/model"
)

// ErrUnsupportedEvent means the webhook is valid but carries nothing the
// orchestrator acts on. Handlers answer 200 and drop it.
var ErrUnsupportedEvent = errors.New("unsupported event")

// EventMapper turns a provider webhook into a canonical model.Event.
type EventMapper interface {
	Map(ctx context.Context, body []byte, headers map[string]string) (model.Event, error)
}

func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	canonical := http.CanonicalHeaderKey(key)
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}
