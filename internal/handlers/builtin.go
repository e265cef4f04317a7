// Package handlers registers the built-in acknowledgment handlers. Real
// deployments replace these with their own integrations via
// router.Registry.Register; these exist so a freshly configured gateway
// answers meaningfully out of the box.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/mattjoyce/hookgate/internal/router"
)

// RegisterBuiltins installs an acknowledgment handler for each well-known
// service name.
func RegisterBuiltins(reg *router.Registry) {
	for _, service := range []string{"github", "gitlab", "jira"} {
		reg.Register(service, ackHandler(service))
	}
}

// ackHandler acknowledges receipt and reports a shallow payload summary.
// It deliberately does not interpret payload semantics.
func ackHandler(service string) router.HandlerFunc {
	return func(_ context.Context, payload json.RawMessage) (any, error) {
		var m map[string]json.RawMessage
		keys := []string{}
		if err := json.Unmarshal(payload, &m); err == nil {
			for k := range m {
				keys = append(keys, k)
			}
		}
		return map[string]any{
			"acknowledged": true,
			"source":       service,
			"fields":       len(keys),
		}, nil
	}
}
