package monitoring

import (
	"github.com/rs/zerolog/log"
)

// IntegrityAlert escalates a failed document integrity check. Mismatches are
// never auto-recoverable; a human reviewer has to clear them.
func IntegrityAlert(message string, labels map[string]string) {
	evt := log.Error().Str("alert", message)
	for k, v := range labels {
		evt = evt.Str(k, v)
	}
	evt.Msg("ALERT: document integrity mismatch")
}
