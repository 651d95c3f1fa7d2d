package mapping

import (
	"fmt"
	"strings"
	"time"
)

// ResolveIndexName substitutes the date placeholders {Y}, {m} and {d} in an
// index-name template with the zero-padded year, month and day of t. Tokens
// it does not recognise pass through untouched. The substitution is pure:
// the same template and time always produce the same name.
func ResolveIndexName(template string, t time.Time) string {
	if !strings.Contains(template, "{") {
		return template
	}
	replacer := strings.NewReplacer(
		"{Y}", fmt.Sprintf("%04d", t.Year()),
		"{m}", fmt.Sprintf("%02d", int(t.Month())),
		"{d}", fmt.Sprintf("%02d", t.Day()),
	)
	return replacer.Replace(template)
}

// ResolvedIndex resolves the entry's index-name template at time t. Index
// names are resolved per write so long-running processes roll over to dated
// indices without a restart.
func (e Entry) ResolvedIndex(t time.Time) string {
	return ResolveIndexName(e.Index, t)
}
