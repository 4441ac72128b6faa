package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatEventOrg renders an Event as an Org-mode entry with the structured
// facts in a PROPERTIES drawer and an empty Notes section.
func FormatEventOrg(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s (%s)\n", strings.ToUpper(string(e.Kind)), e.Asset, shortID(e.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", e.ID)
	fmt.Fprintf(&b, ":KIND: %s\n", e.Kind)
	fmt.Fprintf(&b, ":ASSET: %s\n", e.Asset)
	fmt.Fprintf(&b, ":TIME: %s\n", e.Time.UTC().Format(time.RFC3339))
	if e.Kind != KindAdjust {
		fmt.Fprintf(&b, ":PRICE: %s\n", e.Price)
		fmt.Fprintf(&b, ":QUANTITY: %s\n", e.Quantity)
	}
	fmt.Fprintf(&b, ":DELTA: %s\n", e.Delta.StringFixed(2))
	fmt.Fprintf(&b, ":BALANCE: %s\n", e.Balance.StringFixed(2))
	if e.Reason != "" {
		fmt.Fprintf(&b, ":REASON: %s\n", e.Reason)
	}
	b.WriteString(":END:\n")
	b.WriteString("\n*** Notes\n- \n")
	return b.String()
}

// FormatEventsOrg renders multiple events separated by blank lines.
func FormatEventsOrg(events []Event) string {
	var b strings.Builder
	for i, e := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEventOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
