// Package estimate turns matched delivery rules into customer-facing
// delivery window estimates, with shop-default and generic fallbacks.
package estimate

import "fmt"

// FormatWindow renders a delivery window as a display string.
// A collapsed window renders as "{n} business day(s)", otherwise as
// "{min}-{max} business days". Non-negative integers with min <= max are
// the caller's invariant; the formatter does not validate.
func FormatWindow(minDays, maxDays int) string {
	if minDays == maxDays {
		if minDays <= 1 {
			return fmt.Sprintf("%d business day", minDays)
		}
		return fmt.Sprintf("%d business days", minDays)
	}
	return fmt.Sprintf("%d-%d business days", minDays, maxDays)
}
