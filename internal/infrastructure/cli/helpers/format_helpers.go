package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/doeshing/multiprompt/internal/domain"
)

// StatusLabel renders a response status in a fixed-width, upper-case form.
func StatusLabel(status domain.ResponseStatus) string {
	return fmt.Sprintf("%-9s", strings.ToUpper(string(status)))
}

// FormatDuration rounds to milliseconds; zero renders as "-".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// RelativeTime renders t as "3 minutes ago".
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// Truncate shortens s to max runes on a single line.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// FormatContextLength renders a token count with thousands separators.
func FormatContextLength(tokens int) string {
	if tokens <= 0 {
		return "-"
	}
	return humanize.Comma(int64(tokens))
}

// FormatPricing renders per-1K prices, or "-" when unknown.
func FormatPricing(pricing *domain.Pricing) string {
	if pricing == nil {
		return "-"
	}
	return fmt.Sprintf("$%s / $%s", humanize.FtoaWithDigits(pricing.InputCostPer1K, 5), humanize.FtoaWithDigits(pricing.OutputCostPer1K, 5))
}

// FormatCapabilities lists the capabilities a model declares.
func FormatCapabilities(caps domain.Capabilities) string {
	var parts []string
	if caps.TextGeneration {
		parts = append(parts, "text")
	}
	if caps.ImageGeneration {
		parts = append(parts, "image")
	}
	if caps.Streaming {
		parts = append(parts, "stream")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
