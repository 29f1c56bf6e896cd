// Package format provides human-readable formatting for CLI output.
package format

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Bytes formats a byte count using binary units.
// Example: Bytes(1536) => "1.5 KiB"
func Bytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.IBytes(uint64(n))
}

// Number formats a number with thousand separators.
// Example: Number(1234567) => "1,234,567"
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Percentage formats a percentage value.
// Example: Percentage(45.678, 1) => "45.7%"
func Percentage(value float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, value)
}

// Millis formats a duration as fractional milliseconds.
// Example: Millis(33366 * time.Microsecond) => "33.37ms"
func Millis(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

// Rate formats frames over a span as frames per second.
func Rate(frames int, span time.Duration) string {
	if frames == 0 || span <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f fps", float64(frames)/span.Seconds())
}
