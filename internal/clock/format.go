package clock

import "fmt"

// FormatElapsed renders milliseconds as MM:SS for display, e.g. 65000 -> "01:05".
// Minutes keep growing past 59 rather than rolling into hours.
func FormatElapsed(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSec := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSec/60, totalSec%60)
}
