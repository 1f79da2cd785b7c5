// Package credits estimates and formats render costs in credits.
package credits

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// Multiplier is the credit amount of one BaseDollar.
	Multiplier = 3581
	BaseDollar = 0.1

	DefaultPhotoROI = 3.5
	DefaultVideoROI = 1.0
)

// Displayed cost shown in the editor before the first render and its floor.
const (
	InitialDisplayCost = 18
	MinDisplayCost     = 8
	DisplayCostStep    = 1
)

var photoDollars = map[string]float64{
	"1K": 0.09,
	"2K": 0.09,
	"4K": 0.12,
}

var videoDollars = map[int]float64{
	5:  0.21,
	10: 0.42,
}

// DollarsToCredits converts a dollar amount to whole credits.
func DollarsToCredits(dollars float64) int {
	return int(math.Round(dollars / BaseDollar * Multiplier))
}

// CreditsToDollars converts credits back to dollars.
func CreditsToDollars(credits int) float64 {
	return float64(credits) / Multiplier * BaseDollar
}

// PhotoCost returns the credit cost of one photo render at resolution.
func PhotoCost(resolution string, roi float64) (int, error) {
	base, ok := photoDollars[resolution]
	if !ok {
		return 0, fmt.Errorf("credits: unknown photo resolution %q", resolution)
	}
	if roi <= 0 {
		roi = DefaultPhotoROI
	}
	return DollarsToCredits(base * roi), nil
}

// VideoCost returns the credit cost of one video render of the given length.
func VideoCost(seconds int, roi float64) (int, error) {
	base, ok := videoDollars[seconds]
	if !ok {
		return 0, fmt.Errorf("credits: unsupported video duration %ds", seconds)
	}
	if roi <= 0 {
		roi = DefaultVideoROI
	}
	return DollarsToCredits(base * roi), nil
}

var planROI = map[string]float64{
	"free":    1.0,
	"starter": 1.0,
	"pro":     1.0,
	"studio":  1.0,
}

// ROIMultiplier returns the plan multiplier, 1.0 for unknown plans.
func ROIMultiplier(plan string) float64 {
	if roi, ok := planROI[plan]; ok {
		return roi
	}
	return 1.0
}

// NextDisplayCost lowers the displayed cost by one step, never below the floor.
func NextDisplayCost(cost int) int {
	if next := cost - DisplayCostStep; next > MinDisplayCost {
		return next
	}
	return MinDisplayCost
}

var printer = message.NewPrinter(language.English)

// Format renders credits with thousands separators.
func Format(credits int) string {
	return printer.Sprintf("%d", credits)
}

// FormatShort renders an approximate amount such as ~56K.
func FormatShort(credits int) string {
	switch {
	case credits >= 1_000_000:
		tenths := math.Round(float64(credits) / 100_000)
		if math.Mod(tenths, 10) == 0 {
			return printer.Sprintf("~%dM", int(tenths/10))
		}
		return printer.Sprintf("~%.1fM", tenths/10)
	case credits >= 1000:
		return printer.Sprintf("~%dK", int(math.Round(float64(credits)/1000)))
	default:
		return printer.Sprintf("~%d", credits)
	}
}
