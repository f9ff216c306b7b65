package engine

import (
	"time"

	"github.com/hostlify/hostlify/internal/config"
)

// billingMonthDays normalizes pro-rating; calendar month lengths are not
// worth the precision for grosz-level charges.
const billingMonthDays = 30

// ScaleUpCost prices a RAM/CPU delta pro-rated to the remaining paid days.
// deltaRAM is in MB, deltaCPU in percent. Charges never round down to zero.
func ScaleUpCost(p config.AutoscalingPolicy, deltaRAM, deltaCPU, remainingDays int64) int64 {
	if deltaRAM <= 0 && deltaCPU <= 0 {
		return 0
	}
	monthly := deltaRAM*p.RAMPricePerGBMonth/1024 + deltaCPU*p.CPUPricePerPctMonth
	cost := monthly * remainingDays / billingMonthDays
	if cost < 1 {
		cost = 1
	}
	return cost
}

// RemainingDays counts whole paid days left, floor one day. A service with
// no end date is priced as a full month.
func RemainingDays(now time.Time, endDate *time.Time) int64 {
	if endDate == nil {
		return billingMonthDays
	}
	days := int64(endDate.Sub(now).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}
