// Package sequence derives the day-gated view of a joined sequence
// campaign. Everything here is a pure projection of server state: the
// engine never recomputes whether a day is unlocked on the client side,
// it defers to current_day and delivery receipts from the snapshot.
package sequence

import (
	"math"
	"sort"

	"packdesk/internal/domain"
)

// Partition splits items into explainer and regular subsets, each
// ordered by day number ascending. No item is dropped or duplicated.
func Partition(items []domain.SequenceItem) (explainer, regular []domain.SequenceItem) {
	sorted := make([]domain.SequenceItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DayNumber < sorted[j].DayNumber })
	for _, it := range sorted {
		if it.Explainer {
			explainer = append(explainer, it)
		} else {
			regular = append(regular, it)
		}
	}
	return explainer, regular
}

// ProgressRatio returns currentDay/totalDays clamped to [0,1].
// A zero-day sequence has ratio 0.
func ProgressRatio(currentDay, totalDays int) float64 {
	if totalDays <= 0 {
		return 0
	}
	ratio := float64(currentDay) / float64(totalDays)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// ProgressPercent is ProgressRatio rounded to the nearest whole percent.
func ProgressPercent(currentDay, totalDays int) int {
	return int(math.Round(ProgressRatio(currentDay, totalDays) * 100))
}

// ApplyReceipts fills each item's DeliveryStatus from the participation's
// receipts: a day with at least one delivered receipt is delivered,
// everything else stays pending. Items are returned regardless of
// current_day; nothing is hidden.
func ApplyReceipts(items []domain.SequenceItem, receipts []domain.DeliveryReceipt) []domain.SequenceItem {
	delivered := make(map[int]bool)
	for _, rc := range receipts {
		if rc.Status == "delivered" {
			delivered[rc.DayNumber] = true
		}
	}
	out := make([]domain.SequenceItem, len(items))
	copy(out, items)
	for i := range out {
		if delivered[out[i].DayNumber] {
			out[i].DeliveryStatus = "delivered"
		} else {
			out[i].DeliveryStatus = "pending"
		}
	}
	return out
}

// DayView is the UI affordance for one sequence item. Enabled mirrors
// the authoritative delivery status, nothing else.
type DayView struct {
	Item    domain.SequenceItem `json:"item"`
	Enabled bool                `json:"enabled"`
}

// DayViews builds the per-day affordances for a joined campaign.
func DayViews(items []domain.SequenceItem, receipts []domain.DeliveryReceipt) []DayView {
	applied := ApplyReceipts(items, receipts)
	views := make([]DayView, 0, len(applied))
	for _, it := range applied {
		views = append(views, DayView{Item: it, Enabled: it.DeliveryStatus == "delivered"})
	}
	return views
}
