package sequence_test

import (
	"testing"

	"packdesk/internal/domain"
	"packdesk/internal/sequence"
)

func seqItems(total int) []domain.SequenceItem {
	items := make([]domain.SequenceItem, 0, total)
	// reverse order on purpose; partition must sort by day
	for day := total - 1; day >= 0; day-- {
		items = append(items, domain.SequenceItem{
			CampaignID: "camp-1",
			DayNumber:  day,
			Title:      "Day",
			AssetRef:   "asset",
			Explainer:  day <= 1,
		})
	}
	return items
}

func TestPartitionKeepsEveryItem(t *testing.T) {
	items := seqItems(22)
	explainer, regular := sequence.Partition(items)
	if len(explainer)+len(regular) != len(items) {
		t.Fatalf("partition dropped items: %d + %d != %d", len(explainer), len(regular), len(items))
	}
	seen := make(map[int]bool)
	for _, it := range append(append([]domain.SequenceItem{}, explainer...), regular...) {
		if seen[it.DayNumber] {
			t.Fatalf("day %d duplicated", it.DayNumber)
		}
		seen[it.DayNumber] = true
	}
	for day := 0; day < len(items); day++ {
		if !seen[day] {
			t.Fatalf("day %d missing", day)
		}
	}
}

func TestPartitionExplainerSubset(t *testing.T) {
	explainer, regular := sequence.Partition(seqItems(22))
	if len(explainer) != 2 {
		t.Fatalf("explainer subset: got %d items, want 2", len(explainer))
	}
	if explainer[0].DayNumber != 0 || explainer[1].DayNumber != 1 {
		t.Fatalf("explainer days %d,%d, want 0,1", explainer[0].DayNumber, explainer[1].DayNumber)
	}
	for i := 1; i < len(regular); i++ {
		if regular[i].DayNumber < regular[i-1].DayNumber {
			t.Fatalf("regular subset out of order at %d", i)
		}
	}
}

func TestProgressRatio(t *testing.T) {
	cases := []struct {
		current, total int
		want           float64
	}{
		{0, 22, 0},
		{22, 22, 1},
		{11, 22, 0.5},
		{30, 22, 1},
		{-1, 22, 0},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := sequence.ProgressRatio(tc.current, tc.total); got != tc.want {
			t.Fatalf("ratio(%d,%d)=%v, want %v", tc.current, tc.total, got, tc.want)
		}
	}
}

func TestProgressPercentRounds(t *testing.T) {
	if got := sequence.ProgressPercent(5, 22); got != 23 {
		t.Fatalf("percent(5,22)=%d, want 23", got)
	}
	if got := sequence.ProgressPercent(0, 0); got != 0 {
		t.Fatalf("percent(0,0)=%d, want 0", got)
	}
}

func TestApplyReceiptsDrivesDeliveryStatus(t *testing.T) {
	items := seqItems(4)
	receipts := []domain.DeliveryReceipt{
		{DayNumber: 0, Channel: "email", Status: "delivered"},
		{DayNumber: 1, Channel: "email", Status: "failed"},
		{DayNumber: 2, Channel: "sms", Status: "pending"},
	}
	applied := sequence.ApplyReceipts(items, receipts)
	want := map[int]string{0: "delivered", 1: "pending", 2: "pending", 3: "pending"}
	for _, it := range applied {
		if it.DeliveryStatus != want[it.DayNumber] {
			t.Fatalf("day %d: status %s, want %s", it.DayNumber, it.DeliveryStatus, want[it.DayNumber])
		}
	}
}

func TestDayViewsEnabledByDeliveryOnly(t *testing.T) {
	items := seqItems(3)
	receipts := []domain.DeliveryReceipt{{DayNumber: 1, Channel: "email", Status: "delivered"}}
	views := sequence.DayViews(items, receipts)
	if len(views) != 3 {
		t.Fatalf("views: got %d, want 3 (no items hidden)", len(views))
	}
	for _, v := range views {
		wantEnabled := v.Item.DayNumber == 1
		if v.Enabled != wantEnabled {
			t.Fatalf("day %d enabled=%v, want %v", v.Item.DayNumber, v.Enabled, wantEnabled)
		}
	}
}
