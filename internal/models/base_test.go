package models

import "testing"

func TestSortPair(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint
		wantLow  uint
		wantHigh uint
	}{
		{"already ordered", 1, 2, 1, 2},
		{"reversed", 9, 3, 3, 9},
		{"equal", 5, 5, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, high := SortPair(tt.a, tt.b)
			if low != tt.wantLow || high != tt.wantHigh {
				t.Errorf("SortPair(%d, %d) = (%d, %d), want (%d, %d)",
					tt.a, tt.b, low, high, tt.wantLow, tt.wantHigh)
			}
		})
	}
}

func TestMatchEnsureCanonicalOrder(t *testing.T) {
	match := &Match{UserIDLow: 7, UserIDHigh: 2}
	match.EnsureCanonicalOrder()
	if match.UserIDLow != 2 || match.UserIDHigh != 7 {
		t.Errorf("expected (2, 7), got (%d, %d)", match.UserIDLow, match.UserIDHigh)
	}

	// 已经有序的不动。
	match.EnsureCanonicalOrder()
	if match.UserIDLow != 2 || match.UserIDHigh != 7 {
		t.Errorf("expected (2, 7) unchanged, got (%d, %d)", match.UserIDLow, match.UserIDHigh)
	}
}

func TestMatchSideHelpers(t *testing.T) {
	match := &Match{UserIDLow: 2, UserIDHigh: 7, DismissedBySideLow: true}

	if !match.Involves(2) || !match.Involves(7) {
		t.Error("expected both sides to be involved")
	}
	if match.Involves(3) {
		t.Error("expected user 3 not involved")
	}
	if got := match.OtherSide(2); got != 7 {
		t.Errorf("OtherSide(2) = %d, want 7", got)
	}
	if got := match.OtherSide(7); got != 2 {
		t.Errorf("OtherSide(7) = %d, want 2", got)
	}
	if !match.DismissedBy(2) {
		t.Error("expected low side dismissed")
	}
	if match.DismissedBy(7) {
		t.Error("expected high side not dismissed")
	}
}

func TestConversationCanonicalOrderAndSides(t *testing.T) {
	convo := &Conversation{UserIDLow: 10, UserIDHigh: 4}
	convo.EnsureCanonicalOrder()
	if convo.UserIDLow != 4 || convo.UserIDHigh != 10 {
		t.Errorf("expected (4, 10), got (%d, %d)", convo.UserIDLow, convo.UserIDHigh)
	}
	if !convo.Involves(4) || !convo.Involves(10) || convo.Involves(5) {
		t.Error("unexpected party membership")
	}
	if got := convo.OtherSide(4); got != 10 {
		t.Errorf("OtherSide(4) = %d, want 10", got)
	}
}

func TestTripIsFull(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		current int
		want    bool
	}{
		{"below capacity", 4, 3, false},
		{"at capacity", 4, 4, true},
		{"over capacity", 4, 5, true},
		{"zero max means unbounded", 0, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := &Trip{MaxGroupSize: tt.max, CurrentGroupSize: tt.current}
			if got := trip.IsFull(); got != tt.want {
				t.Errorf("IsFull() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnreadBreakdownTotal(t *testing.T) {
	breakdown := UnreadBreakdown{
		Verification:         1,
		TripRequestsIncoming: 2,
		TripRequestsResolved: 3,
		FollowRequests:       4,
		FollowsAccepted:      5,
		Engagement:           6,
		MatchesAccepted:      7,
	}
	if got := breakdown.Total(); got != 28 {
		t.Errorf("Total() = %d, want 28", got)
	}
	if got := (UnreadBreakdown{}).Total(); got != 0 {
		t.Errorf("empty Total() = %d, want 0", got)
	}
}
