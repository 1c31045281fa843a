package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripmate/internal/models"
)

func TestNotificationUnreadCountMissingUser(t *testing.T) {
	f := newServiceFixture()

	if _, err := f.notificationService.UnreadCount(context.Background(), 99); !errors.Is(err, ErrNotificationUserGone) {
		t.Errorf("expected ErrNotificationUserGone, got %v", err)
	}
}

func TestNotificationUnreadCountAggregatesSources(t *testing.T) {
	f := newServiceFixture()
	viewer := f.users.addUser(1, "viewer")
	f.users.addUser(2, "peer")
	f.users.addUser(3, "requester")
	f.users.addUser(4, "host")
	f.trips.addTrip(10, 1, 4, 1) // viewer 自己的行程
	f.trips.addTrip(11, 4, 4, 1) // host 的行程

	// 认证结果：approved，未 dismiss。
	decidedAt := time.Now()
	viewer.VerificationStatus = models.VerificationApproved
	viewer.VerifiedAt = &decidedAt

	// 自己行程上的待处理加入请求。
	if _, err := f.tripService.RequestJoin(context.Background(), 10, 3, ""); err != nil {
		t.Fatalf("seed incoming trip request failed: %v", err)
	}

	// 自己发出、已被处理的加入请求。
	outgoing, err := f.tripService.RequestJoin(context.Background(), 11, 1, "")
	if err != nil {
		t.Fatalf("seed outgoing trip request failed: %v", err)
	}
	if err := f.tripService.ResolveRequest(context.Background(), outgoing.ID, 4, models.TripRequestStatusAccepted); err != nil {
		t.Fatalf("resolve outgoing request failed: %v", err)
	}

	// 收到的待处理关注请求。
	if _, err := f.followService.SendRequest(context.Background(), 3, 1); err != nil {
		t.Fatalf("seed follow request failed: %v", err)
	}

	// 自己发出、已被接受的关注请求。
	if _, err := f.followService.SendRequest(context.Background(), 1, 2); err != nil {
		t.Fatalf("seed outgoing follow failed: %v", err)
	}
	if err := f.followService.Accept(context.Background(), 1, 2); err != nil {
		t.Fatalf("accept outgoing follow failed: %v", err)
	}

	// 点赞事件（来自互动事件流）。
	err = f.engagements.CreateIgnoreConflict(context.Background(), &models.EngagementEvent{
		EventID: "evt-like-1", Type: models.EngagementLike, ActorID: 2, TargetUserID: 1,
	})
	if err != nil {
		t.Fatalf("seed engagement event failed: %v", err)
	}

	// 配对成功。
	if _, err := f.matchService.CreateOrAdvance(context.Background(), 1, 2); err != nil {
		t.Fatalf("seed match failed: %v", err)
	}
	if _, err := f.matchService.CreateOrAdvance(context.Background(), 2, 1); err != nil {
		t.Fatalf("seed mutual swipe failed: %v", err)
	}

	breakdown, err := f.notificationService.UnreadCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}

	if breakdown.Verification != 1 {
		t.Errorf("verification: expected 1, got %d", breakdown.Verification)
	}
	if breakdown.TripRequestsIncoming != 1 {
		t.Errorf("tripRequestsIncoming: expected 1, got %d", breakdown.TripRequestsIncoming)
	}
	if breakdown.TripRequestsResolved != 1 {
		t.Errorf("tripRequestsResolved: expected 1, got %d", breakdown.TripRequestsResolved)
	}
	if breakdown.FollowRequests != 1 {
		t.Errorf("followRequests: expected 1, got %d", breakdown.FollowRequests)
	}
	if breakdown.FollowsAccepted != 1 {
		t.Errorf("followsAccepted: expected 1, got %d", breakdown.FollowsAccepted)
	}
	if breakdown.Engagement != 1 {
		t.Errorf("engagement: expected 1, got %d", breakdown.Engagement)
	}
	if breakdown.MatchesAccepted != 1 {
		t.Errorf("matchesAccepted: expected 1, got %d", breakdown.MatchesAccepted)
	}
	if breakdown.Total() != 7 {
		t.Errorf("total: expected 7, got %d", breakdown.Total())
	}
}

func TestNotificationMarkReadMovesCursorOnly(t *testing.T) {
	f := newServiceFixture()
	f.users.addUser(1, "viewer")
	f.users.addUser(2, "peer")

	// 配对成功发生在游标之前。
	if _, err := f.matchService.CreateOrAdvance(context.Background(), 1, 2); err != nil {
		t.Fatalf("seed match failed: %v", err)
	}
	if _, err := f.matchService.CreateOrAdvance(context.Background(), 2, 1); err != nil {
		t.Fatalf("seed mutual swipe failed: %v", err)
	}

	before, err := f.notificationService.UnreadCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if before.MatchesAccepted != 1 {
		t.Fatalf("expected 1 unread match before check, got %d", before.MatchesAccepted)
	}

	if err := f.notificationService.MarkRead(context.Background(), 1); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	after, err := f.notificationService.UnreadCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if after.MatchesAccepted != 0 {
		t.Errorf("expected 0 unread matches after check, got %d", after.MatchesAccepted)
	}

	// 游标不隐藏卡片：feed 里仍然有配对成功的条目。
	items, err := f.notificationService.Feed(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	found := false
	for _, item := range items {
		if item.Kind() == models.NotificationMatchAccepted {
			found = true
		}
	}
	if !found {
		t.Error("expected match_accepted item to survive the cursor move")
	}
}

func TestNotificationUnreadCountSplitsMatchesAroundCursor(t *testing.T) {
	f := newServiceFixture()
	f.users.addUser(1, "viewer")
	f.users.addUser(2, "before")
	f.users.addUser(3, "after")

	// 第一个配对在游标之前成功。
	for _, swipe := range [][2]uint{{1, 2}, {2, 1}} {
		if _, err := f.matchService.CreateOrAdvance(context.Background(), swipe[0], swipe[1]); err != nil {
			t.Fatalf("seed first match failed: %v", err)
		}
	}
	if err := f.notificationService.MarkRead(context.Background(), 1); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	// 第二个配对在游标之后成功。
	for _, swipe := range [][2]uint{{1, 3}, {3, 1}} {
		if _, err := f.matchService.CreateOrAdvance(context.Background(), swipe[0], swipe[1]); err != nil {
			t.Fatalf("seed second match failed: %v", err)
		}
	}

	breakdown, err := f.notificationService.UnreadCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if breakdown.MatchesAccepted != 1 {
		t.Errorf("expected exactly the post-cursor match counted, got %d", breakdown.MatchesAccepted)
	}

	// 游标不影响 feed：两条配对成功的卡片都在。
	items, err := f.notificationService.Feed(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	matchItems := 0
	for _, item := range items {
		if item.Kind() == models.NotificationMatchAccepted {
			matchItems++
		}
	}
	if matchItems != 2 {
		t.Errorf("expected both match items in the feed, got %d", matchItems)
	}
}

func TestNotificationDismissalHidesFeedItemButNotOthers(t *testing.T) {
	f := newServiceFixture()
	viewer := f.users.addUser(1, "viewer")
	f.users.addUser(2, "peer")

	decidedAt := time.Now()
	viewer.VerificationStatus = models.VerificationRejected
	viewer.VerifiedAt = &decidedAt

	if _, err := f.matchService.CreateOrAdvance(context.Background(), 1, 2); err != nil {
		t.Fatalf("seed match failed: %v", err)
	}
	if _, err := f.matchService.CreateOrAdvance(context.Background(), 2, 1); err != nil {
		t.Fatalf("seed mutual swipe failed: %v", err)
	}

	if err := f.notificationService.DismissVerificationNotice(context.Background(), 1); err != nil {
		t.Fatalf("DismissVerificationNotice failed: %v", err)
	}

	items, err := f.notificationService.Feed(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	for _, item := range items {
		if item.Kind() == models.NotificationVerification {
			t.Error("expected verification item hidden after dismissal")
		}
	}

	breakdown, err := f.notificationService.UnreadCount(context.Background(), 1)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if breakdown.Verification != 0 {
		t.Errorf("expected dismissed verification excluded from count, got %d", breakdown.Verification)
	}
	if breakdown.MatchesAccepted != 1 {
		t.Errorf("expected match count unaffected by dismissal, got %d", breakdown.MatchesAccepted)
	}
}

func TestNotificationFeedIsReverseChronological(t *testing.T) {
	f := newServiceFixture()
	f.users.addUser(1, "viewer")
	f.users.addUser(2, "early")
	f.users.addUser(3, "late")

	for _, follower := range []uint{2, 3} {
		if _, err := f.followService.SendRequest(context.Background(), follower, 1); err != nil {
			t.Fatalf("seed follow request failed: %v", err)
		}
	}
	// 人为拉开两条请求的时间差。
	f.follows.findEdge(2, 1).CreatedAt = time.Now().Add(-time.Hour)

	items, err := f.notificationService.Feed(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !items[0].OccurredAt().After(items[1].OccurredAt()) {
		t.Error("expected newest item first")
	}
}

func TestNotificationFeedHonorsLimit(t *testing.T) {
	f := newServiceFixture()
	f.users.addUser(1, "viewer")
	for id := uint(2); id <= 6; id++ {
		f.users.addUser(id, "fan")
		if _, err := f.followService.SendRequest(context.Background(), id, 1); err != nil {
			t.Fatalf("seed follow request failed: %v", err)
		}
	}

	items, err := f.notificationService.Feed(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected feed truncated to 3 items, got %d", len(items))
	}
}
