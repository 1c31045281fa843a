package models

import "time"

// NotificationKind 标识通知条目的来源表（封闭集合）。
type NotificationKind string

const (
	NotificationVerification        NotificationKind = "verification_outcome"
	NotificationTripRequestIncoming NotificationKind = "trip_request_incoming"
	NotificationTripRequestResolved NotificationKind = "trip_request_resolved"
	NotificationFollowRequest       NotificationKind = "follow_request"
	NotificationFollowAccepted      NotificationKind = "follow_accepted"
	NotificationEngagement          NotificationKind = "engagement"
	NotificationMatchAccepted       NotificationKind = "match_accepted"
)

// NotificationItem 是通知流中的一个条目。每个来源一个变体类型，
// 各自只携带与其相关的字段，而不是一个满是可空字段的大记录。
type NotificationItem interface {
	Kind() NotificationKind
	OccurredAt() time.Time
}

// VerificationNotice 认证审核有了结果。
type VerificationNotice struct {
	Status    VerificationStatus `json:"status"`
	DecidedAt time.Time          `json:"decidedAt"`
}

func (n VerificationNotice) Kind() NotificationKind { return NotificationVerification }
func (n VerificationNotice) OccurredAt() time.Time  { return n.DecidedAt }

// TripRequestIncomingNotice 自己拥有的行程收到了新的加入请求。
type TripRequestIncomingNotice struct {
	Request   TripRequest    `json:"request"`
	Requester *UserBasicInfo `json:"requester,omitempty"`
}

func (n TripRequestIncomingNotice) Kind() NotificationKind { return NotificationTripRequestIncoming }
func (n TripRequestIncomingNotice) OccurredAt() time.Time  { return n.Request.CreatedAt }

// TripRequestResolvedNotice 自己发出的加入请求被接受或拒绝。
type TripRequestResolvedNotice struct {
	Request TripRequest `json:"request"`
}

func (n TripRequestResolvedNotice) Kind() NotificationKind { return NotificationTripRequestResolved }
func (n TripRequestResolvedNotice) OccurredAt() time.Time  { return n.Request.UpdatedAt }

// FollowRequestNotice 收到了新的关注请求。
type FollowRequestNotice struct {
	Edge      FollowEdge     `json:"edge"`
	Requester *UserBasicInfo `json:"requester,omitempty"`
}

func (n FollowRequestNotice) Kind() NotificationKind { return NotificationFollowRequest }
func (n FollowRequestNotice) OccurredAt() time.Time  { return n.Edge.CreatedAt }

// FollowAcceptedNotice 自己发出的关注请求被接受了。
type FollowAcceptedNotice struct {
	Edge FollowEdge     `json:"edge"`
	Peer *UserBasicInfo `json:"peer,omitempty"`
}

func (n FollowAcceptedNotice) Kind() NotificationKind { return NotificationFollowAccepted }
func (n FollowAcceptedNotice) OccurredAt() time.Time  { return n.Edge.UpdatedAt }

// EngagementNotice 自己的帖子收到了点赞或评论。
type EngagementNotice struct {
	Event EngagementEvent `json:"event"`
	Actor *UserBasicInfo  `json:"actor,omitempty"`
}

func (n EngagementNotice) Kind() NotificationKind { return NotificationEngagement }
func (n EngagementNotice) OccurredAt() time.Time  { return n.Event.CreatedAt }

// MatchAcceptedNotice 配对成功。
type MatchAcceptedNotice struct {
	Match Match          `json:"match"`
	Peer  *UserBasicInfo `json:"peer,omitempty"`
}

func (n MatchAcceptedNotice) Kind() NotificationKind { return NotificationMatchAccepted }
func (n MatchAcceptedNotice) OccurredAt() time.Time  { return n.Match.UpdatedAt }

// UnreadBreakdown 是未读计数的分项结果，总数是各分项之和。
type UnreadBreakdown struct {
	Verification         int `json:"verification"`
	TripRequestsIncoming int `json:"tripRequestsIncoming"`
	TripRequestsResolved int `json:"tripRequestsResolved"`
	FollowRequests       int `json:"followRequests"`
	FollowsAccepted      int `json:"followsAccepted"`
	Engagement           int `json:"engagement"`
	MatchesAccepted      int `json:"matchesAccepted"`
}

// Total sums all sub-counts.
func (b UnreadBreakdown) Total() int {
	return b.Verification + b.TripRequestsIncoming + b.TripRequestsResolved +
		b.FollowRequests + b.FollowsAccepted + b.Engagement + b.MatchesAccepted
}
