package services

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/config"
	"tripmate/internal/models"
	"tripmate/internal/storage"
)

// mockUserRepository is an in-memory UserRepository for tests.
type mockUserRepository struct {
	users map[uint]*models.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[uint]*models.User)}
}

func (m *mockUserRepository) addUser(id uint, username string) *models.User {
	user := &models.User{
		BaseModel:           models.BaseModel{ID: id, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Username:            username,
		OnboardingCompleted: true,
	}
	m.users[id] = user
	return user
}

func (m *mockUserRepository) isDeactivated(id uint) bool {
	if user, ok := m.users[id]; ok {
		return user.Deactivated
	}
	return false
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	user, ok := m.users[id]
	if !ok || user.Deactivated {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.UserBasicInfo{ID: user.ID, Username: user.Username, Nickname: user.Nickname, AvatarURL: user.AvatarURL}, nil
}

func (m *mockUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	infos := []*models.UserBasicInfo{}
	for _, id := range userIDs {
		if info, err := m.GetBasicInfoByID(ctx, id); err == nil {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (m *mockUserRepository) FindCandidates(ctx context.Context, viewerID uint, excludeIDs []uint, offset, limit int) ([]*models.User, error) {
	excluded := make(map[uint]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	ids := make([]uint, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	candidates := []*models.User{}
	for _, id := range ids {
		user := m.users[id]
		if id == viewerID || user.Deactivated || !user.OnboardingCompleted {
			continue
		}
		if _, ok := excluded[id]; ok {
			continue
		}
		candidates = append(candidates, user)
	}

	if offset >= len(candidates) {
		return []*models.User{}, nil
	}
	candidates = candidates[offset:]
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (m *mockUserRepository) SetLastCheckedAt(ctx context.Context, userID uint, t time.Time) error {
	if user, ok := m.users[userID]; ok {
		checked := t
		user.LastCheckedAt = &checked
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (m *mockUserRepository) SetVerificationDismissed(ctx context.Context, userID uint) error {
	if user, ok := m.users[userID]; ok {
		user.VerificationDismissed = true
		return nil
	}
	return gorm.ErrRecordNotFound
}

// mockFollowRepository is an in-memory FollowRepository for tests.
type mockFollowRepository struct {
	users  *mockUserRepository
	edges  map[uint]*models.FollowEdge
	nextID uint
}

func newMockFollowRepository(users *mockUserRepository) *mockFollowRepository {
	return &mockFollowRepository{users: users, edges: make(map[uint]*models.FollowEdge), nextID: 1}
}

func (m *mockFollowRepository) findEdge(followerID, followingID uint) *models.FollowEdge {
	for _, edge := range m.edges {
		if edge.FollowerID == followerID && edge.FollowingID == followingID {
			return edge
		}
	}
	return nil
}

func (m *mockFollowRepository) Create(ctx context.Context, edge *models.FollowEdge) error {
	if existing := m.findEdge(edge.FollowerID, edge.FollowingID); existing != nil {
		return gorm.ErrDuplicatedKey
	}
	edge.ID = m.nextID
	m.nextID++
	edge.CreatedAt = time.Now()
	edge.UpdatedAt = time.Now()
	stored := *edge
	m.edges[edge.ID] = &stored
	return nil
}

func (m *mockFollowRepository) CreateIgnoreConflict(ctx context.Context, edge *models.FollowEdge) error {
	if existing := m.findEdge(edge.FollowerID, edge.FollowingID); existing != nil {
		return nil
	}
	return m.Create(ctx, edge)
}

func (m *mockFollowRepository) GetEdge(ctx context.Context, followerID, followingID uint) (*models.FollowEdge, error) {
	if edge := m.findEdge(followerID, followingID); edge != nil {
		copied := *edge
		return &copied, nil
	}
	return nil, nil
}

func (m *mockFollowRepository) Accept(ctx context.Context, edgeID uint) error {
	if edge, ok := m.edges[edgeID]; ok {
		edge.Status = models.FollowStatusAccepted
		edge.DismissedByFollower = false
		edge.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockFollowRepository) DeleteEdge(ctx context.Context, followerID, followingID uint, status models.FollowStatus) (int64, error) {
	edge := m.findEdge(followerID, followingID)
	if edge == nil || edge.Status != status {
		return 0, nil
	}
	delete(m.edges, edge.ID)
	return 1, nil
}

func (m *mockFollowRepository) SetDismissedByFollower(ctx context.Context, followerID, followingID uint) error {
	edge := m.findEdge(followerID, followingID)
	if edge != nil && edge.Status == models.FollowStatusAccepted {
		edge.DismissedByFollower = true
	}
	return nil
}

func (m *mockFollowRepository) AreMutualFollowers(ctx context.Context, userIDA, userIDB uint) (bool, error) {
	ab := m.findEdge(userIDA, userIDB)
	ba := m.findEdge(userIDB, userIDA)
	return ab != nil && ab.Status == models.FollowStatusAccepted &&
		ba != nil && ba.Status == models.FollowStatusAccepted, nil
}

func (m *mockFollowRepository) FollowedIDs(ctx context.Context, followerID uint) ([]uint, error) {
	ids := []uint{}
	for _, edge := range m.edges {
		if edge.FollowerID == followerID {
			ids = append(ids, edge.FollowingID)
		}
	}
	return ids, nil
}

func (m *mockFollowRepository) ListByFollower(ctx context.Context, followerID uint, status models.FollowStatus) ([]models.FollowEdge, error) {
	edges := []models.FollowEdge{}
	for _, edge := range m.edges {
		if edge.FollowerID == followerID && edge.Status == status && !m.users.isDeactivated(edge.FollowingID) {
			edges = append(edges, *edge)
		}
	}
	return edges, nil
}

func (m *mockFollowRepository) ListByFollowing(ctx context.Context, followingID uint, status models.FollowStatus) ([]models.FollowEdge, error) {
	edges := []models.FollowEdge{}
	for _, edge := range m.edges {
		if edge.FollowingID == followingID && edge.Status == status && !m.users.isDeactivated(edge.FollowerID) {
			edges = append(edges, *edge)
		}
	}
	return edges, nil
}

func (m *mockFollowRepository) CountPendingIncomingSince(ctx context.Context, userID uint, since *time.Time) (int64, error) {
	var count int64
	for _, edge := range m.edges {
		if edge.FollowingID != userID || edge.Status != models.FollowStatusPending || m.users.isDeactivated(edge.FollowerID) {
			continue
		}
		if since != nil && !edge.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *mockFollowRepository) CountAcceptedOutgoingSince(ctx context.Context, followerID uint, since *time.Time) (int64, error) {
	var count int64
	for _, edge := range m.edges {
		if edge.FollowerID != followerID || edge.Status != models.FollowStatusAccepted ||
			edge.DismissedByFollower || m.users.isDeactivated(edge.FollowingID) {
			continue
		}
		if since != nil && !edge.UpdatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

// mockMatchRepository is an in-memory MatchRepository for tests.
type mockMatchRepository struct {
	users   *mockUserRepository
	matches map[uint]*models.Match
	nextID  uint
}

func newMockMatchRepository(users *mockUserRepository) *mockMatchRepository {
	return &mockMatchRepository{users: users, matches: make(map[uint]*models.Match), nextID: 1}
}

func (m *mockMatchRepository) Create(ctx context.Context, match *models.Match) error {
	match.EnsureCanonicalOrder()
	match.ID = m.nextID
	m.nextID++
	match.CreatedAt = time.Now()
	match.UpdatedAt = time.Now()
	stored := *match
	m.matches[match.ID] = &stored
	return nil
}

func (m *mockMatchRepository) GetByPair(ctx context.Context, userIDLow, userIDHigh uint) (*models.Match, error) {
	for _, match := range m.matches {
		if match.UserIDLow == userIDLow && match.UserIDHigh == userIDHigh {
			copied := *match
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockMatchRepository) GetByID(ctx context.Context, matchID uint) (*models.Match, error) {
	if match, ok := m.matches[matchID]; ok {
		copied := *match
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMatchRepository) AcceptPending(ctx context.Context, matchID uint) error {
	if match, ok := m.matches[matchID]; ok && match.Status == models.MatchStatusPending {
		match.Status = models.MatchStatusAccepted
		match.DismissedBySideLow = false
		match.DismissedBySideHigh = false
		match.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockMatchRepository) MarkRejected(ctx context.Context, matchID uint, dismisserID uint) error {
	if match, ok := m.matches[matchID]; ok {
		match.Status = models.MatchStatusRejected
		match.InitiatedBy = dismisserID
		match.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockMatchRepository) ReopenPending(ctx context.Context, matchID uint, initiatorID uint) error {
	if match, ok := m.matches[matchID]; ok && match.Status == models.MatchStatusRejected {
		match.Status = models.MatchStatusPending
		match.InitiatedBy = initiatorID
		match.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockMatchRepository) SetDismissed(ctx context.Context, matchID uint, lowSide bool) error {
	if match, ok := m.matches[matchID]; ok && match.Status == models.MatchStatusAccepted {
		if lowSide {
			match.DismissedBySideLow = true
		} else {
			match.DismissedBySideHigh = true
		}
	}
	return nil
}

func (m *mockMatchRepository) ExcludedPairIDs(ctx context.Context, viewerID uint, rejectedCutoff time.Time) ([]uint, error) {
	ids := []uint{}
	for _, match := range m.matches {
		if !match.Involves(viewerID) {
			continue
		}
		if match.Status == models.MatchStatusRejected && match.InitiatedBy != viewerID && match.UpdatedAt.Before(rejectedCutoff) {
			continue
		}
		ids = append(ids, match.OtherSide(viewerID))
	}
	return ids, nil
}

func (m *mockMatchRepository) ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.Match, error) {
	matches := []models.Match{}
	for _, match := range m.matches {
		if match.Involves(userID) && match.Status == models.MatchStatusAccepted &&
			!m.users.isDeactivated(match.OtherSide(userID)) {
			matches = append(matches, *match)
		}
	}
	return matches, nil
}

func (m *mockMatchRepository) CountAcceptedSince(ctx context.Context, userID uint, since *time.Time) (int64, error) {
	var count int64
	for _, match := range m.matches {
		if !match.Involves(userID) || match.Status != models.MatchStatusAccepted || match.DismissedBy(userID) {
			continue
		}
		if since != nil && !match.UpdatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

// mockTripRepository is an in-memory TripRepository for tests.
type mockTripRepository struct {
	trips   map[uint]*models.Trip
	members map[uint]map[uint]*models.TripMember
	nextID  uint
}

func newMockTripRepository() *mockTripRepository {
	return &mockTripRepository{
		trips:   make(map[uint]*models.Trip),
		members: make(map[uint]map[uint]*models.TripMember),
		nextID:  1,
	}
}

func (m *mockTripRepository) addTrip(id, ownerID uint, maxSize, currentSize int) *models.Trip {
	trip := &models.Trip{
		BaseModel:        models.BaseModel{ID: id, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		OwnerID:          ownerID,
		Title:            "trip",
		MaxGroupSize:     maxSize,
		CurrentGroupSize: currentSize,
	}
	m.trips[id] = trip
	m.members[id] = map[uint]*models.TripMember{
		ownerID: {TripID: id, UserID: ownerID, Role: models.TripRoleOwner, JoinedAt: time.Now()},
	}
	return trip
}

func (m *mockTripRepository) GetTripByID(ctx context.Context, tripID uint) (*models.Trip, error) {
	if trip, ok := m.trips[tripID]; ok {
		copied := *trip
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTripRepository) GetTripByIDForUpdate(ctx context.Context, tripID uint) (*models.Trip, error) {
	return m.GetTripByID(ctx, tripID)
}

func (m *mockTripRepository) IncrementGroupSize(ctx context.Context, tripID uint) error {
	if trip, ok := m.trips[tripID]; ok {
		trip.CurrentGroupSize++
	}
	return nil
}

func (m *mockTripRepository) DecrementGroupSizeFloored(ctx context.Context, tripID uint) error {
	if trip, ok := m.trips[tripID]; ok && trip.CurrentGroupSize > 0 {
		trip.CurrentGroupSize--
	}
	return nil
}

func (m *mockTripRepository) AddMember(ctx context.Context, member *models.TripMember) error {
	if _, ok := m.members[member.TripID]; !ok {
		m.members[member.TripID] = make(map[uint]*models.TripMember)
	}
	if _, exists := m.members[member.TripID][member.UserID]; exists {
		return nil // OnConflict DoNothing
	}
	member.ID = m.nextID
	m.nextID++
	stored := *member
	m.members[member.TripID][member.UserID] = &stored
	return nil
}

func (m *mockTripRepository) GetMember(ctx context.Context, tripID, userID uint) (*models.TripMember, error) {
	if roster, ok := m.members[tripID]; ok {
		if member, ok := roster[userID]; ok {
			copied := *member
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockTripRepository) RemoveMember(ctx context.Context, tripID, userID uint) error {
	roster, ok := m.members[tripID]
	if !ok {
		return nil
	}
	member, ok := roster[userID]
	if !ok {
		return nil
	}
	if member.Role == models.TripRoleOwner {
		owners := 0
		for _, mem := range roster {
			if mem.Role == models.TripRoleOwner {
				owners++
			}
		}
		if owners <= 1 {
			// 最后一个 owner 行不删除。
			return nil
		}
	}
	delete(roster, userID)
	return nil
}

// mockTripRequestRepository is an in-memory TripRequestRepository for tests.
type mockTripRequestRepository struct {
	users    *mockUserRepository
	trips    *mockTripRepository
	requests map[uint]*models.TripRequest
	nextID   uint
}

func newMockTripRequestRepository(users *mockUserRepository, trips *mockTripRepository) *mockTripRequestRepository {
	return &mockTripRequestRepository{
		users:    users,
		trips:    trips,
		requests: make(map[uint]*models.TripRequest),
		nextID:   1,
	}
}

func (m *mockTripRequestRepository) Create(ctx context.Context, request *models.TripRequest) error {
	request.ID = m.nextID
	m.nextID++
	request.CreatedAt = time.Now()
	request.UpdatedAt = time.Now()
	stored := *request
	m.requests[request.ID] = &stored
	return nil
}

func (m *mockTripRequestRepository) GetByID(ctx context.Context, requestID uint) (*models.TripRequest, error) {
	if request, ok := m.requests[requestID]; ok {
		copied := *request
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTripRequestRepository) GetByPair(ctx context.Context, tripID, userID uint) (*models.TripRequest, error) {
	for _, request := range m.requests {
		if request.TripID == tripID && request.UserID == userID {
			copied := *request
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockTripRequestRepository) UpdateStatus(ctx context.Context, requestID uint, status models.TripRequestStatus) error {
	if request, ok := m.requests[requestID]; ok {
		request.Status = status
		request.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockTripRequestRepository) SetDismissed(ctx context.Context, requestID uint) error {
	if request, ok := m.requests[requestID]; ok {
		request.Dismissed = true
	}
	return nil
}

func (m *mockTripRequestRepository) ListPendingForTrip(ctx context.Context, tripID uint) ([]models.TripRequest, error) {
	requests := []models.TripRequest{}
	for _, request := range m.requests {
		if request.TripID == tripID && request.Status == models.TripRequestStatusPending &&
			!m.users.isDeactivated(request.UserID) {
			requests = append(requests, *request)
		}
	}
	return requests, nil
}

func (m *mockTripRequestRepository) ListPendingForOwner(ctx context.Context, ownerID uint) ([]models.TripRequest, error) {
	requests := []models.TripRequest{}
	for _, request := range m.requests {
		trip, ok := m.trips.trips[request.TripID]
		if !ok || trip.OwnerID != ownerID {
			continue
		}
		if request.Status == models.TripRequestStatusPending && !m.users.isDeactivated(request.UserID) {
			requests = append(requests, *request)
		}
	}
	return requests, nil
}

func (m *mockTripRequestRepository) ListOutgoing(ctx context.Context, userID uint) ([]models.TripRequest, error) {
	requests := []models.TripRequest{}
	for _, request := range m.requests {
		if request.UserID == userID {
			requests = append(requests, *request)
		}
	}
	return requests, nil
}

func (m *mockTripRequestRepository) CountPendingForOwnerSince(ctx context.Context, ownerID uint, since *time.Time) (int64, error) {
	pending, err := m.ListPendingForOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, request := range pending {
		if since != nil && !request.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *mockTripRequestRepository) CountResolvedOutgoingSince(ctx context.Context, userID uint, since *time.Time) (int64, error) {
	var count int64
	for _, request := range m.requests {
		if request.UserID != userID || request.Dismissed {
			continue
		}
		if request.Status != models.TripRequestStatusAccepted && request.Status != models.TripRequestStatusRejected {
			continue
		}
		if since != nil && !request.UpdatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

// mockConversationRepository is an in-memory ConversationRepository for tests.
type mockConversationRepository struct {
	users         *mockUserRepository
	conversations map[uint]*models.Conversation
	messages      map[uint]*models.Message
	nextConvoID   uint
	nextMessageID uint
}

func newMockConversationRepository(users *mockUserRepository) *mockConversationRepository {
	return &mockConversationRepository{
		users:         users,
		conversations: make(map[uint]*models.Conversation),
		messages:      make(map[uint]*models.Message),
		nextConvoID:   1,
		nextMessageID: 1,
	}
}

func (m *mockConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	conversation.EnsureCanonicalOrder()
	for _, existing := range m.conversations {
		if existing.UserIDLow == conversation.UserIDLow && existing.UserIDHigh == conversation.UserIDHigh {
			return gorm.ErrDuplicatedKey
		}
	}
	conversation.ID = m.nextConvoID
	m.nextConvoID++
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = time.Now()
	stored := *conversation
	m.conversations[conversation.ID] = &stored
	return nil
}

func (m *mockConversationRepository) GetByID(ctx context.Context, conversationID uint) (*models.Conversation, error) {
	if convo, ok := m.conversations[conversationID]; ok {
		copied := *convo
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockConversationRepository) GetByPair(ctx context.Context, userIDLow, userIDHigh uint) (*models.Conversation, error) {
	for _, convo := range m.conversations {
		if convo.UserIDLow == userIDLow && convo.UserIDHigh == userIDHigh {
			copied := *convo
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockConversationRepository) UpgradeToActive(ctx context.Context, conversationID uint) error {
	if convo, ok := m.conversations[conversationID]; ok && convo.Status == models.ConversationRequest {
		convo.Status = models.ConversationActive
		convo.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockConversationRepository) RecordMessage(ctx context.Context, conversation *models.Conversation, messageID uint, recipientID uint) error {
	convo, ok := m.conversations[conversation.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	id := messageID
	convo.LastMessageID = &id
	if convo.UserIDLow == recipientID {
		convo.LastReadAtLow = nil
	} else {
		convo.LastReadAtHigh = nil
	}
	convo.UpdatedAt = time.Now()
	return nil
}

func (m *mockConversationRepository) SetLastReadAt(ctx context.Context, conversation *models.Conversation, userID uint, t time.Time) error {
	convo, ok := m.conversations[conversation.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	read := t
	if convo.UserIDLow == userID {
		convo.LastReadAtLow = &read
	} else {
		convo.LastReadAtHigh = &read
	}
	return nil
}

func (m *mockConversationRepository) ListInvolving(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	for _, convo := range m.conversations {
		if convo.Involves(userID) && !m.users.isDeactivated(convo.OtherSide(userID)) {
			conversations = append(conversations, *convo)
		}
	}
	return conversations, nil
}

func (m *mockConversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	message.ID = m.nextMessageID
	m.nextMessageID++
	message.CreatedAt = time.Now()
	message.UpdatedAt = time.Now()
	stored := *message
	m.messages[message.ID] = &stored
	return nil
}

func (m *mockConversationRepository) GetMessageByID(ctx context.Context, messageID uint) (*models.Message, error) {
	if message, ok := m.messages[messageID]; ok {
		copied := *message
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockConversationRepository) ListMessages(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error) {
	messages := []models.Message{}
	for _, message := range m.messages {
		if message.ConversationID == conversationID {
			messages = append(messages, *message)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].SentAt.After(messages[j].SentAt) })
	return messages, nil
}

// mockEngagementRepository is an in-memory EngagementRepository for tests.
type mockEngagementRepository struct {
	users  *mockUserRepository
	events map[string]*models.EngagementEvent
	nextID uint
}

func newMockEngagementRepository(users *mockUserRepository) *mockEngagementRepository {
	return &mockEngagementRepository{users: users, events: make(map[string]*models.EngagementEvent), nextID: 1}
}

func (m *mockEngagementRepository) CreateIgnoreConflict(ctx context.Context, event *models.EngagementEvent) error {
	if _, exists := m.events[event.EventID]; exists {
		return nil
	}
	event.ID = m.nextID
	m.nextID++
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()
	stored := *event
	m.events[event.EventID] = &stored
	return nil
}

func (m *mockEngagementRepository) isCountable(event *models.EngagementEvent, targetUserID uint) bool {
	if event.TargetUserID != targetUserID || event.ActorID == targetUserID || m.users.isDeactivated(event.ActorID) {
		return false
	}
	return event.Type == models.EngagementLike || event.Type == models.EngagementComment
}

func (m *mockEngagementRepository) CountLikesCommentsSince(ctx context.Context, targetUserID uint, since *time.Time) (int64, error) {
	var count int64
	for _, event := range m.events {
		if !m.isCountable(event, targetUserID) {
			continue
		}
		if since != nil && !event.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *mockEngagementRepository) ListLikesCommentsSince(ctx context.Context, targetUserID uint, since *time.Time, limit int) ([]models.EngagementEvent, error) {
	events := []models.EngagementEvent{}
	for _, event := range m.events {
		if !m.isCountable(event, targetUserID) {
			continue
		}
		if since != nil && !event.CreatedAt.After(*since) {
			continue
		}
		events = append(events, *event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// mockTransactionManager executes the unit of work directly against the
// shared mocks. 回滚语义不在这里模拟；测试只关心 fn 的错误被原样传回。
type mockTransactionManager struct {
	repos storage.Repositories
}

func (m *mockTransactionManager) Do(ctx context.Context, fn func(repos storage.Repositories) error) error {
	return fn(m.repos)
}

// recordedEvent captures one Emit call on the engagement recorder.
type recordedEvent struct {
	Type         models.EngagementEventType
	ActorID      uint
	TargetUserID uint
	EntityType   string
	EntityID     uint
}

// mockEngagementService records emitted events instead of producing to Kafka.
type mockEngagementService struct {
	engagementRepo storage.EngagementRepository
	emitted        []recordedEvent
}

func (m *mockEngagementService) Emit(ctx context.Context, eventType models.EngagementEventType, actorID, targetUserID uint, entityType string, entityID uint) error {
	m.emitted = append(m.emitted, recordedEvent{
		Type:         eventType,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		EntityType:   entityType,
		EntityID:     entityID,
	})
	return nil
}

func (m *mockEngagementService) Record(ctx context.Context, msg *EngagementEventMessage) (*models.EngagementEvent, error) {
	event := &models.EngagementEvent{
		EventID:      msg.EventID,
		Type:         msg.Type,
		ActorID:      msg.ActorID,
		TargetUserID: msg.TargetUserID,
		EntityType:   msg.EntityType,
		EntityID:     msg.EntityID,
		PayloadRaw:   msg.Payload,
	}
	if err := m.engagementRepo.CreateIgnoreConflict(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (m *mockEngagementService) countEmitted(eventType models.EngagementEventType) int {
	count := 0
	for _, event := range m.emitted {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

// serviceFixture bundles the shared mocks and the services under test.
type serviceFixture struct {
	users       *mockUserRepository
	follows     *mockFollowRepository
	matches     *mockMatchRepository
	trips       *mockTripRepository
	requests    *mockTripRequestRepository
	convos      *mockConversationRepository
	engagements *mockEngagementRepository
	emitter     *mockEngagementService
	social      config.SocialConfig

	followService       FollowService
	matchService        MatchService
	tripService         TripMembershipService
	convoService        ConversationService
	notificationService NotificationService
}

func newServiceFixture() *serviceFixture {
	users := newMockUserRepository()
	follows := newMockFollowRepository(users)
	matches := newMockMatchRepository(users)
	trips := newMockTripRepository()
	requests := newMockTripRequestRepository(users, trips)
	convos := newMockConversationRepository(users)
	engagements := newMockEngagementRepository(users)
	emitter := &mockEngagementService{engagementRepo: engagements}

	txm := &mockTransactionManager{repos: storage.Repositories{
		Users:         users,
		Follows:       follows,
		Matches:       matches,
		Trips:         trips,
		TripRequests:  requests,
		Conversations: convos,
		Engagements:   engagements,
	}}

	social := config.SocialConfig{
		MatchRejectCooldown: 72 * time.Hour,
		CandidatePageSize:   20,
	}

	return &serviceFixture{
		users:       users,
		follows:     follows,
		matches:     matches,
		trips:       trips,
		requests:    requests,
		convos:      convos,
		engagements: engagements,
		emitter:     emitter,
		social:      social,

		followService:       NewFollowService(txm, follows, users, convos, emitter),
		matchService:        NewMatchService(txm, matches, follows, users, convos, emitter, social),
		tripService:         NewTripMembershipService(txm, trips, requests, users, emitter),
		convoService:        NewConversationService(txm, convos, follows, users),
		notificationService: NewNotificationService(users, follows, matches, requests, engagements),
	}
}
