package websocket

import (
	"encoding/json"
	"log"
	"time"

	"tripmate/internal/models"
)

// NotificationNudge 是推送给在线用户的轻量提示帧。它只是"有新动态"
// 的信号：丢失无妨，通知聚合器才是未读数的权威来源。
type NotificationNudge struct {
	Type       models.EngagementEventType `json:"type"`
	ActorID    uint                       `json:"actorId"`
	EntityType string                     `json:"entityType,omitempty"`
	EntityID   uint                       `json:"entityId,omitempty"`
	OccurredAt time.Time                  `json:"occurredAt"`
}

// Hub maintains the set of active clients and pushes notification nudges
// to them. Assumes one connection per user ID; a newer connection for the
// same user replaces the old one.
type Hub struct {
	clients map[uint]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Nudges aimed at a specific user.
	nudges chan targetedNudge
}

type targetedNudge struct {
	userID uint
	nudge  NotificationNudge
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		nudges:     make(chan targetedNudge, 256),
	}
}

// NotifyUser queues a nudge for delivery to the given user, if connected.
// 非阻塞发送：队列满了就丢弃，不能卡住 Kafka 消费者。
func (h *Hub) NotifyUser(userID uint, nudge NotificationNudge) {
	select {
	case h.nudges <- targetedNudge{userID: userID, nudge: nudge}:
	default:
		log.Printf("警告: Hub nudge channel is full. Dropping nudge for user %d", userID)
	}
}

// Run starts the hub and listens for messages on its channels.
func (h *Hub) Run() {
	log.Println("WebSocket Hub Run loop started.")
	for {
		select {
		case client := <-h.register:
			if existingClient, ok := h.clients[client.UserID]; ok {
				log.Printf("警告: 用户 %d 已有连接，关闭旧连接并注册新连接。", client.UserID)
				close(existingClient.send)
			}
			h.clients[client.UserID] = client
			log.Printf("客户端已注册: UserID %d", client.UserID)

		case client := <-h.unregister:
			if storedClient, ok := h.clients[client.UserID]; ok && storedClient == client {
				delete(h.clients, client.UserID)
				close(client.send)
				log.Printf("客户端已注销: UserID %d", client.UserID)
			} else {
				log.Printf("尝试注销一个不匹配或已过期的客户端连接: UserID %d", client.UserID)
			}

		case tn := <-h.nudges:
			client, ok := h.clients[tn.userID]
			if !ok {
				continue // 不在线，聚合器下次查询会补上
			}

			payload, err := json.Marshal(tn.nudge)
			if err != nil {
				log.Printf("错误: 无法序列化通知提示以发送给 UserID %d: %v", tn.userID, err)
				continue
			}

			select {
			case client.send <- payload:
			default:
				// 发送缓冲已满，视为慢客户端或已断开，移除。
				log.Printf("警告: UserID %d 的发送通道已满或关闭，移除客户端。", tn.userID)
				close(client.send)
				delete(h.clients, tn.userID)
			}
		}
	}
}
