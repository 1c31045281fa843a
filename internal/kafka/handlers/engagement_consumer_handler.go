package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"tripmate/internal/services"
	"tripmate/internal/websocket"
)

// EngagementConsumerLogic 把互动事件从 Kafka 落库，并给在线的目标
// 用户推一个实时提示。落库以 EventID 去重，所以重复投递是安全的。
type EngagementConsumerLogic struct {
	engagementService services.EngagementService
	hub               *websocket.Hub
}

// NewEngagementConsumerLogic creates a new EngagementConsumerLogic instance.
// hub 可以为 nil（例如在没有实时推送的部署形态下）。
func NewEngagementConsumerLogic(es services.EngagementService, hub *websocket.Hub) *EngagementConsumerLogic {
	if es == nil {
		log.Panic("EngagementService cannot be nil")
	}
	return &EngagementConsumerLogic{engagementService: es, hub: hub}
}

// HandleEngagementEvent is the MessageHandler passed to the Kafka consumer.
// 返回 nil 表示消息已处理（或按坏消息跳过），消费者会提交 offset；
// 返回错误则不提交，等待重试。
func (h *EngagementConsumerLogic) HandleEngagementEvent(ctx context.Context, msg *kafka.Message) error {
	log.Printf("Kafka Consumer: Received message for Topic %s, Partition %d, Offset %d, Key: %s",
		*msg.TopicPartition.Topic, msg.TopicPartition.Partition, msg.TopicPartition.Offset, string(msg.Key))

	var event services.EngagementEventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Error unmarshalling engagement event (Value: '%s'): %v. This message will be skipped.", string(msg.Value), err)
		return nil // 坏消息跳过并提交，避免卡死分区
	}
	if event.EventID == "" || event.TargetUserID == 0 {
		log.Printf("Engagement event missing eventId or targetUserId, skipping: %+v", event)
		return nil
	}

	recorded, err := h.engagementService.Record(ctx, &event)
	if err != nil {
		log.Printf("Error recording engagement event %s: %v", event.EventID, err)
		return err // 可重试
	}

	if h.hub != nil {
		h.hub.NotifyUser(recorded.TargetUserID, websocket.NotificationNudge{
			Type:       recorded.Type,
			ActorID:    recorded.ActorID,
			EntityType: recorded.EntityType,
			EntityID:   recorded.EntityID,
			OccurredAt: event.Timestamp,
		})
	}
	return nil
}
