package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/deepproteam/marketplace-service/internal/checkout"
	"github.com/deepproteam/marketplace-service/internal/model"
)

// Publisher передаёт подтверждённые заказы коллаборатору через Kafka
// реализует checkout.OrderSubmitter: брокер не отвечает идентификатором,
// поэтому идентификатор фабрикуется здесь и уходит в сообщении
type Publisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewPublisher создает новый экземпляр издателя заказов
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &Publisher{
		writer: writer,
		log:    log,
	}
}

// SubmitOrder публикует заказ в топик и возвращает его идентификатор
// ошибка публикации возвращается вызывающему — оформление заказа
// при этом откатывается в Idle, корзина не очищается
func (p *Publisher) SubmitOrder(ctx context.Context, order model.Order) (string, error) {
	const op = "transport.kafka.Publisher.SubmitOrder"

	order.OrderID = checkout.NewOrderID()

	value, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal order: %w", op, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.OrderID),
		Value: value,
	})
	if err != nil {
		return "", fmt.Errorf("%s: failed to write message: %w", op, err)
	}

	p.log.Info("order published",
		slog.String("order_id", order.OrderID),
		slog.String("topic", p.writer.Topic),
	)
	return order.OrderID, nil
}

// Close останавливает издателя
func (p *Publisher) Close() error {
	p.log.Info("closing kafka publisher")
	return p.writer.Close()
}
