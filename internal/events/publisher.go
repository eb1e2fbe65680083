package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sysu-ecnc-dev/fleet-manager/backend/internal/domain"
)

// Channel 是 *amqp.Channel 中用到的部分
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch       Channel
	exchange string
	timeout  time.Duration
}

// NewPublisher 声明 fanout 类型的交换机，告警、通知、报表等服务各自绑定自己的队列
func NewPublisher(ch Channel, exchange string, timeout time.Duration) (*Publisher, error) {
	if err := ch.ExchangeDeclare(
		exchange, // 交换机名称
		"fanout", // 类型
		true,     // 是否持久化
		false,    // 是否自动删除
		false,    // 是否为内部交换机
		false,    // 是否不等待
		nil,      // 额外参数
	); err != nil {
		return nil, err
	}

	return &Publisher{ch: ch, exchange: exchange, timeout: timeout}, nil
}

func (p *Publisher) PublishShiftEvent(ctx context.Context, event domain.ShiftEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(
		ctx,
		p.exchange,
		string(event.Type), // fanout 忽略路由键，但消费者可以据此区分事件
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Type:         string(event.Type),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
}
