package queue

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/schemagraph/internal/util"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// RenderQueue carries RenderJobMsg payloads.
	RenderQueue = "render_queue"

	retrySuffix = "_retry"
	dlqSuffix   = "_dlq"
	retryTTL    = int32(10000)
)

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares each queue together with its _retry queue (which
// dead-letters back into the main queue after a delay) and its _dlq.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + dlqSuffix
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + retrySuffix
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             retryTTL,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// Publisher sends a payload to a named queue.
type Publisher interface {
	Publish(queueName string, data []byte, headers amqp091.Table) error
}

// ChannelPublisher publishes on an AMQP channel.
type ChannelPublisher struct {
	Ch *amqp091.Channel
}

func (p *ChannelPublisher) Publish(queueName string, data []byte, headers amqp091.Table) error {
	return PublishFIFO(p.Ch, queueName, data, headers)
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte, headers amqp091.Table) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.Publish(
		"",
		queueName,
		false,
		false,
		publishing,
	)
}
