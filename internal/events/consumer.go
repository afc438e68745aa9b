package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"access_service/internal/service"

	"github.com/rabbitmq/amqp091-go"
)

// EventConsumer listens to document lifecycle events so grants never outlive
// the documents they point at: a deleted document gets all its active grants
// revoked.
type EventConsumer struct {
	uri       string
	conn      *amqp091.Connection
	channel   *amqp091.Channel
	queueName string
	grants    *service.GrantService
	shutdown  chan struct{}
	wg        sync.WaitGroup
	enabled   bool
}

func NewEventConsumer(rabbitURI string, grants *service.GrantService) (*EventConsumer, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event consumption is disabled")
		return &EventConsumer{
			grants:   grants,
			shutdown: make(chan struct{}),
			enabled:  false,
		}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := channel.Qos(10, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &EventConsumer{
		uri:       rabbitURI,
		conn:      conn,
		channel:   channel,
		queueName: "access-service-events",
		grants:    grants,
		shutdown:  make(chan struct{}),
		enabled:   true,
	}, nil
}

func (c *EventConsumer) Start() error {
	if !c.enabled {
		log.Println("Event consumption is disabled, not starting consumer")
		return nil
	}

	msgs, err := c.subscribe()
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(msgs)
	}()

	log.Println("Event consumer started and listening for document events")
	return nil
}

// subscribe declares the exchange, queue and binding and registers the
// consumer on the current channel.
func (c *EventConsumer) subscribe() (<-chan amqp091.Delivery, error) {
	err := c.channel.ExchangeDeclare(
		documentExchange, // name
		"topic",          // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", documentExchange, err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,        // queue name
		"document.deleted", // routing key
		documentExchange,   // exchange
		false,              // no-wait
		nil,                // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}
	return msgs, nil
}

func (c *EventConsumer) run(msgs <-chan amqp091.Delivery) {
	for {
		if !c.consume(msgs) {
			return
		}

		var ok bool
		msgs, ok = c.reestablish()
		if !ok {
			return
		}
	}
}

// consume drains deliveries until shutdown or a closed channel. Returns true
// when the channel closed and the subscription needs re-establishing, false
// on shutdown.
func (c *EventConsumer) consume(msgs <-chan amqp091.Delivery) bool {
	for {
		select {
		case <-c.shutdown:
			log.Println("Stopping event consumer")
			return false
		case msg, ok := <-msgs:
			if !ok {
				log.Println("Delivery channel closed, re-establishing consumer...")
				return true
			}

			if err := c.processMessage(msg); err != nil {
				log.Printf("FAILED to process message - Exchange: %s, RoutingKey: %s, Error: %v",
					msg.Exchange, msg.RoutingKey, err)
			}
			// Ack either way: a poison message must not requeue forever, and
			// grant revocation is retried by the next sync cycle anyway.
			if err := msg.Ack(false); err != nil {
				log.Printf("Error acknowledging message: %v", err)
			}
		}
	}
}

// reestablish re-dials the broker with backoff until the subscription is
// live again or shutdown is requested.
func (c *EventConsumer) reestablish() (<-chan amqp091.Delivery, bool) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-c.shutdown:
			return nil, false
		case <-time.After(backoff):
		}

		conn, err := amqp091.Dial(c.uri)
		if err != nil {
			log.Printf("Failed to reconnect event consumer: %v, retrying in %v", err, backoff)
		} else {
			channel, chErr := conn.Channel()
			if chErr == nil {
				chErr = channel.Qos(10, 0, false)
			}
			if chErr != nil {
				conn.Close()
				log.Printf("Failed to reopen consumer channel: %v, retrying in %v", chErr, backoff)
			} else {
				if c.conn != nil {
					c.conn.Close()
				}
				c.conn = conn
				c.channel = channel

				msgs, subErr := c.subscribe()
				if subErr == nil {
					log.Println("Event consumer reconnected")
					return msgs, true
				}
				log.Printf("Failed to resubscribe consumer: %v, retrying in %v", subErr, backoff)
			}
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *EventConsumer) processMessage(msg amqp091.Delivery) error {
	switch msg.RoutingKey {
	case "document.deleted":
		return c.handleDocumentDeleted(msg.Body)
	default:
		log.Printf("Unknown routing key: %s from exchange: %s", msg.RoutingKey, msg.Exchange)
		return nil
	}
}

func (c *EventConsumer) handleDocumentDeleted(body []byte) error {
	var event DocumentDeletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode document.deleted event: %w", err)
	}
	if event.DocumentID == 0 {
		return fmt.Errorf("document.deleted event without document_id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	revoked, err := c.grants.RevokeAllForDocument(ctx, event.DocumentID, "system")
	if err != nil {
		return err
	}

	log.Printf("Revoked %d grants for deleted document %d", revoked, event.DocumentID)
	return nil
}

func (c *EventConsumer) Close() error {
	close(c.shutdown)
	c.wg.Wait()

	var err error
	if c.channel != nil {
		err = c.channel.Close()
	}
	if c.conn != nil {
		if connErr := c.conn.Close(); connErr != nil {
			err = connErr
		}
	}
	return err
}
