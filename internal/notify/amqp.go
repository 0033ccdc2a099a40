package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// TasksDetectedRoutingKey is the routing key of published detection events.
const TasksDetectedRoutingKey = "tasks.detected"

// AMQPEvent is the JSON body published for each batch.
type AMQPEvent struct {
	Type       string         `json:"type"`
	Count      int            `json:"count"`
	Tasks      []AMQPTaskInfo `json:"tasks"`
	DetectedAt time.Time      `json:"detected_at"`
}

// AMQPTaskInfo is the per-task part of an AMQPEvent.
type AMQPTaskInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Priority float64 `json:"priority"`
}

// AMQP publishes detection events to a topic exchange. The connection is opened on
// first send and reopened after it drops.
type AMQP struct {
	URL      func() string
	Exchange func() string

	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	dialed   string
	declared string
}

func (a *AMQP) Name() string { return "amqp" }

func (a *AMQP) url() string {
	if a.URL == nil {
		return ""
	}
	return strings.TrimSpace(a.URL())
}

func (a *AMQP) exchange() string {
	if a.Exchange != nil {
		if x := strings.TrimSpace(a.Exchange()); x != "" {
			return x
		}
	}
	return "taskwatch.events"
}

// Permission is granted exactly when a broker URL is configured.
func (a *AMQP) Permission(ctx context.Context) Permission {
	if a.url() == "" {
		return Denied
	}
	return Granted
}

func (a *AMQP) RequestPermission(ctx context.Context) (bool, error) {
	return a.Permission(ctx) == Granted, nil
}

func (a *AMQP) Send(ctx context.Context, m Message) error {
	ev := AMQPEvent{Type: "tasks_detected", Count: len(m.Tasks), DetectedAt: time.Now().UTC()}
	for _, t := range m.Tasks {
		ev.Tasks = append(ev.Tasks, AMQPTaskInfo{ID: t.ID, Title: t.Title, Priority: t.CurrentPriority})
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ch, err := a.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, a.exchange(), TasksDetectedRoutingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		a.closeLocked()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (a *AMQP) channelLocked() (*amqp091.Channel, error) {
	url := a.url()
	if url == "" {
		return nil, fmt.Errorf("amqp url not set")
	}
	if a.conn != nil && (a.conn.IsClosed() || a.dialed != url) {
		a.closeLocked()
	}
	if a.conn == nil {
		conn, err := amqp091.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		a.conn, a.channel, a.dialed, a.declared = conn, ch, url, ""
	}
	if x := a.exchange(); a.declared != x {
		if err := a.channel.ExchangeDeclare(x, "topic", true, false, false, false, nil); err != nil {
			a.closeLocked()
			return nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
		a.declared = x
	}
	return a.channel, nil
}

func (a *AMQP) closeLocked() {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
	a.conn, a.channel, a.dialed, a.declared = nil, nil, "", ""
}

// Close drops the broker connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
	return nil
}
