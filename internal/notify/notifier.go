// Package notify delivers outbound messages to the chat gateway. Delivery
// is fire-and-forget: failures are logged and never propagate to the
// ledger path that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Notifier dispatches a message to a recipient. Implementations must never
// return delivery failures to the caller.
type Notifier interface {
	NotifyUser(userID int64, text string)
	NotifyGroup(text string)
	NotifyAdmin(text string)
}

// Event is the JSON payload published for the chat gateway to consume
type Event struct {
	EventID   string `json:"event_id"`
	Recipient string `json:"recipient"` // user | group | admin
	UserID    int64  `json:"user_id,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
}

// AMQPNotifier publishes notification events to a fanout-consumed exchange
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	adminID  int64
	groupID  int64
	log      *logrus.Logger
}

// NewAMQPNotifier connects to the broker and declares the exchange
func NewAMQPNotifier(url, exchange string, adminID, groupID int64, log *logrus.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.WithField("exchange", exchange).Info("connected to notification broker")

	return &AMQPNotifier{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		adminID:  adminID,
		groupID:  groupID,
		log:      log,
	}, nil
}

// Close releases the broker connection
func (n *AMQPNotifier) Close() {
	if n.ch != nil {
		n.ch.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *AMQPNotifier) NotifyUser(userID int64, text string) {
	n.publish(Event{Recipient: "user", UserID: userID, Text: text})
}

func (n *AMQPNotifier) NotifyGroup(text string) {
	if n.groupID == 0 {
		return
	}
	n.publish(Event{Recipient: "group", UserID: n.groupID, Text: text})
}

func (n *AMQPNotifier) NotifyAdmin(text string) {
	if n.adminID == 0 {
		return
	}
	n.publish(Event{Recipient: "admin", UserID: n.adminID, Text: text})
}

func (n *AMQPNotifier) publish(event Event) {
	event.EventID = uuid.New().String()
	event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	body, err := json.Marshal(event)
	if err != nil {
		n.log.WithError(err).Warn("failed to marshal notification event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = n.ch.PublishWithContext(ctx,
		n.exchange,
		"notify."+event.Recipient,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Body:         body,
		})
	if err != nil {
		// Best-effort by design: the ledger write already committed.
		n.log.WithError(err).WithField("recipient", event.Recipient).
			Warn("failed to publish notification")
	}
}

// LogNotifier writes notifications to the log. Used when no broker is
// configured, and by tests.
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyUser(userID int64, text string) {
	n.log.WithFields(logrus.Fields{"recipient": "user", "user_id": userID, "text": text}).
		Info("notification")
}

func (n *LogNotifier) NotifyGroup(text string) {
	n.log.WithFields(logrus.Fields{"recipient": "group", "text": text}).Info("notification")
}

func (n *LogNotifier) NotifyAdmin(text string) {
	n.log.WithFields(logrus.Fields{"recipient": "admin", "text": text}).Info("notification")
}
