package kafka

import (
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/config"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
)

// Client holds a Kafka writer shared by publishers.
type Client struct {
	writer *kafkago.Writer
}

// Writer returns the underlying writer.
func (c *Client) Writer() *kafkago.Writer {
	return c.writer
}

// Close flushes pending messages and closes the writer.
func (c *Client) Close() error {
	return c.writer.Close()
}

// MustNewClient creates a writer for the brokers from the environment.
// Messages are hashed by key so one order always lands on one partition.
func MustNewClient() *Client {
	var creds config.KafkaEnv
	if err := config.ParseEnv(&creds); err != nil {
		panic(err)
	}

	batchTimeout := time.Duration(viper.GetInt("kafka.batch_timeout_ms")) * time.Millisecond
	if batchTimeout == 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(creds.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: viper.GetBool("kafka.auto_create_topics"),
	}

	slog.Info("Kafka writer created", "brokers", creds.Brokers)

	return &Client{writer: writer}
}
