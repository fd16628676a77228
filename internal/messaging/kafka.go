// Package messaging publishes vertad's event streams over Kafka: computed
// target updates, retarget events, and chain tip notifications.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"

	"github.com/vertachain/vertad/pkg/circuit"
	"github.com/vertachain/vertad/pkg/errors"
	"github.com/vertachain/vertad/pkg/retry"
)

// KafkaClient is a pooled kafka-go wrapper speaking protobuf. Writers and
// readers are created lazily per topic and reused; all publishes run under
// a shared circuit breaker and the network retry policy.
type KafkaClient struct {
	brokers []string
	logger  *slog.Logger

	producers  map[string]*kafka.Writer
	producerMu sync.RWMutex
	consumers  map[string]*kafka.Reader
	consumerMu sync.RWMutex

	breaker     *circuit.Breaker
	retryConfig *retry.Config
}

// NewKafkaClient creates a client for the given broker list.
func NewKafkaClient(brokers []string, logger *slog.Logger) *KafkaClient {
	return &KafkaClient{
		brokers:   brokers,
		logger:    logger,
		producers: make(map[string]*kafka.Writer),
		consumers: make(map[string]*kafka.Reader),
		breaker: circuit.New(&circuit.Config{
			MaxFailures:     5,
			SuccessRequired: 3,
			Timeout:         15 * time.Second,
			ResetTimeout:    60 * time.Second,
		}),
		retryConfig: retry.NetworkConfig(),
	}
}

// GetProducer returns the pooled writer for a topic, creating it on first
// use.
func (k *KafkaClient) GetProducer(topic string) *kafka.Writer {
	k.producerMu.RLock()
	writer, ok := k.producers[topic]
	k.producerMu.RUnlock()
	if ok {
		return writer
	}

	k.producerMu.Lock()
	defer k.producerMu.Unlock()
	if writer, ok := k.producers[topic]; ok {
		return writer
	}

	writer = &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
	}
	k.producers[topic] = writer

	k.logger.Info("created Kafka producer", "topic", topic)
	return writer
}

// GetConsumer returns the pooled reader for a topic and consumer group,
// creating it on first use.
func (k *KafkaClient) GetConsumer(topic, groupID string) *kafka.Reader {
	key := fmt.Sprintf("%s-%s", topic, groupID)

	k.consumerMu.RLock()
	reader, ok := k.consumers[key]
	k.consumerMu.RUnlock()
	if ok {
		return reader
	}

	k.consumerMu.Lock()
	defer k.consumerMu.Unlock()
	if reader, ok := k.consumers[key]; ok {
		return reader
	}

	reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
	})
	k.consumers[key] = reader

	k.logger.Info("created Kafka consumer", "topic", topic, "group_id", groupID)
	return reader
}

// PublishProto marshals msg and publishes it under key. Marshal failures
// are reported as validation errors and never retried; broker failures go
// through the breaker and retry policy.
func (k *KafkaClient) PublishProto(ctx context.Context, topic, key string, msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "protobuf_marshal",
			"failed to marshal protobuf message").
			WithContext("topic", topic).
			WithContext("key", key)
	}
	return k.publish(ctx, topic, key, data, "publish_message")
}

// PublishJSON publishes already-encoded JSON under key.
func (k *KafkaClient) PublishJSON(ctx context.Context, topic, key string, data []byte) error {
	return k.publish(ctx, topic, key, data, "publish_json")
}

func (k *KafkaClient) publish(ctx context.Context, topic, key string, data []byte, operation string) error {
	return k.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, k.retryConfig, func() error {
			writer := k.GetProducer(topic)
			err := writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(key),
				Value: data,
				Time:  time.Now(),
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeKafka, operation,
					"failed to publish message to Kafka").
					WithContext("topic", topic).
					WithContext("key", key).
					WithContext("message_size", len(data))
			}

			k.logger.Debug("published message", "topic", topic, "key", key, "size", len(data))
			return nil
		})
	})
}

// ConsumeProto reads the next message from reader into msg and returns its
// key.
func (k *KafkaClient) ConsumeProto(ctx context.Context, reader *kafka.Reader, msg proto.Message) (string, error) {
	return circuit.ExecuteWithResult(ctx, k.breaker, func() (string, error) {
		return retry.DoWithResult(ctx, k.retryConfig, func() (string, error) {
			kafkaMsg, err := reader.ReadMessage(ctx)
			if err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeKafka, "read_message",
					"failed to read message from Kafka")
			}

			if err := proto.Unmarshal(kafkaMsg.Value, msg); err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeValidation, "protobuf_unmarshal",
					"failed to unmarshal protobuf message").
					WithContext("topic", kafkaMsg.Topic).
					WithContext("message_size", len(kafkaMsg.Value))
			}

			key := string(kafkaMsg.Key)
			k.logger.Debug("consumed message", "topic", kafkaMsg.Topic, "key", key, "size", len(kafkaMsg.Value))
			return key, nil
		})
	})
}

// MessageHandler processes decoded messages from a consumer loop.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, msg proto.Message) error
}

// StartConsumer runs a blocking consume loop for topic until ctx is
// canceled. msgFactory supplies a fresh message value per read; decode and
// handler failures are logged and the loop continues.
func (k *KafkaClient) StartConsumer(ctx context.Context, topic, groupID string, msgFactory func() proto.Message, handler MessageHandler) error {
	reader := k.GetConsumer(topic, groupID)
	defer func() {
		if err := reader.Close(); err != nil {
			k.logger.Error("failed to close Kafka reader", "error", err)
		}
	}()

	k.logger.Info("starting consumer", "topic", topic, "group_id", groupID)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("consumer stopping", "topic", topic)
			return ctx.Err()
		default:
		}

		msg := msgFactory()
		key, err := k.ConsumeProto(ctx, reader, msg)
		if err != nil {
			k.logger.Error("failed to consume message", "topic", topic, "error", err)
			continue
		}

		if err := handler.HandleMessage(ctx, key, msg); err != nil {
			k.logger.Error("failed to handle message", "topic", topic, "key", key, "error", err)
		}
	}
}

// Close shuts down every pooled writer and reader, returning the last
// error seen.
func (k *KafkaClient) Close() error {
	k.producerMu.Lock()
	defer k.producerMu.Unlock()
	k.consumerMu.Lock()
	defer k.consumerMu.Unlock()

	var lastErr error
	for topic, writer := range k.producers {
		if err := writer.Close(); err != nil {
			k.logger.Error("failed to close producer", "topic", topic, "error", err)
			lastErr = err
		}
	}
	for key, reader := range k.consumers {
		if err := reader.Close(); err != nil {
			k.logger.Error("failed to close consumer", "key", key, "error", err)
			lastErr = err
		}
	}

	k.producers = make(map[string]*kafka.Writer)
	k.consumers = make(map[string]*kafka.Reader)
	return lastErr
}
