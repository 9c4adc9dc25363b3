package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicReadyAttempts = 5
	topicReadyBackoff  = 200 * time.Millisecond
)

var ErrTopicNotReady = errors.New("topic has no partitions yet")

// TopicCreator makes sure the quote topic exists before anything is
// produced to it. Partitioning is by symbol key, so more partitions means
// more processor workers can run in parallel.
type TopicCreator struct {
	logger     *zap.Logger
	dialer     KafkaDialer
	clock      Clock
	Partitions int
}

func NewTopicCreator(logger *zap.Logger, dialer KafkaDialer, clock Clock) *TopicCreator {
	return &TopicCreator{logger: logger, dialer: dialer, clock: clock, Partitions: 4}
}

// Create asks the controller for the topic and waits until it has
// partitions. An "already exists" answer from Kafka is not an error.
func (tc *TopicCreator) Create(ctx context.Context, brokers []string, topic string) error {
	conn, err := tc.dialAny(ctx, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     tc.Partitions,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	tc.logger.Info("Topic requested", zap.String("topic", topic), zap.Int("partitions", tc.Partitions))

	return tc.waitForTopic(conn, topic)
}

func (tc *TopicCreator) dialAny(ctx context.Context, brokers []string) (KafkaConn, error) {
	err := errors.New("no brokers configured")
	for _, addr := range brokers {
		var conn KafkaConn
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		tc.logger.Debug("Broker unreachable", zap.String("addr", addr), zap.Error(err))
	}
	return nil, fmt.Errorf("dial brokers: %w", err)
}

func (tc *TopicCreator) waitForTopic(conn KafkaConn, topic string) error {
	for i := 0; i < topicReadyAttempts; i++ {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return nil
		}
		tc.clock.Sleep(topicReadyBackoff)
	}
	return fmt.Errorf("%s: %w", topic, ErrTopicNotReady)
}
