package kafka

import (
	"strings"
	"time"

	"github.com/IBM/sarama"

	"delivery-dispatch/internal/config"
)

var (
	newConsumerGroup = sarama.NewConsumerGroup
	newSyncProducer  = sarama.NewSyncProducer
)

// GroupOption adjusts the consumer group settings.
type GroupOption func(*sarama.Config)

// FromNewest makes a group without committed offsets start at the log end.
// Per-instance groups use it so that a fresh replica does not replay history.
func FromNewest() GroupOption {
	return func(sc *sarama.Config) { sc.Consumer.Offsets.Initial = sarama.OffsetNewest }
}

// NewConsumerGroup creates a consumer group for the configured brokers.
// It returns nil, nil when Kafka is not configured.
func NewConsumerGroup(cfg config.Kafka, clientID string, opts ...GroupOption) (sarama.ConsumerGroup, error) {
	if !cfg.Enabled() || strings.TrimSpace(cfg.GroupID) == "" {
		return nil, nil
	}
	sc := ConsumerConfig(clientID, opts...)
	if cfg.MaxWait > 0 {
		sc.Consumer.MaxWaitTime = cfg.MaxWait
	}
	return newConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
}

// ConsumerConfig returns the sarama settings used by consumer groups.
func ConsumerConfig(clientID string, opts ...GroupOption) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = clientID
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// NewSyncProducer creates a producer that waits for all in-sync replicas and
// hashes message keys to partitions. It returns nil, nil when Kafka is not configured.
func NewSyncProducer(cfg config.Kafka, clientID string) (sarama.SyncProducer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return newSyncProducer(cfg.Brokers, ProducerConfig(clientID))
}

// ProducerConfig returns the sarama settings used by the publisher.
func ProducerConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = clientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc
}
