package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sitegate.io/internal/obs"
)

// MemoryStore keeps entries in process; used in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e.clone())
	return nil
}

// Entries returns a snapshot of everything appended so far.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// ByType filters the snapshot by activity type.
func (s *MemoryStore) ByType(t ActivityType) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// LogAlerts emits critical entries as warnings on the structured log.
type LogAlerts struct {
	log *zap.Logger
}

func NewLogAlerts() *LogAlerts { return &LogAlerts{log: obs.Named("security")} }

func (a *LogAlerts) Publish(_ context.Context, e Entry) error {
	a.log.Warn("security alert",
		zap.String("entry_id", e.ID),
		obs.Activity(string(e.Type)),
		obs.Portal(e.Portal),
		obs.PrincipalID(e.PrincipalID),
		zap.String("action", e.Action),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
		obs.ClientIP(e.IP),
		obs.RequestID(e.RequestID),
		zap.Bool(MetaUnauthorizedAccess, e.Unauthorized()),
	)
	return nil
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the alert topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaAlerts publishes critical entries as JSON to a Kafka topic keyed by principal.
type KafkaAlerts struct {
	writer kafkaWriter
}

func NewKafkaAlerts(cfg KafkaConfig) (*KafkaAlerts, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 2 * time.Second,
	}
	return &KafkaAlerts{writer: w}, nil
}

func (a *KafkaAlerts) Publish(ctx context.Context, e Entry) error {
	if a == nil || a.writer == nil {
		return fmt.Errorf("kafka alerts not initialized")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.PrincipalID),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "activity_type", Value: []byte(e.Type)},
			{Key: "portal", Value: []byte(e.Portal)},
		},
	})
}

func (a *KafkaAlerts) Close() error {
	if a == nil || a.writer == nil {
		return nil
	}
	return a.writer.Close()
}
