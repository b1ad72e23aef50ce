package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"go.uber.org/zap"
)

// ForecastRefreshed is emitted whenever a location's weekly forecast is replaced.
type ForecastRefreshed struct {
	LocationID  string                `json:"location_id"`
	Postcode    string                `json:"postcode"`
	Current     model.DailyForecast   `json:"current_weather"`
	Days        []model.DailyForecast `json:"weekly_weather"`
	RefreshedAt time.Time             `json:"refreshed_at"`
}

type Publisher interface {
	PublishForecastRefreshed(ctx context.Context, event ForecastRefreshed) error
	Close() error
}

// New returns a Kafka publisher when notifications are enabled and a no-op otherwise.
func New(cfg config.NotifyConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewKafkaPublisher(cfg, logger)
}

type Noop struct{}

func (Noop) PublishForecastRefreshed(context.Context, ForecastRefreshed) error { return nil }
func (Noop) Close() error                                                      { return nil }

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaPublisher(cfg config.NotifyConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // required by SyncProducer
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	brokers := strings.Split(cfg.Brokers, ",")
	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("Kafka publisher created", zap.Strings("brokers", brokers), zap.String("topic", cfg.Topic))
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, logger), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "notify")),
	}
}

func (k *KafkaPublisher) PublishForecastRefreshed(ctx context.Context, event ForecastRefreshed) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.LocationID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		k.logger.Error("Failed to publish forecast refresh",
			zap.String("location_id", event.LocationID),
			zap.Error(err))
		return err
	}

	k.logger.Debug("Published forecast refresh",
		zap.String("location_id", event.LocationID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
