package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"go.uber.org/zap/zaptest"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	p, err := New(config.NotifyConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.PublishForecastRefreshed(context.Background(), ForecastRefreshed{}))
	assert.NoError(t, p.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	event := ForecastRefreshed{
		LocationID:  "room-1",
		Postcode:    "SW1A1AA",
		Current:     model.DailyForecast{Date: "2024-06-15", Condition: "clear", TemperatureMin: 11, TemperatureMax: 19},
		RefreshedAt: time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC),
	}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "forecast-refreshed" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "room-1" {
			return errors.New("wrong key " + string(key))
		}
		value, _ := msg.Value.Encode()
		var got ForecastRefreshed
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.Current.Condition != "clear" || got.Postcode != "SW1A1AA" {
			return errors.New("unexpected payload " + string(value))
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "forecast-refreshed", zaptest.NewLogger(t))
	require.NoError(t, p.PublishForecastRefreshed(context.Background(), event))
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "forecast-refreshed", zaptest.NewLogger(t))
	err := p.PublishForecastRefreshed(context.Background(), ForecastRefreshed{LocationID: "room-1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
