package events

import (
	"context"
	"testing"

	"Tunehub/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	pub, err := NewPublisher(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, pub, "publishing is off by default")

	pub, err = NewPublisher(&config.Config{KafkaBrokers: []string{"127.0.0.1:9092"}, KafkaTopic: "t"})
	require.NoError(t, err)
	require.IsType(t, &KafkaPublisher{}, pub)
	assert.NoError(t, pub.Close())

	_, err = NewPublisher(&config.Config{EventsDriver: "kafka"})
	assert.Error(t, err)

	_, err = NewPublisher(&config.Config{EventsDriver: "amqp", AMQPURL: "http://not-amqp", AMQPExchange: "x"})
	assert.Error(t, err)

	_, err = NewPublisher(&config.Config{EventsDriver: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestAMQPPublishHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// no connection is touched once the caller has given up
	err := (&AMQPPublisher{exchange: "x"}).Publish(ctx, Record{Type: TypeMessageCreated})
	assert.ErrorIs(t, err, context.Canceled)
}
