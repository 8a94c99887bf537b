// internal/pkg/mq/kafka_test.go
package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestKafkaHeaderCarrier(t *testing.T) {
	carrier := KafkaHeaderCarrier{}

	assert.Equal(t, "", carrier.Get("traceparent"))

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))

	// 同键重设必须覆盖而不是追加
	carrier.Set("traceparent", "00-abc-def-02")
	assert.Equal(t, "00-abc-def-02", carrier.Get("traceparent"))
	assert.Len(t, carrier, 1)

	carrier.Set("tracestate", "vendor=1")
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, carrier.Keys())
}

func TestKafkaHeaderCarrier_FromExistingHeaders(t *testing.T) {
	carrier := KafkaHeaderCarrier([]kafka.Header{
		{Key: "traceparent", Value: []byte("00-abc-def-01")},
	})
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
}
