package utils

import (
	"testing"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/stretchr/testify/assert"
)

func TestNewDogStatsdClient(t *testing.T) {
	client := NewDogStatsdClient("", "bluebird_test")
	assert.NotNil(t, client)
	assert.NoError(t, client.Incr("test.counter", nil, 1))
	assert.NoError(t, client.Close())
}

func TestNewDogStatsdClientFallsBackToNoOp(t *testing.T) {
	client := NewDogStatsdClient("not a valid address", "bluebird_test")
	_, ok := client.(*statsd.NoOpClient)
	assert.True(t, ok)
}
