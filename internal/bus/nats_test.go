package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscardAcceptsAnything(t *testing.T) {
	var d Discard
	assert.NoError(t, d.Publish(SubjectAlertBatch, map[string]int{"total": 1}))
	assert.NoError(t, d.Publish(SubjectRunRequested, nil))
}

func TestNewPublisherBadURL(t *testing.T) {
	_, err := NewPublisher("nats://127.0.0.1:1")
	assert.Error(t, err)
}
