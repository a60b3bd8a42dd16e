package outbox

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterRoundTrip(t *testing.T) {
	event := orderEvent("9")
	letter := newDeadLetter(event, errors.New("timeout"), time.Unix(0, 0))

	envelope, err := letter.Envelope()
	require.NoError(t, err)
	assert.Equal(t, event.ID, envelope.ID)
	assert.Equal(t, event.EventType, envelope.EventType)

	var decoded DeadLetter
	require.NoError(t, json.Unmarshal(envelope.Payload, &decoded))
	assert.Equal(t, "timeout", decoded.PublishError)

	restored, err := decoded.Message()
	require.NoError(t, err)
	assert.Equal(t, event, restored)
}

func TestDeadLetterMessageValidation(t *testing.T) {
	tests := map[string]DeadLetter{
		"no outbox id":  {EventType: "order.created", Payload: json.RawMessage(`{}`)},
		"no event type": {OutboxID: "x", Payload: json.RawMessage(`{}`)},
		"no payload":    {OutboxID: "x", EventType: "order.created"},
	}
	for name, letter := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := letter.Message()
			require.ErrorIs(t, err, errIncompleteDeadLetter)
		})
	}
}
