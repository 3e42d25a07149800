package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageType(t *testing.T) {
	tests := []struct {
		msg  any
		want string
	}{
		{msg: NewSource{}, want: "NewSource"},
		{msg: &RemovedSource{}, want: "RemovedSource"},
		{msg: PollSource{}, want: "PollSource"},
		{msg: RawEvent{}, want: "RawEvent"},
		{msg: &FilteredEvent{}, want: "FilteredEvent"},
		{msg: RankedEvent{}, want: "RankedEvent"},
		{msg: struct{}{}, want: "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MessageType(tt.msg))
	}
}

func TestEventID(t *testing.T) {
	tests := []struct {
		msg  any
		want string
	}{
		{msg: NewSource{ID: 7}, want: "7"},
		{msg: &RemovedSource{ID: 12}, want: "12"},
		{msg: PollSource{ID: 3}, want: "3"},
		{msg: RawEvent{ID: "ev-1"}, want: "ev-1"},
		{msg: &FilteredEvent{ID: "ev-2"}, want: "ev-2"},
		{msg: RankedEvent{ID: "ev-3"}, want: "ev-3"},
		{msg: struct{}{}, want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EventID(tt.msg))
	}
}

func TestDecode(t *testing.T) {
	data, err := json.Marshal(RawEvent{ID: "ev-1", Source: "bbc", Title: "t"})
	require.NoError(t, err)

	msg, ok := Decode("RawEvent", data)
	require.True(t, ok)
	raw := msg.(*RawEvent)
	assert.Equal(t, "ev-1", raw.ID)
	assert.Equal(t, "bbc", raw.Source)
}

func TestDecodeRejects(t *testing.T) {
	_, ok := Decode("Sentiment", []byte(`{}`))
	assert.False(t, ok)

	_, ok = Decode("RawEvent", []byte(`{broken`))
	assert.False(t, ok)
}
