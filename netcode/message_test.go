package netcode

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAckListIsSortedByPlayerID(t *testing.T) {
	list := NewAckList(map[PlayerID]Seq{"bob": 2, "alice": 1, "carol": 3})
	require.Len(t, list, 3)
	assert.Equal(t, PlayerID("alice"), list[0].PlayerID)
	assert.Equal(t, PlayerID("bob"), list[1].PlayerID)
	assert.Equal(t, PlayerID("carol"), list[2].PlayerID)
}

func TestAckListGetReportsPresence(t *testing.T) {
	list := NewAckList(map[PlayerID]Seq{"alice": 7})
	seq, ok := list.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, Seq(7), seq)

	_, ok = list.Get("bob")
	assert.False(t, ok, "AckList lists only players whose input was processed that tick")
}

func TestAckListToMapRoundTrips(t *testing.T) {
	acks := map[PlayerID]Seq{"alice": 1, "bob": 2}
	assert.Equal(t, acks, NewAckList(acks).ToMap())
}

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	payload := ConfigPayload{TickIntervalMs: 16.6667, TickRate: 60}
	data, err := EncodeEnvelope(MsgConfig, payload)
	require.NoError(t, err)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, MsgConfig, env.Type)

	var decoded ConfigPayload
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestSnapshotEnvelopeRoundTripPreservesAckOrderAndTimestampPrecision(t *testing.T) {
	ts := time.Unix(0, 123456789).UTC()
	snap := Snapshot[int]{
		Tick:      42,
		Timestamp: ts,
		State:     7,
		InputAcks: AckList{{PlayerID: "zeta", Seq: 1}, {PlayerID: "alpha", Seq: 2}},
	}
	data, err := EncodeEnvelope(MsgSnapshot, snap)
	require.NoError(t, err)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)

	var decoded Snapshot[int]
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, snap.InputAcks, decoded.InputAcks, "AckList's wire-level ordering is explicit insertion order, not re-sorted on decode")
	assert.True(t, snap.Timestamp.Equal(decoded.Timestamp))
}
