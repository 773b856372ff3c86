package redis

import (
	"context"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingPublisher struct {
	channels []string
	messages []string
	streams  []map[string]interface{}
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, message interface{}) {
	r.channels = append(r.channels, channel)
	r.messages = append(r.messages, message.(string))
}

func (r *recordingPublisher) XAdd(_ context.Context, _ string, values map[string]interface{}) string {
	r.streams = append(r.streams, values)
	return "1-0"
}

func TestVoteChannelRoundTrip(t *testing.T) {
	assert.Equal(t, "cesavote:12:vote.recorded", VoteChannel(12))

	id, ok := ElectionFromChannel(VoteChannel(12))
	require.True(t, ok)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"", "cesavote::vote.recorded", "canopy:1:block.indexed", "cesavote:x:vote.recorded"} {
		_, ok := ElectionFromChannel(bad)
		assert.False(t, ok, bad)
	}
}

func TestNotifierPublishesWithoutVoter(t *testing.T) {
	pub := &recordingPublisher{}
	n := &Notifier{pub: pub, logger: zaptest.NewLogger(t)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.VoteRecorded(ctx, ballot.Event{
		ElectionID:  3,
		CandidateID: 9,
		TxID:        "TX",
		At:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	require.Equal(t, []string{"cesavote:3:vote.recorded"}, pub.channels)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(pub.messages[0]), &decoded))
	assert.Equal(t, "TX", decoded["txid"])
	assert.EqualValues(t, 9, decoded["candidate_id"])
	assert.NotContains(t, decoded, "voter_id")

	require.Len(t, pub.streams, 1)
	assert.Equal(t, int64(3), pub.streams[0]["election_id"])
}
