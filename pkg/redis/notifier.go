package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

const (
	channelPrefix = "cesavote:"
	voteSuffix    = ":vote.recorded"
	// VotePattern matches the vote channel of every election.
	VotePattern = channelPrefix + "*" + voteSuffix
	// VoteStream keeps the most recent vote events for late subscribers.
	VoteStream = "cesavote:votes"
)

// VoteChannel is the Pub/Sub channel of one election.
func VoteChannel(electionID int64) string {
	return channelPrefix + strconv.FormatInt(electionID, 10) + voteSuffix
}

// ElectionFromChannel extracts the election id from a vote channel name.
func ElectionFromChannel(channel string) (int64, bool) {
	if !strings.HasPrefix(channel, channelPrefix) || !strings.HasSuffix(channel, voteSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(channel, channelPrefix), voteSuffix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// publisher is the subset of Client the notifier needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{})
	XAdd(ctx context.Context, stream string, values map[string]interface{}) string
}

// Notifier publishes confirmed ballots. Events carry the election, the
// candidate and the txid, never the voter.
type Notifier struct {
	pub    publisher
	logger *zap.Logger
}

func NewNotifier(c *Client, logger *zap.Logger) *Notifier {
	return &Notifier{pub: c, logger: logger}
}

func (n *Notifier) VoteRecorded(ctx context.Context, ev ballot.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn("Failed to encode vote event", zap.Error(err))
		return
	}
	// Notifications must not hold up the request that confirmed the vote.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	n.pub.Publish(ctx, VoteChannel(ev.ElectionID), string(payload))
	n.pub.XAdd(ctx, VoteStream, map[string]interface{}{
		"election_id": ev.ElectionID,
		"event":       string(payload),
	})
}
