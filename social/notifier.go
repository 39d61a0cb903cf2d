package social

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/hearthchat/server/cache"
)

// Event types published to the affected account.
const (
	EventFriendRequest  = "friend_request"
	EventFriendAccepted = "friend_accepted"
	EventFriendRefused  = "friend_refused"
	EventFriendRemoved  = "friend_removed"
)

// Event is a relationship change delivered to the other party.
type Event struct {
	Type string    `json:"type"`
	From int64     `json:"from"`
	At   time.Time `json:"at"`
}

// Notifier delivers relationship events. Delivery is best-effort and never
// rolls back a committed command.
type Notifier interface {
	Notify(ctx context.Context, to int64, ev Event) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, int64, Event) error { return nil }

// UserChannel is the pub/sub channel carrying events for accountID.
func UserChannel(accountID int64) string {
	return "user:" + strconv.FormatInt(accountID, 10)
}

// PubSubNotifier publishes events as JSON on the recipient's user channel.
type PubSubNotifier struct {
	ps cache.PubSub
}

// NewPubSubNotifier creates a PubSubNotifier on ps.
func NewPubSubNotifier(ps cache.PubSub) *PubSubNotifier {
	return &PubSubNotifier{ps: ps}
}

func (n *PubSubNotifier) Notify(ctx context.Context, to int64, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return n.ps.Publish(ctx, UserChannel(to), string(data))
}
