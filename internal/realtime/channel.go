package realtime

import (
	"strconv"
	"strings"
)

// Kind classifies a channel by its name prefix.
type Kind int

const (
	// KindPublic channels accept any subscriber.
	KindPublic Kind = iota
	// KindPrivate channels require authorization before subscribing.
	KindPrivate
	// KindPresence channels are private and additionally track a member roster.
	KindPresence
)

const (
	privatePrefix  = "private-"
	presencePrefix = "presence-"

	// privateChatPrefix is the naming convention for one-to-one chat
	// channels: private-chat.<receiverUserID>. Part of the wire contract.
	privateChatPrefix = "private-chat."

	// PostsChannel is the shared public feed every client may subscribe to.
	PostsChannel = "posts"
)

func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindPresence:
		return "presence"
	default:
		return "public"
	}
}

// KindOf resolves the channel kind from its name.
// presence- is checked first: it is the more specific convention.
func KindOf(name string) Kind {
	switch {
	case strings.HasPrefix(name, presencePrefix):
		return KindPresence
	case strings.HasPrefix(name, privatePrefix):
		return KindPrivate
	default:
		return KindPublic
	}
}

// ChatChannel returns the private channel name for messages addressed to the
// given user.
func ChatChannel(receiverID int64) string {
	return privateChatPrefix + strconv.FormatInt(receiverID, 10)
}

// chatReceiver extracts the receiver user id from a private chat channel
// name. Returns false for any other channel name, including malformed
// private-chat suffixes.
func chatReceiver(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, privateChatPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
