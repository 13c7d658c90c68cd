package realtime

import "fmt"

// GrantVerifier checks a signed channel grant issued by the companion HTTP
// authorization endpoint. Implemented by the auth service.
type GrantVerifier interface {
	VerifyGrant(token string, userID int64, connID, channel string) error
}

// Gate decides whether an authenticated identity may subscribe to a channel.
// The server, not the client, is the trust boundary: channel names are
// guessable, so the static rule is always enforced here regardless of any
// grant the client presents.
type Gate struct {
	verifier GrantVerifier
}

// NewGate builds a gate. verifier may be nil, in which case private and
// presence subscriptions are checked against the static rules only.
func NewGate(verifier GrantVerifier) *Gate {
	return &Gate{verifier: verifier}
}

// Authorize applies the static channel rules:
//   - public channels: always allowed
//   - private-chat.<id>: allowed iff the identity is the receiver
//   - other private channels: denied (unknown pattern)
//   - presence channels: any authenticated user may join
func (g *Gate) Authorize(userID int64, channel string) error {
	switch KindOf(channel) {
	case KindPublic:
		return nil
	case KindPresence:
		// Any authenticated user may join a presence channel. Tighten
		// here if rooms grow ACLs.
		return nil
	default:
		receiver, ok := chatReceiver(channel)
		if !ok {
			return fmt.Errorf("channel %q: %w", channel, ErrSubscribeDenied)
		}
		if receiver != userID {
			return fmt.Errorf("channel %q: %w", channel, ErrSubscribeDenied)
		}
		return nil
	}
}

// Admit authorizes a subscription attempt, additionally requiring a valid
// signed grant for private and presence channels when a verifier is
// configured. The grant must be bound to this connection.
func (g *Gate) Admit(conn *Conn, channel, grant string) error {
	if err := g.Authorize(conn.UserID, channel); err != nil {
		return err
	}
	if KindOf(channel) == KindPublic || g.verifier == nil {
		return nil
	}
	if err := g.verifier.VerifyGrant(grant, conn.UserID, conn.ID, channel); err != nil {
		return fmt.Errorf("channel %q: %w", channel, ErrSubscribeDenied)
	}
	return nil
}
