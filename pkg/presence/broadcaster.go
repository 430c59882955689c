// Package presence announces the online roster to every identified session.
package presence

import (
	"context"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/registry"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/samber/lo"
)

// Broadcaster recomputes and delivers the full roster on every call. It
// keeps no state of its own.
type Broadcaster struct {
	registry *registry.Registry
	codec    protocol.Codec
	logger   *logging.Logger
}

func New(reg *registry.Registry, codec protocol.Codec, logger *logging.Logger) *Broadcaster {
	return &Broadcaster{
		registry: reg,
		codec:    codec,
		logger:   logger,
	}
}

// Announce sends the current roster to every identified session and
// returns it. The roster is computed and delivered under the registry read
// lock, so every recipient sees the same membership.
func (b *Broadcaster) Announce(ctx context.Context) domain.Roster {
	var roster domain.Roster

	b.registry.ViewIdentified(func(sessions []*registry.Session) {
		roster = Roster(sessions)

		frame, err := protocol.EncodeFrame(b.codec, domain.MessageTypePresence, domain.PresencePayload{Online: roster})
		if err != nil {
			b.logger.Error("failed to encode presence", "error", err)
			return
		}

		for _, s := range sessions {
			if err := s.Conn().Send(ctx, frame); err != nil {
				b.logger.Debug("presence not delivered",
					"session_id", s.ID(),
					"user_id", s.UserID(),
					"error", err,
				)
			}
		}
	})

	b.logger.Debug("presence announced", "online", len(roster))
	return roster
}

// Roster builds the roster of the given sessions: one entry per user, in
// the order the user's first session connected.
func Roster(sessions []*registry.Session) domain.Roster {
	identities := lo.FilterMap(sessions, func(s *registry.Session, _ int) (domain.Identity, bool) {
		return s.Identity()
	})

	roster := lo.UniqBy(identities, func(ident domain.Identity) string {
		return ident.UserID
	})
	if roster == nil {
		return domain.Roster{}
	}
	return roster
}
