package presence

import (
	"context"
	"testing"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/internal/testutil"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/registry"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg         *registry.Registry
	broadcaster *Broadcaster
}

func newFixture() *fixture {
	reg := registry.New()
	return &fixture{
		reg:         reg,
		broadcaster: New(reg, protocol.NewJSONCodec(), logging.Discard()),
	}
}

func (f *fixture) connect(t *testing.T, ident *domain.Identity) (*registry.Session, *testutil.Conn) {
	t.Helper()
	conn := testutil.NewConn()
	s := registry.NewSession(domain.NewSessionID(), conn, nil)
	require.NoError(t, f.reg.Add(s))
	if ident != nil {
		require.True(t, f.reg.AttachIdentity(s.ID(), *ident))
	}
	return s, conn
}

var (
	alice = domain.Identity{UserID: "u-alice", DisplayName: "alice"}
	bob   = domain.Identity{UserID: "u-bob", DisplayName: "bob"}
)

func TestAnnounce_EveryIdentifiedSessionGetsFullRoster(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	// Given two users, alice on two devices, and one anonymous session
	_, a1 := f.connect(t, &alice)
	_, b1 := f.connect(t, &bob)
	_, a2 := f.connect(t, &alice)
	_, anon := f.connect(t, nil)

	// When
	roster := f.broadcaster.Announce(context.Background())

	// Then
	want := domain.Roster{alice, bob}
	req.Equal(want, roster)
	for _, conn := range []*testutil.Conn{a1, b1, a2} {
		req.Len(conn.Rosters(), 1)
		req.Equal(want, conn.LastRoster())
	}
	req.Empty(anon.Rosters())
}

func TestAnnounce_AfterRemovalDropsUser(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	a, _ := f.connect(t, &alice)
	_, b1 := f.connect(t, &bob)
	f.broadcaster.Announce(context.Background())

	_, ok := f.reg.Remove(a.ID())
	req.True(ok)
	f.broadcaster.Announce(context.Background())

	req.Len(b1.Rosters(), 2)
	req.Equal(domain.Roster{bob}, b1.LastRoster())
}

func TestAnnounce_SurvivesFailingTransport(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	_, broken := f.connect(t, &alice)
	broken.SendErr = domain.ErrSendBufferFull
	_, b1 := f.connect(t, &bob)

	f.broadcaster.Announce(context.Background())

	req.Empty(broken.Rosters())
	req.Equal(domain.Roster{alice, bob}, b1.LastRoster())
}

func TestAnnounce_EmptyRegistry(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	roster := f.broadcaster.Announce(context.Background())

	req.NotNil(roster)
	req.Empty(roster)
}
