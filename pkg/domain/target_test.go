package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTargetKind(t *testing.T) {
	for _, s := range []string{"", "peer", "group"} {
		kind, err := ParseTargetKind(s)
		require.NoError(t, err, s)
		require.Equal(t, TargetKind(s), kind)
	}

	kind, err := ParseTargetKind("channel")
	require.ErrorContains(t, err, "channel")
	require.Equal(t, TargetUnspecified, kind)
}

func TestTarget_String(t *testing.T) {
	require.Equal(t, "group:g1", GroupTarget("g1").String())
	require.Equal(t, "peer:u1", PeerTarget("u1").String())
}
