package domain

import "fmt"

// TargetKind tags the identifier space a chat target lives in.
type TargetKind string

const (
	// TargetUnspecified is sent by clients that predate the kind tag.
	TargetUnspecified TargetKind = ""
	TargetPeer        TargetKind = "peer"
	TargetGroup       TargetKind = "group"
)

// ParseTargetKind validates a wire value.
func ParseTargetKind(s string) (TargetKind, error) {
	switch TargetKind(s) {
	case TargetUnspecified, TargetPeer, TargetGroup:
		return TargetKind(s), nil
	default:
		return TargetUnspecified, fmt.Errorf("unknown target kind %q", s)
	}
}

// Target is a resolved chat destination.
type Target struct {
	Kind TargetKind
	ID   string
}

func PeerTarget(userID string) Target {
	return Target{Kind: TargetPeer, ID: userID}
}

func GroupTarget(groupID string) Target {
	return Target{Kind: TargetGroup, ID: groupID}
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}
