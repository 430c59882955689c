package storage

import (
	"fmt"
	"strings"
	"time"
)

// Key layout:
//
//	user:{id}                          JSON domain.User
//	username:{lower(name)}             user id
//	email:{lower(email)}               user id
//	group:{id}                         JSON domain.Group
//	member:{user}:{group}              empty, membership index
//	msg:{conversation}:{nanos}:{uuid}  JSON domain.MessageRecord
//
// Conversations are "g:{group}" or "d:{a}:{b}" with a < b, so both sides
// of a direct chat share one prefix. The 19-digit timestamp keeps keys in
// chronological order.
const (
	prefixUser     = "user:"
	prefixUsername = "username:"
	prefixEmail    = "email:"
	prefixGroup    = "group:"
	prefixMember   = "member:"
	prefixMessage  = "msg:"
)

func userKey(id string) []byte {
	return []byte(prefixUser + id)
}

func usernameKey(name string) []byte {
	return []byte(prefixUsername + strings.ToLower(name))
}

func emailKey(email string) []byte {
	return []byte(prefixEmail + strings.ToLower(email))
}

func groupKey(id string) []byte {
	return []byte(prefixGroup + id)
}

func memberKey(userID, groupID string) []byte {
	return []byte(prefixMember + userID + ":" + groupID)
}

func memberPrefix(userID string) []byte {
	return []byte(prefixMember + userID + ":")
}

func groupConversation(groupID string) string {
	return "g:" + groupID
}

func directConversation(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "d:" + a + ":" + b
}

func messagePrefix(conversation string) []byte {
	return []byte(prefixMessage + conversation + ":")
}

func messageKey(conversation string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", prefixMessage, conversation, at.UnixNano(), id))
}
