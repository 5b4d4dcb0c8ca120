// Package namespace implements the bidirectional mapping between
// (child, identifier) pairs and the globally unique identifiers the
// gateway's merged catalogue exposes to clients.
package namespace

import "strings"

// Separator is the literal two-underscore sequence used to join a child's
// name to an identifier it originated. It is deliberately unusual so that
// routing can split on its first occurrence without forbidding "__" inside
// child-originated names.
const Separator = "__"

// Encode joins a child name and an identifier into a single namespaced
// string: "server__name".
func Encode(server, name string) string {
	return server + Separator + name
}

// Decode returns the child name that owns s, i.e. the prefix before the
// first occurrence of Separator. If s carries no separator, or the prefix
// before it is empty, Decode returns "" to signal "not namespaced".
func Decode(s string) string {
	idx := strings.Index(s, Separator)
	if idx <= 0 {
		return ""
	}
	return s[:idx]
}

// Strip returns the suffix of s after the first "server__" prefix. It is
// the left inverse of Encode: for any server != "" and any name (even one
// containing "__"), Strip(server, Encode(server, name)) == name.
func Strip(server, s string) string {
	prefix := server + Separator
	return strings.TrimPrefix(s, prefix)
}
