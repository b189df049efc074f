package tutor

import (
	"strings"
	"unicode/utf8"
)

// fillerPrefixes are the leading interjection tokens ignored when grouping
// near-duplicate replies. The set is deliberately small and fixed;
// broader locale-aware stripping is a product decision, not a default.
var fillerPrefixes = map[string]struct{}{
	"오":   {},
	"아":   {},
	"와":   {},
	"음":   {},
	"어":   {},
	"oh":  {},
	"ah":  {},
	"wow": {},
	"hmm": {},
	"umm": {},
}

// DedupeReplies removes near-duplicate suggested replies. Candidates are
// grouped by a normalized form; each group keeps the shortest literal
// (first seen wins ties) at the position the group first appeared.
// Candidates that normalize to nothing are dropped. The result is always
// a non-nil slice, and the operation is idempotent.
func DedupeReplies(replies []string) []string {
	out := []string{}
	index := make(map[string]int, len(replies))

	for _, reply := range replies {
		key := replyKey(reply)
		if key == "" {
			continue
		}
		if at, seen := index[key]; seen {
			if utf8.RuneCountInString(reply) < utf8.RuneCountInString(out[at]) {
				out[at] = reply
			}
			continue
		}
		index[key] = len(out)
		out = append(out, reply)
	}
	return out
}

// replyKey computes the grouping form: fold, collapse whitespace, strip
// leading filler tokens.
func replyKey(reply string) string {
	fields := strings.Fields(foldReply(reply))
	for len(fields) > 0 {
		token := strings.TrimRight(fields[0], ",.!~")
		if _, filler := fillerPrefixes[token]; !filler {
			break
		}
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}
