package tutor

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// terseNegatives are the short replies that mean "no further questions",
// in the forms students actually type them.
var terseNegatives = map[string]struct{}{
	"아니":    {},
	"아니요":   {},
	"아니오":   {},
	"아뇨":    {},
	"없어":    {},
	"없어요":   {},
	"없습니다":  {},
	"괜찮아":   {},
	"괜찮아요":  {},
	"ㄴㄴ":    {},
	"no":    {},
	"nope":  {},
	"nah":   {},
	"none":  {},
	"괜찮습니다": {},
}

// IsNoFurtherQuestions reports whether the reply should be read as "no
// further questions". A terse negative only carries that meaning when the
// previous turn actually asked whether the student had more questions;
// anywhere else the same word is ordinary content — likely a wrong answer —
// and must flow to the evaluator untouched.
func IsNoFurtherQuestions(reply string, lastAsked LastAsked) bool {
	if lastAsked != AskedMoreQuestions {
		return false
	}
	return isTerseNegative(reply)
}

func isTerseNegative(reply string) bool {
	key := foldReply(reply)
	key = strings.TrimRight(key, ".!~?")
	if key == "" {
		return false
	}
	_, ok := terseNegatives[key]
	return ok
}

// foldReply lower-cases, NFKC-normalizes and width-folds a reply so that
// full-width latin and stray casing do not defeat lexicon lookups.
func foldReply(s string) string {
	s = width.Fold.String(norm.NFKC.String(strings.TrimSpace(s)))
	return strings.ToLower(s)
}
