package tutor_test

import (
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

func TestIsNoFurtherQuestions(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		lastAsked tutor.LastAsked
		want      bool
	}{
		{"아니 after asking for questions", "아니", tutor.AskedMoreQuestions, true},
		{"아니요 after asking for questions", "아니요", tutor.AskedMoreQuestions, true},
		{"없어요 after asking for questions", "없어요", tutor.AskedMoreQuestions, true},
		{"no with punctuation", "No!", tutor.AskedMoreQuestions, true},
		{"nope", "nope", tutor.AskedMoreQuestions, true},

		// The same words are ordinary content anywhere else.
		{"아니 as a free answer", "아니", tutor.AskedFreeAnswer, false},
		{"아니 with nothing asked", "아니", tutor.AskedNone, false},
		{"no as a free answer", "no", tutor.AskedFreeAnswer, false},

		// Longer replies are never terse negatives.
		{"negative sentence", "아니요, 그게 아니라 3이에요", tutor.AskedMoreQuestions, false},
		{"affirmative", "네", tutor.AskedMoreQuestions, false},
		{"empty", "", tutor.AskedMoreQuestions, false},
		{"question", "x가 뭐예요?", tutor.AskedMoreQuestions, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tutor.IsNoFurtherQuestions(tt.reply, tt.lastAsked)
			if got != tt.want {
				t.Errorf("IsNoFurtherQuestions(%q, %q) = %v, want %v",
					tt.reply, tt.lastAsked, got, tt.want)
			}
		})
	}
}
