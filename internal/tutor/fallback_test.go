package tutor_test

import (
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

func fullSource() tutor.Source {
	return tutor.Source{
		Concepts: []string{"일차방정식은 미지수의 차수가 1인 방정식이다", "이항할 때 부호가 바뀐다"},
		Practice: []tutor.PracticeItem{
			{Text: "x + 1 = 5를 푸세요", AnswerHint: "4"},
			{Text: "2x = 10을 푸세요", AnswerHint: "5"},
		},
		Quiz: []tutor.QuizItem{
			{Question: "3x - 1 = 8이면 x는?", Answer: "3"},
		},
	}
}

func TestSynthesize_Intro(t *testing.T) {
	src := fullSource()
	turn := tutor.Synthesize(tutor.NewState(), src)

	if turn.Message == "" {
		t.Fatal("intro turn has empty message")
	}
	if turn.NextState.Stage != tutor.StageKeyPoints {
		t.Errorf("NextState.Stage = %q, want key_points", turn.NextState.Stage)
	}
	if turn.NextState.Idx != 0 {
		t.Errorf("NextState.Idx = %d, want 0", turn.NextState.Idx)
	}
	if turn.NextState.Awaiting != tutor.AwaitNone {
		t.Errorf("Awaiting = %q, want none for a concept turn", turn.NextState.Awaiting)
	}
}

func TestSynthesize_IntroSkipsEmptyConcepts(t *testing.T) {
	src := fullSource()
	src.Concepts = nil

	turn := tutor.Synthesize(tutor.NewState(), src)

	if turn.NextState.Stage != tutor.StagePractice {
		t.Errorf("NextState.Stage = %q, want practice when concepts empty", turn.NextState.Stage)
	}
	if turn.NextState.Awaiting != tutor.AwaitFreeAnswer {
		t.Errorf("Awaiting = %q, want free_answer for a practice turn", turn.NextState.Awaiting)
	}
	if turn.NextState.ExpectedAnswer != "4" {
		t.Errorf("ExpectedAnswer = %q, want the item hint", turn.NextState.ExpectedAnswer)
	}
}

func TestSynthesize_KeyPointsAdvance(t *testing.T) {
	src := fullSource()
	st := tutor.State{Stage: tutor.StageKeyPoints, Idx: 0}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StageKeyPoints || turn.NextState.Idx != 1 {
		t.Errorf("NextState = %+v, want key_points idx 1", turn.NextState)
	}
	if turn.NextState.LastAsked != tutor.AskedMoreQuestions {
		t.Errorf("LastAsked = %q, want ask_more_questions", turn.NextState.LastAsked)
	}
}

func TestSynthesize_KeyPointsExhausted(t *testing.T) {
	src := fullSource()
	last := len(src.Concepts) - 1
	st := tutor.State{Stage: tutor.StageKeyPoints, Idx: last}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StagePractice {
		t.Errorf("NextState.Stage = %q, want practice after last concept", turn.NextState.Stage)
	}
	if turn.NextState.Idx != 0 {
		t.Errorf("NextState.Idx = %d, want 0", turn.NextState.Idx)
	}
}

func TestSynthesize_PracticeSetsExpectedAnswer(t *testing.T) {
	src := fullSource()
	st := tutor.State{Stage: tutor.StagePractice, Idx: 0}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StagePractice || turn.NextState.Idx != 1 {
		t.Errorf("NextState = %+v, want practice idx 1", turn.NextState)
	}
	if turn.NextState.ExpectedAnswer != "5" {
		t.Errorf("ExpectedAnswer = %q, want 5", turn.NextState.ExpectedAnswer)
	}
	if turn.NextState.Awaiting != tutor.AwaitFreeAnswer {
		t.Errorf("Awaiting = %q, want free_answer", turn.NextState.Awaiting)
	}
}

func TestSynthesize_PracticeExhaustedMovesToQuiz(t *testing.T) {
	src := fullSource()
	st := tutor.State{Stage: tutor.StagePractice, Idx: 1}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StageQuiz {
		t.Errorf("NextState.Stage = %q, want quiz", turn.NextState.Stage)
	}
	if turn.NextState.ExpectedAnswer != "3" {
		t.Errorf("ExpectedAnswer = %q, want the quiz answer", turn.NextState.ExpectedAnswer)
	}
}

func TestSynthesize_QuizExhaustedWrapsUp(t *testing.T) {
	src := fullSource()
	st := tutor.State{Stage: tutor.StageQuiz, Idx: 0}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StageWrapUp {
		t.Errorf("NextState.Stage = %q, want wrapup", turn.NextState.Stage)
	}
	if turn.Message == "" {
		t.Error("wrap-up turn has empty message")
	}
}

func TestSynthesize_EmptyQuizSkipped(t *testing.T) {
	src := fullSource()
	src.Quiz = nil
	st := tutor.State{Stage: tutor.StagePractice, Idx: 1}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StageWrapUp {
		t.Errorf("NextState.Stage = %q, want wrapup (quiz empty)", turn.NextState.Stage)
	}
}

func TestSynthesize_WrapUpIsTerminal(t *testing.T) {
	src := fullSource()
	st := tutor.State{Stage: tutor.StageWrapUp}

	turn := tutor.Synthesize(st, src)

	if turn.NextState.Stage != tutor.StageWrapUp {
		t.Errorf("NextState.Stage = %q, wrap-up must not advance", turn.NextState.Stage)
	}
	if turn.Message == "" {
		t.Error("wrap-up turn has empty message")
	}
}

func TestSynthesize_AlwaysValid(t *testing.T) {
	// Every (stage, idx) cursor over every partially-empty source must
	// yield a non-empty message, a reply slice, and an in-bounds cursor.
	sources := []tutor.Source{
		fullSource(),
		{Concepts: []string{"only one concept"}},
		{Practice: []tutor.PracticeItem{{Text: "only practice"}}},
		{Quiz: []tutor.QuizItem{{Question: "only quiz?", Answer: "yes"}}},
	}
	stages := []tutor.Stage{
		tutor.StageIntro, tutor.StageKeyPoints, tutor.StagePractice,
		tutor.StageQuiz, tutor.StageWrapUp,
	}

	for _, src := range sources {
		for _, stage := range stages {
			for idx := 0; idx < 4; idx++ {
				st := tutor.State{Stage: stage, Idx: idx}
				turn := tutor.Synthesize(st, src)

				if turn.Message == "" {
					t.Errorf("empty message for %s/%d", stage, idx)
				}
				if turn.SuggestedReplies == nil {
					t.Errorf("nil replies for %s/%d", stage, idx)
				}
				next := turn.NextState
				if n := src.Len(next.Stage); n > 0 && (next.Idx < 0 || next.Idx >= n) {
					t.Errorf("out-of-bounds next state %+v for %s/%d", next, stage, idx)
				}
				if n := src.Len(next.Stage); n == 0 && next.Stage != tutor.StageWrapUp {
					t.Errorf("synthesizer chose empty stage %q for %s/%d", next.Stage, stage, idx)
				}
			}
		}
	}
}
