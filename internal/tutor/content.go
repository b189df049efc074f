package tutor

import "errors"

// ErrEmptySource marks a content source with nothing to teach. It is the
// only condition the engine surfaces as a hard error: no valid turn can be
// synthesized from an empty lesson.
var ErrEmptySource = errors.New("tutor: content source has no items")

// PracticeItem is one practice prompt, optionally with a reference answer.
type PracticeItem struct {
	Text       string `json:"text" yaml:"text"`
	AnswerHint string `json:"answer_hint,omitempty" yaml:"answer_hint,omitempty"`
}

// QuizItem is one quiz question/answer pair.
type QuizItem struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// Source is the read-only lesson content a session teaches from. The engine
// never mutates it and addresses items only by (stage, idx).
type Source struct {
	Concepts []string       `json:"concepts"`
	Practice []PracticeItem `json:"practice"`
	Quiz     []QuizItem     `json:"quiz"`
}

// Validate rejects a source with all three collections empty.
func (s Source) Validate() error {
	if len(s.Concepts) == 0 && len(s.Practice) == 0 && len(s.Quiz) == 0 {
		return ErrEmptySource
	}
	return nil
}

// Len returns the number of items in the stage's collection. Intro and
// wrap-up carry no collection.
func (s Source) Len(stage Stage) int {
	switch stage {
	case StageKeyPoints:
		return len(s.Concepts)
	case StagePractice:
		return len(s.Practice)
	case StageQuiz:
		return len(s.Quiz)
	default:
		return 0
	}
}

// teachingStages is the content-bearing portion of the stage sequence.
var teachingStages = []Stage{StageKeyPoints, StagePractice, StageQuiz}

// nextNonEmptyStage returns the first stage after `after` that has content,
// or wrap-up when everything remaining is empty.
func nextNonEmptyStage(after Stage, src Source) Stage {
	for _, st := range teachingStages {
		if after.Before(st) && src.Len(st) > 0 {
			return st
		}
	}
	return StageWrapUp
}
