// Package tutor implements the tutoring dialogue engine: a pedagogical
// state machine that turns unreliable model output into well-formed
// dialogue turns.
package tutor

import (
	"encoding/json"
	"strings"
)

// Stage is one phase of the fixed pedagogical sequence.
type Stage string

const (
	StageIntro     Stage = "intro"
	StageKeyPoints Stage = "key_points"
	StagePractice  Stage = "practice"
	StageQuiz      Stage = "quiz"
	StageWrapUp    Stage = "wrapup"
)

// stageOrder fixes the forward-only progression between stages.
var stageOrder = map[Stage]int{
	StageIntro:     0,
	StageKeyPoints: 1,
	StagePractice:  2,
	StageQuiz:      3,
	StageWrapUp:    4,
}

// Known reports whether s is one of the five defined stages.
func (s Stage) Known() bool {
	_, ok := stageOrder[s]
	return ok
}

// Before reports whether s comes earlier than other in the stage sequence.
// Unknown stages compare as earliest so they never pass clamping.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// ParseStage maps a model-emitted stage name onto a canonical Stage.
// Models are loose about casing and word separators ("keyPoints",
// "key-points", "wrap_up"), so matching is done on a folded form.
func ParseStage(raw string) (Stage, bool) {
	folded := strings.ToLower(strings.TrimSpace(raw))
	folded = strings.NewReplacer("_", "", "-", "", " ", "").Replace(folded)
	switch folded {
	case "intro", "introduction":
		return StageIntro, true
	case "keypoints", "keypoint", "concepts":
		return StageKeyPoints, true
	case "practice", "practise":
		return StagePractice, true
	case "quiz":
		return StageQuiz, true
	case "wrapup", "summary", "closing":
		return StageWrapUp, true
	}
	return "", false
}

// UnmarshalJSON accepts the loose stage spellings models produce. Unknown
// names are preserved verbatim so downstream clamping can reject them.
func (s *Stage) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if parsed, ok := ParseStage(raw); ok {
		*s = parsed
		return nil
	}
	*s = Stage(raw)
	return nil
}

// Awaiting marks whether the engine is blocked on a free-form student answer.
type Awaiting string

const (
	AwaitNone       Awaiting = "none"
	AwaitFreeAnswer Awaiting = "free_answer"
)

// LastAsked classifies the kind of question the previous turn posed. It
// disambiguates terse replies: "아니" means "no further questions" only
// when the engine just asked whether there were any.
type LastAsked string

const (
	AskedNone          LastAsked = "none"
	AskedMoreQuestions LastAsked = "ask_more_questions"
	AskedFreeAnswer    LastAsked = "free_answer"
)

// State is the session's pedagogical cursor. It is read once and rewritten
// once per turn; the engine itself holds nothing between turns.
type State struct {
	Stage          Stage     `json:"stage"`
	Idx            int       `json:"idx"`
	Awaiting       Awaiting  `json:"awaiting,omitempty"`
	ExpectedAnswer string    `json:"expected_answer,omitempty"`
	LastAsked      LastAsked `json:"last_asked,omitempty"`
}

// NewState returns the starting cursor for a fresh session.
func NewState() State {
	return State{Stage: StageIntro, Idx: 0, Awaiting: AwaitNone, LastAsked: AskedNone}
}

// normalized repairs a state that arrived damaged from storage or from a
// model proposal: unknown stage restarts the lesson, negative idx snaps to
// zero, and the awaiting flags fall back to their zero meanings.
func (s State) normalized() State {
	if !s.Stage.Known() {
		return NewState()
	}
	if s.Idx < 0 {
		s.Idx = 0
	}
	if s.Awaiting != AwaitFreeAnswer {
		s.Awaiting = AwaitNone
		s.ExpectedAnswer = ""
	}
	switch s.LastAsked {
	case AskedMoreQuestions, AskedFreeAnswer:
	default:
		s.LastAsked = AskedNone
	}
	return s
}
