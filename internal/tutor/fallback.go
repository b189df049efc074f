package tutor

import (
	"fmt"
	"strings"
)

// Turn is one synthesized or recovered dialogue turn.
type Turn struct {
	Message          string
	SuggestedReplies []string
	NextState        State
}

// Synthesize deterministically produces a valid next turn from the state
// and content alone, with no generation service involved. The message is
// always non-empty, suggested replies are always a (possibly empty) slice,
// and the next state's idx is always in bounds for its stage.
func Synthesize(st State, src Source) Turn {
	st = st.normalized()
	next := nextStateFor(st, src)

	var b strings.Builder
	if st.Stage == StageIntro {
		b.WriteString("안녕하세요! 오늘 수업을 시작해 볼게요.\n\n")
	}
	b.WriteString(presentItem(next, src))

	return Turn{
		Message:          b.String(),
		SuggestedReplies: repliesFor(next),
		NextState:        next,
	}
}

// nextStateFor applies the per-stage advance rules: move to the next item
// within the stage, or — when the collection is exhausted — to the first
// item of the next non-empty stage. Empty stages are skipped; wrap-up is
// terminal.
func nextStateFor(st State, src Source) State {
	st = st.normalized()
	switch st.Stage {
	case StageIntro:
		return stateAt(nextNonEmptyStage(StageIntro, src), 0, src)
	case StageKeyPoints, StagePractice, StageQuiz:
		if st.Idx+1 < src.Len(st.Stage) {
			return stateAt(st.Stage, st.Idx+1, src)
		}
		return stateAt(nextNonEmptyStage(st.Stage, src), 0, src)
	default: // wrap-up: nothing beyond it
		return stateAt(StageWrapUp, 0, src)
	}
}

// stateAt builds the full cursor for presenting item idx of a stage,
// including the awaiting flags that tell the next turn how to read the
// student's reply.
func stateAt(stage Stage, idx int, src Source) State {
	switch stage {
	case StageKeyPoints:
		return State{Stage: stage, Idx: idx, Awaiting: AwaitNone, LastAsked: AskedMoreQuestions}
	case StagePractice:
		return State{
			Stage:          stage,
			Idx:            idx,
			Awaiting:       AwaitFreeAnswer,
			ExpectedAnswer: src.Practice[idx].AnswerHint,
			LastAsked:      AskedFreeAnswer,
		}
	case StageQuiz:
		return State{
			Stage:          stage,
			Idx:            idx,
			Awaiting:       AwaitFreeAnswer,
			ExpectedAnswer: src.Quiz[idx].Answer,
			LastAsked:      AskedFreeAnswer,
		}
	default:
		return State{Stage: StageWrapUp, Idx: 0, Awaiting: AwaitNone, LastAsked: AskedNone}
	}
}

// presentItem renders the item the next state points at, with minimal
// scaffolding around the verbatim content.
func presentItem(next State, src Source) string {
	switch next.Stage {
	case StageKeyPoints:
		return fmt.Sprintf("핵심 내용 %d번이에요.\n\n%s\n\n여기까지 궁금한 점 있나요?",
			next.Idx+1, src.Concepts[next.Idx])
	case StagePractice:
		return fmt.Sprintf("연습 문제 %d번을 풀어 볼까요?\n\n%s",
			next.Idx+1, src.Practice[next.Idx].Text)
	case StageQuiz:
		return fmt.Sprintf("퀴즈 %d번이에요!\n\n%s",
			next.Idx+1, src.Quiz[next.Idx].Question)
	default:
		return "오늘 수업은 여기까지예요. 정말 수고했어요! 다음에 또 만나요."
	}
}

func repliesFor(next State) []string {
	switch next.Stage {
	case StageKeyPoints:
		return []string{"아니요, 다음으로 넘어가요", "네, 질문이 있어요"}
	case StagePractice, StageQuiz:
		return []string{"힌트를 주세요", "잘 모르겠어요"}
	default:
		return []string{}
	}
}
