package tutor

import (
	"fmt"
	"strings"
)

// Prompt is one assembled generation request.
type Prompt struct {
	System string
	User   string
}

const tutorSystemPrompt = `You are a warm, encouraging tutor for Korean students. You teach one lesson
as a guided conversation through fixed stages: intro -> key_points ->
practice -> quiz -> wrapup.

STYLE:
- Respond in the language the student uses (mostly Korean)
- Keep each turn short: this is a chat, not a textbook
- Present lesson content faithfully; do not invent new facts
- Encourage after every answer, right or wrong
- Give a hint before revealing an answer`

const turnFormatInstruction = `반드시 JSON 객체 하나만 출력하세요. 마크다운, 코드 펜스, 설명문은 금지입니다.
출력 스키마:
{
  "message": "학생에게 보여줄 메시지",
  "suggested_replies": ["짧은 추천 답변", "..."],
  "next_state": {"stage": "intro|key_points|practice|quiz|wrapup", "idx": 0, "awaiting": "none|free_answer", "expected_answer": "", "last_asked": "none|ask_more_questions|free_answer"}
}
제약:
- message는 비워 둘 수 없습니다
- next_state.idx는 해당 단계의 항목 개수 범위 안이어야 합니다
- 단계는 앞으로만 진행합니다 (intro로 되돌아가지 않습니다)`

// buildTurnPrompt assembles the generation context for one turn.
func buildTurnPrompt(st State, studentMessage string, src Source, subject string, eval *EvalResult, noMoreQuestions bool) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "과목: %s\n", subject)
	fmt.Fprintf(&b, "현재 단계: %s (항목 %d)\n", st.Stage, st.Idx)
	fmt.Fprintf(&b, "단계별 항목 수: key_points=%d, practice=%d, quiz=%d\n",
		len(src.Concepts), len(src.Practice), len(src.Quiz))

	if item := currentItem(st, src); item != "" {
		fmt.Fprintf(&b, "\n지금 다루는 내용:\n%s\n", item)
	}

	switch {
	case noMoreQuestions:
		b.WriteString("\n학생이 더 질문이 없다고 했습니다. 다음 항목이나 단계로 넘어가세요.\n")
	case strings.TrimSpace(studentMessage) == "":
		b.WriteString("\n학생의 첫 메시지가 없습니다. 현재 단계의 내용을 이어서 진행하세요.\n")
	default:
		fmt.Fprintf(&b, "\n학생 메시지: %s\n", studentMessage)
	}

	if eval != nil {
		fmt.Fprintf(&b, "\n채점 결과: is_correct=%v, confidence=%.2f, partial_credit=%d\n피드백: %s\n채점 결과를 message에 자연스럽게 녹여서 전달하세요.\n",
			eval.IsCorrect, eval.Confidence, eval.PartialCredit, eval.Feedback)
	}

	b.WriteString("\n")
	b.WriteString(turnFormatInstruction)

	return Prompt{System: tutorSystemPrompt, User: b.String()}
}

// currentItem returns the content the cursor points at, if any.
func currentItem(st State, src Source) string {
	switch st.Stage {
	case StageKeyPoints:
		if st.Idx < len(src.Concepts) {
			return src.Concepts[st.Idx]
		}
	case StagePractice:
		if st.Idx < len(src.Practice) {
			return src.Practice[st.Idx].Text
		}
	case StageQuiz:
		if st.Idx < len(src.Quiz) {
			return src.Quiz[st.Idx].Question
		}
	}
	return ""
}
