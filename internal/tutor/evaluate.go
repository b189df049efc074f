package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Judge is the external semantic-judgment capability. Its output is free
// text and is recovered through the structured extractor.
type Judge interface {
	Judge(ctx context.Context, rubric string) (string, error)
}

// JudgeFunc adapts a plain function to the Judge interface.
type JudgeFunc func(ctx context.Context, rubric string) (string, error)

func (f JudgeFunc) Judge(ctx context.Context, rubric string) (string, error) {
	return f(ctx, rubric)
}

// EvalRequest describes one answer to grade.
type EvalRequest struct {
	Question       string
	ExpectedAnswer string
	StudentAnswer  string
	Subject        string
	Context        string
}

// EvalResult is the grading outcome.
type EvalResult struct {
	IsCorrect     bool    `json:"is_correct"`
	Confidence    float64 `json:"confidence"`
	Feedback      string  `json:"feedback"`
	PartialCredit int     `json:"partial_credit,omitempty"`
	Explanation   string  `json:"explanation,omitempty"`
	FollowUp      string  `json:"suggested_follow_up,omitempty"`
}

const (
	feedbackNeedsInput = "답변을 입력해 주세요."
	feedbackCorrect    = "정답이에요! 잘했어요."
	feedbackUncertain  = "답을 확인하기 어려워요. 조금 다르게 다시 설명해 줄래요?"
)

// Evaluator grades free-text answers: a fast exact-match path first, then
// a semantic judgment call only when the fast path misses.
type Evaluator struct {
	judge Judge
}

// NewEvaluator creates an evaluator. judge may be nil, in which case the
// slow path always returns the neutral result.
func NewEvaluator(judge Judge) *Evaluator {
	return &Evaluator{judge: judge}
}

// Evaluate grades a student answer. It never returns an error: an
// unavailable or unparseable judge collapses to a neutral, low-confidence
// result rather than a false assertion of correctness.
func (e *Evaluator) Evaluate(ctx context.Context, req EvalRequest) EvalResult {
	if strings.TrimSpace(req.StudentAnswer) == "" {
		return EvalResult{IsCorrect: false, Confidence: 1, Feedback: feedbackNeedsInput}
	}

	if req.ExpectedAnswer != "" &&
		NormalizeAnswer(req.StudentAnswer) == NormalizeAnswer(req.ExpectedAnswer) {
		return EvalResult{
			IsCorrect:     true,
			Confidence:    1,
			Feedback:      feedbackCorrect,
			PartialCredit: 100,
		}
	}

	return e.judgeAnswer(ctx, req)
}

func (e *Evaluator) judgeAnswer(ctx context.Context, req EvalRequest) EvalResult {
	if e.judge == nil {
		return neutralResult()
	}

	raw, err := e.judge.Judge(ctx, rubricPrompt(req))
	if err != nil {
		slog.Warn("answer judgment unavailable", "error", err)
		return neutralResult()
	}

	obj, err := ExtractObject(raw)
	if err != nil {
		slog.Warn("answer judgment unparseable", "error", err)
		return neutralResult()
	}

	var result EvalResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		slog.Warn("answer judgment has wrong shape", "error", err)
		return neutralResult()
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	if result.Feedback == "" {
		result.Feedback = feedbackUncertain
	}
	return result
}

// neutralResult neither asserts correctness nor incorrectness strongly.
func neutralResult() EvalResult {
	return EvalResult{
		IsCorrect:  false,
		Confidence: 0.3,
		Feedback:   feedbackUncertain,
	}
}

// rubricPrompt describes subject-specific equivalence rules for the judge.
func rubricPrompt(req EvalRequest) string {
	var b strings.Builder
	b.WriteString("학생의 답안을 채점해 주세요.\n\n")
	fmt.Fprintf(&b, "과목: %s\n", req.Subject)
	fmt.Fprintf(&b, "문제: %s\n", req.Question)
	fmt.Fprintf(&b, "모범 답안: %s\n", req.ExpectedAnswer)
	fmt.Fprintf(&b, "학생 답안: %s\n", req.StudentAnswer)
	if req.Context != "" {
		fmt.Fprintf(&b, "맥락: %s\n", req.Context)
	}
	b.WriteString(`
채점 기준:
- 수학/과학: 표기가 달라도 수치가 같으면 정답 (예: 0.5 = 1/2 = 50%)
- 언어 과목: 의미가 같은 바꿔 쓰기는 정답으로 인정
- 여러 부분으로 된 답: 맞은 부분만큼 부분 점수 (partial_credit 0~100)

다음 JSON 객체만 출력하세요. 설명이나 마크다운은 쓰지 마세요:
{"is_correct": true/false, "confidence": 0.0~1.0, "feedback": "학생에게 보여줄 한 줄 피드백", "partial_credit": 0~100, "explanation": "채점 근거", "suggested_follow_up": "다음에 물어보면 좋을 질문"}`)
	return b.String()
}

// answerPunct is the fixed punctuation set stripped during normalization.
const answerPunct = `.,!?;:'"()[]{}`

// NormalizeAnswer produces the comparison form for the fast path:
// NFKC + width fold, lower-case, minus-sign variants unified, the fixed
// punctuation set and all whitespace removed. "a = 1, b = -2" and
// "a=1,b=-2" normalize identically.
func NormalizeAnswer(s string) string {
	s = width.Fold.String(norm.NFKC.String(s))
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '−', '–', '—': // minus/dash variants
			return '-'
		}
		if unicode.IsSpace(r) || strings.ContainsRune(answerPunct, r) {
			return -1
		}
		return r
	}, s)
}
