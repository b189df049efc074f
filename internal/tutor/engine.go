package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrEmptyGeneration marks a completion call that produced blank text (or
// failed outright — the engine treats the two identically).
var ErrEmptyGeneration = errors.New("tutor: generation returned empty text")

// Mode selects how the completion service is invoked.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeFreeForm   Mode = "free_form"
)

// Generator is the external completion service. The engine makes at most
// two sequential calls per turn, never parallel ones.
type Generator interface {
	Generate(ctx context.Context, p Prompt, mode Mode) (string, error)
}

// TurnRequest is one incoming student turn.
type TurnRequest struct {
	State          State
	StudentMessage string
	Source         Source
	Subject        string
}

// TurnResponse is the engine's answer: always a well-formed message and an
// in-bounds next state, whatever the generation service did.
type TurnResponse struct {
	Message          string      `json:"message"`
	SuggestedReplies []string    `json:"suggested_replies"`
	NextState        State       `json:"next_state"`
	Evaluation       *EvalResult `json:"evaluation,omitempty"`
}

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	Generator Generator
	Judge     Judge
}

// Engine orchestrates one dialogue turn: evaluate the answer if one was
// awaited, try the generation strategies in order, clamp whatever state the
// model proposed, and deduplicate the suggested replies.
type Engine struct {
	gen        Generator
	evaluator  *Evaluator
	strategies []turnStrategy
}

// turnStrategy is one named way to produce a turn. Strategies run in
// order until one succeeds; reordering them is a data change.
type turnStrategy struct {
	name string
	mode Mode
	// onlyAfterEmpty gates the strategy on the previous failure being an
	// empty generation: the completion contract escalates to free-form
	// only when structured mode returned blank text.
	onlyAfterEmpty bool
	run            func(ctx context.Context, tc turnContext) (Turn, error)
}

type turnContext struct {
	state   State
	request TurnRequest
	eval    *EvalResult
	noMore  bool
}

// NewEngine creates a dialogue engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		gen:       cfg.Generator,
		evaluator: NewEvaluator(cfg.Judge),
	}
	e.strategies = []turnStrategy{
		{name: "structured", mode: ModeStructured, run: e.generatedTurn(ModeStructured)},
		{name: "free_form", mode: ModeFreeForm, onlyAfterEmpty: true, run: e.generatedTurn(ModeFreeForm)},
		{name: "synthesized", run: synthesizedTurn},
	}
	return e
}

// Turn produces exactly one response for the request. The only hard error
// is a structurally invalid content source; every generation or extraction
// failure is recovered internally.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	if err := req.Source.Validate(); err != nil {
		return TurnResponse{}, err
	}

	st := req.State.normalized()
	noMore := IsNoFurtherQuestions(req.StudentMessage, st.LastAsked)

	var eval *EvalResult
	if st.Awaiting == AwaitFreeAnswer && strings.TrimSpace(req.StudentMessage) != "" && !noMore {
		result := e.evaluator.Evaluate(ctx, EvalRequest{
			Question:       currentItem(st, req.Source),
			ExpectedAnswer: st.ExpectedAnswer,
			StudentAnswer:  req.StudentMessage,
			Subject:        req.Subject,
		})
		eval = &result
	}

	turn := e.produceTurn(ctx, turnContext{state: st, request: req, eval: eval, noMore: noMore})

	return TurnResponse{
		Message:          turn.Message,
		SuggestedReplies: DedupeReplies(turn.SuggestedReplies),
		NextState:        turn.NextState,
		Evaluation:       eval,
	}, nil
}

func (e *Engine) produceTurn(ctx context.Context, tc turnContext) Turn {
	var lastErr error
	for _, s := range e.strategies {
		if s.onlyAfterEmpty && !errors.Is(lastErr, ErrEmptyGeneration) {
			continue
		}
		turn, err := s.run(ctx, tc)
		if err != nil {
			slog.Warn("turn strategy failed",
				"strategy", s.name,
				"stage", tc.state.Stage,
				"error", err,
			)
			lastErr = err
			continue
		}
		if lastErr != nil {
			slog.Info("turn recovered", "strategy", s.name, "stage", tc.state.Stage)
		}
		return turn
	}
	// Unreachable: synthesis cannot fail. Kept as a last line of defense.
	return Synthesize(tc.state, tc.request.Source)
}

// generatedTurn builds the strategy that calls the completion service in
// the given mode and extracts a turn from its output.
func (e *Engine) generatedTurn(mode Mode) func(ctx context.Context, tc turnContext) (Turn, error) {
	return func(ctx context.Context, tc turnContext) (Turn, error) {
		if e.gen == nil {
			return Turn{}, fmt.Errorf("%w: no generator configured", ErrEmptyGeneration)
		}

		prompt := buildTurnPrompt(tc.state, tc.request.StudentMessage, tc.request.Source,
			tc.request.Subject, tc.eval, tc.noMore)

		text, err := e.gen.Generate(ctx, prompt, mode)
		if err != nil {
			// A service failure and blank text recover identically.
			return Turn{}, fmt.Errorf("%w: %v", ErrEmptyGeneration, err)
		}
		if strings.TrimSpace(text) == "" {
			return Turn{}, ErrEmptyGeneration
		}

		parsed, err := ExtractTurn(text)
		if err != nil {
			return Turn{}, err
		}
		if strings.TrimSpace(parsed.Message) == "" {
			return Turn{}, fmt.Errorf("%w: turn has no message", ErrExtraction)
		}

		return Turn{
			Message:          parsed.Message,
			SuggestedReplies: parsed.SuggestedReplies,
			NextState:        clampProposed(parsed.NextState, tc.state, tc.request.Source),
		}, nil
	}
}

func synthesizedTurn(_ context.Context, tc turnContext) (Turn, error) {
	turn := Synthesize(tc.state, tc.request.Source)
	if tc.eval != nil {
		// Generation would have folded the grading into its message; the
		// synthesizer prepends the feedback instead.
		turn.Message = tc.eval.Feedback + "\n\n" + turn.Message
	}
	return turn, nil
}

// clampProposed bounds a model-proposed next state. Anything inconsistent
// with the content — unknown stage, out-of-bounds idx, a backward move, or
// a jump that skips a non-empty stage — is replaced by the state the
// synthesizer's rules would have produced. Out-of-bounds proposals are
// corrected, never propagated.
func clampProposed(proposed *State, cur State, src Source) State {
	safe := nextStateFor(cur, src)
	if proposed == nil {
		return safe
	}

	p := *proposed
	if !p.Stage.Known() {
		slog.Debug("clamping proposed state: unknown stage", "stage", p.Stage)
		return safe
	}
	if p.Stage.Before(cur.Stage) {
		slog.Debug("clamping proposed state: backward move", "from", cur.Stage, "to", p.Stage)
		return safe
	}
	if p.Stage != cur.Stage && p.Stage != nextNonEmptyStage(cur.Stage, src) {
		// Either jumping over a stage that still has content, or moving
		// into an empty stage.
		slog.Debug("clamping proposed state: skipped content", "from", cur.Stage, "to", p.Stage)
		return safe
	}

	switch p.Stage {
	case StageIntro, StageWrapUp:
		p.Idx = 0
	default:
		if p.Idx < 0 || p.Idx >= src.Len(p.Stage) {
			slog.Debug("clamping proposed state: idx out of bounds",
				"stage", p.Stage, "idx", p.Idx, "len", src.Len(p.Stage))
			return safe
		}
	}

	return p.normalized()
}
