package tutor_test

import (
	"encoding/json"
	"testing"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		raw  string
		want tutor.Stage
		ok   bool
	}{
		{"intro", tutor.StageIntro, true},
		{"Introduction", tutor.StageIntro, true},
		{"key_points", tutor.StageKeyPoints, true},
		{"keyPoints", tutor.StageKeyPoints, true},
		{"key-points", tutor.StageKeyPoints, true},
		{"KEY POINTS", tutor.StageKeyPoints, true},
		{"concepts", tutor.StageKeyPoints, true},
		{"practice", tutor.StagePractice, true},
		{"practise", tutor.StagePractice, true},
		{"quiz", tutor.StageQuiz, true},
		{"wrapup", tutor.StageWrapUp, true},
		{"wrap_up", tutor.StageWrapUp, true},
		{"summary", tutor.StageWrapUp, true},
		{" quiz ", tutor.StageQuiz, true},
		{"review", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := tutor.ParseStage(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseStage(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStageBefore(t *testing.T) {
	if !tutor.StageIntro.Before(tutor.StageKeyPoints) {
		t.Error("intro must come before key_points")
	}
	if tutor.StageQuiz.Before(tutor.StagePractice) {
		t.Error("quiz must not come before practice")
	}
	if tutor.StageWrapUp.Before(tutor.StageWrapUp) {
		t.Error("a stage is not before itself")
	}
	// Unknown stages sort earliest so they always read as a backward move.
	if !tutor.Stage("review").Before(tutor.StageKeyPoints) {
		t.Error("unknown stage must compare as earliest")
	}
}

func TestStageUnmarshalJSON(t *testing.T) {
	var st tutor.State
	if err := json.Unmarshal([]byte(`{"stage": "keyPoints", "idx": 2}`), &st); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if st.Stage != tutor.StageKeyPoints || st.Idx != 2 {
		t.Errorf("state = %+v, want key_points idx 2", st)
	}

	// Unknown names survive verbatim for downstream clamping.
	if err := json.Unmarshal([]byte(`{"stage": "lecture"}`), &st); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if st.Stage != tutor.Stage("lecture") || st.Stage.Known() {
		t.Errorf("Stage = %q, want unknown name preserved", st.Stage)
	}
}

func TestStateRoundTrip(t *testing.T) {
	in := tutor.State{
		Stage:          tutor.StagePractice,
		Idx:            1,
		Awaiting:       tutor.AwaitFreeAnswer,
		ExpectedAnswer: "4",
		LastAsked:      tutor.AskedFreeAnswer,
	}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out tutor.State
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip changed state: %+v != %+v", out, in)
	}
}
