package curriculum

import "github.com/p-n-ai/lesson-bot/internal/tutor"

// Lesson is one teachable unit loaded from YAML or a spreadsheet bank.
type Lesson struct {
	ID       string               `yaml:"id"`
	Title    string               `yaml:"title"`
	Subject  string               `yaml:"subject"`
	Concepts []string             `yaml:"concepts"`
	Practice []tutor.PracticeItem `yaml:"practice"`
	Quiz     []tutor.QuizItem     `yaml:"quiz"`
}

// Source converts the lesson into the engine's content form.
func (l Lesson) Source() tutor.Source {
	return tutor.Source{
		Concepts: l.Concepts,
		Practice: l.Practice,
		Quiz:     l.Quiz,
	}
}
