package curriculum

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// Workbook layout: an optional Info sheet (key/value pairs for id, title,
// subject), a Concepts sheet (one concept per row in column A), a Practice
// sheet (question in A, answer hint in B) and a Quiz sheet (question in A,
// answer in B). Header rows are detected and skipped.
const (
	sheetInfo     = "Info"
	sheetConcepts = "Concepts"
	sheetPractice = "Practice"
	sheetQuiz     = "Quiz"
)

func (l *Loader) loadWorkbook(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		slog.Warn("skipping unreadable workbook", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	lesson := Lesson{
		ID:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	applyInfoSheet(f, &lesson)

	for _, row := range sheetRows(f, sheetConcepts) {
		if text := cell(row, 0); text != "" {
			lesson.Concepts = append(lesson.Concepts, text)
		}
	}
	for _, row := range sheetRows(f, sheetPractice) {
		if text := cell(row, 0); text != "" {
			lesson.Practice = append(lesson.Practice, tutor.PracticeItem{
				Text:       text,
				AnswerHint: cell(row, 1),
			})
		}
	}
	for _, row := range sheetRows(f, sheetQuiz) {
		if question := cell(row, 0); question != "" {
			lesson.Quiz = append(lesson.Quiz, tutor.QuizItem{
				Question: question,
				Answer:   cell(row, 1),
			})
		}
	}

	if lesson.Source().Validate() != nil {
		slog.Warn("skipping workbook with no content", "path", path)
		return nil
	}

	l.add(lesson)
	return nil
}

func applyInfoSheet(f *excelize.File, lesson *Lesson) {
	rows, err := f.GetRows(sheetInfo)
	if err != nil {
		return
	}
	for _, row := range rows {
		key := strings.ToLower(strings.TrimSpace(cell(row, 0)))
		value := cell(row, 1)
		if value == "" {
			continue
		}
		switch key {
		case "id":
			lesson.ID = value
		case "title":
			lesson.Title = value
		case "subject":
			lesson.Subject = value
		}
	}
}

// sheetRows returns the sheet's data rows, with a leading header row
// stripped when the second column looks like a label.
func sheetRows(f *excelize.File, sheet string) [][]string {
	rows, err := f.GetRows(sheet)
	if err != nil || len(rows) == 0 {
		return nil
	}
	if isHeaderRow(rows[0]) {
		return rows[1:]
	}
	return rows
}

func isHeaderRow(row []string) bool {
	switch strings.ToLower(cell(row, 0)) {
	case "concept", "question", "text", "problem":
		return true
	}
	return false
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
