package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/lesson-bot/internal/curriculum"
)

func TestLoader_LoadLessons(t *testing.T) {
	dir := setupTestCurriculum(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	lessons := loader.AllLessons()
	if len(lessons) == 0 {
		t.Error("AllLessons() returned empty")
	}
}

func TestLoader_Lesson(t *testing.T) {
	dir := setupTestCurriculum(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	lesson, found := loader.Lesson("linear-eq-1")
	if !found {
		t.Fatal("Lesson(linear-eq-1) not found")
	}
	if lesson.Title == "" {
		t.Error("Lesson.Title is empty")
	}
	if len(lesson.Concepts) != 2 {
		t.Errorf("Concepts = %d, want 2", len(lesson.Concepts))
	}
	if len(lesson.Practice) != 1 || lesson.Practice[0].AnswerHint != "4" {
		t.Errorf("Practice = %+v, want one item with hint 4", lesson.Practice)
	}
}

func TestLoader_Source(t *testing.T) {
	dir := setupTestCurriculum(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	src, found := loader.Source("linear-eq-1")
	if !found {
		t.Fatal("Source(linear-eq-1) not found")
	}
	if err := src.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if len(src.Quiz) != 1 || src.Quiz[0].Answer != "3" {
		t.Errorf("Quiz = %+v, want the YAML quiz item", src.Quiz)
	}
}

func TestLoader_NotFound(t *testing.T) {
	dir := setupTestCurriculum(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.Lesson("nonexistent"); found {
		t.Error("Lesson(nonexistent) should not be found")
	}
}

func TestLoader_SkipsContentlessYAML(t *testing.T) {
	dir := setupTestCurriculum(t)

	os.WriteFile(filepath.Join(dir, "empty.yaml"), []byte(`
id: empty-lesson
title: "No content"
`), 0o644)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.Lesson("empty-lesson"); found {
		t.Error("lesson with no teachable content should be skipped")
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if lessons := loader.AllLessons(); len(lessons) != 0 {
		t.Errorf("AllLessons() = %d, want 0 for empty dir", len(lessons))
	}
}

func TestLoader_Workbook(t *testing.T) {
	dir := t.TempDir()
	writeTestWorkbook(t, filepath.Join(dir, "fractions.xlsx"))

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	lesson, found := loader.Lesson("fractions-1")
	if !found {
		t.Fatal("Lesson(fractions-1) not found")
	}
	if lesson.Title != "분수의 덧셈" {
		t.Errorf("Title = %q, want Info sheet title", lesson.Title)
	}
	if len(lesson.Concepts) != 2 {
		t.Errorf("Concepts = %d, want 2 (header row skipped)", len(lesson.Concepts))
	}
	if len(lesson.Practice) != 1 || lesson.Practice[0].AnswerHint != "3/4" {
		t.Errorf("Practice = %+v", lesson.Practice)
	}
	if len(lesson.Quiz) != 1 || lesson.Quiz[0].Answer != "5/6" {
		t.Errorf("Quiz = %+v", lesson.Quiz)
	}
}

func TestLoader_WorkbookWithoutInfoSheet(t *testing.T) {
	dir := t.TempDir()

	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "ignored")
	f.NewSheet("Concepts")
	f.SetCellValue("Concepts", "A1", "개념 하나")
	if err := f.SaveAs(filepath.Join(dir, "bare-bank.xlsx")); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	// ID falls back to the file name.
	if _, found := loader.Lesson("bare-bank"); !found {
		t.Error("Lesson(bare-bank) not found, want file-name fallback id")
	}
}

func setupTestCurriculum(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	lessonsDir := filepath.Join(dir, "lessons", "math")
	os.MkdirAll(lessonsDir, 0o755)

	os.WriteFile(filepath.Join(lessonsDir, "linear-eq-1.yaml"), []byte(`
id: linear-eq-1
title: "일차방정식 기초"
subject: math
concepts:
  - "일차방정식은 미지수의 차수가 1인 방정식이다"
  - "이항할 때 부호가 바뀐다"
practice:
  - text: "x + 1 = 5를 푸세요"
    answer_hint: "4"
quiz:
  - question: "3x - 1 = 8이면 x는?"
    answer: "3"
`), 0o644)

	return dir
}

func writeTestWorkbook(t *testing.T, path string) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	f.NewSheet("Info")
	f.SetCellValue("Info", "A1", "id")
	f.SetCellValue("Info", "B1", "fractions-1")
	f.SetCellValue("Info", "A2", "title")
	f.SetCellValue("Info", "B2", "분수의 덧셈")
	f.SetCellValue("Info", "A3", "subject")
	f.SetCellValue("Info", "B3", "math")

	f.NewSheet("Concepts")
	f.SetCellValue("Concepts", "A1", "Concept")
	f.SetCellValue("Concepts", "A2", "분모가 같으면 분자끼리 더한다")
	f.SetCellValue("Concepts", "A3", "분모가 다르면 통분한다")

	f.NewSheet("Practice")
	f.SetCellValue("Practice", "A1", "Question")
	f.SetCellValue("Practice", "B1", "Hint")
	f.SetCellValue("Practice", "A2", "1/4 + 2/4는?")
	f.SetCellValue("Practice", "B2", "3/4")

	f.NewSheet("Quiz")
	f.SetCellValue("Quiz", "A1", "Question")
	f.SetCellValue("Quiz", "B1", "Answer")
	f.SetCellValue("Quiz", "A2", "1/2 + 1/3은?")
	f.SetCellValue("Quiz", "B2", "5/6")

	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}
