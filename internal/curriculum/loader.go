// Package curriculum loads lesson content from the filesystem: YAML lesson
// files and spreadsheet item banks.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/lesson-bot/internal/tutor"
)

// Loader loads and caches lessons from the filesystem.
type Loader struct {
	rootDir string
	lessons map[string]Lesson
	mu      sync.RWMutex
}

// NewLoader creates a lesson loader and loads all content under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		lessons: make(map[string]Lesson),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "lessons", len(l.lessons))
	return l, nil
}

// Lesson returns a lesson by ID.
func (l *Loader) Lesson(id string) (Lesson, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lesson, ok := l.lessons[id]
	return lesson, ok
}

// Source returns a lesson's content in the engine's form.
func (l *Loader) Source(id string) (tutor.Source, bool) {
	lesson, ok := l.Lesson(id)
	if !ok {
		return tutor.Source{}, false
	}
	return lesson.Source(), true
}

// AllLessons returns all loaded lessons.
func (l *Loader) AllLessons() []Lesson {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lessons := make([]Lesson, 0, len(l.lessons))
	for _, lesson := range l.lessons {
		lessons = append(lessons, lesson)
	}
	return lessons
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			return l.loadYAML(path)
		case strings.HasSuffix(path, ".xlsx"):
			return l.loadWorkbook(path)
		}
		return nil
	})
}

func (l *Loader) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lesson Lesson
	if err := yaml.Unmarshal(data, &lesson); err != nil {
		slog.Warn("skipping invalid lesson YAML", "path", path, "error", err)
		return nil
	}

	if lesson.ID == "" {
		return nil // Not a lesson file
	}
	if lesson.Source().Validate() != nil {
		slog.Warn("skipping lesson with no content", "path", path, "lesson", lesson.ID)
		return nil
	}

	l.add(lesson)
	return nil
}

func (l *Loader) add(lesson Lesson) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.lessons[lesson.ID]; exists {
		slog.Warn("duplicate lesson id, keeping first", "lesson", lesson.ID)
		return
	}
	l.lessons[lesson.ID] = lesson
}
