// Package files loads question banks from YAML documents on disk, one file per locale.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"quizapp-service/internal/domain"
)

// QuestionLoader reads <dir>/<locale>.yaml.
type QuestionLoader struct {
	fsys fs.FS
}

func NewQuestionLoader(dir string) *QuestionLoader {
	return &QuestionLoader{fsys: os.DirFS(dir)}
}

// NewQuestionLoaderFS reads banks from an arbitrary filesystem.
func NewQuestionLoaderFS(fsys fs.FS) *QuestionLoader {
	return &QuestionLoader{fsys: fsys}
}

func (l *QuestionLoader) LoadBank(_ context.Context, locale string) (domain.QuestionBank, error) {
	if locale == "" || filepath.Base(locale) != locale {
		return domain.QuestionBank{}, domain.ErrQuestionBankNotFound
	}
	raw, err := fs.ReadFile(l.fsys, locale+".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return domain.QuestionBank{}, domain.ErrQuestionBankNotFound
	}
	if err != nil {
		return domain.QuestionBank{}, fmt.Errorf("read question bank %s: %w", locale, err)
	}
	return ParseBank(raw, locale)
}

// Locales lists the locales that have a bank file.
func (l *QuestionLoader) Locales() ([]string, error) {
	matches, err := fs.Glob(l.fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[:len(m)-len(".yaml")])
	}
	return out, nil
}

// ParseBank decodes a YAML question bank and checks every page is full.
func ParseBank(raw []byte, locale string) (domain.QuestionBank, error) {
	var bank domain.QuestionBank
	if err := yaml.Unmarshal(raw, &bank); err != nil {
		return domain.QuestionBank{}, fmt.Errorf("parse question bank %s: %w", locale, err)
	}
	if bank.Locale == "" {
		bank.Locale = locale
	}
	if len(bank.Pages) != domain.TotalSteps {
		return domain.QuestionBank{}, fmt.Errorf("question bank %s: %d pages, want %d", locale, len(bank.Pages), domain.TotalSteps)
	}
	for i, page := range bank.Pages {
		if len(page.Questions) != domain.QuestionsPerPage {
			return domain.QuestionBank{}, fmt.Errorf("question bank %s: page %d has %d questions, want %d",
				locale, i+1, len(page.Questions), domain.QuestionsPerPage)
		}
	}
	return bank, nil
}
