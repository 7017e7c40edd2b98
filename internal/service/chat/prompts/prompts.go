// Package prompts holds the system prompt templates used by the agent.
// Templates ship built-in, and can be overridden from a YAML file so prompt
// changes do not require a rebuild.
package prompts

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Template names.
const (
	Assistant = "assistant"
	Titler    = "titler"
)

// Built-in templates, used when no prompts file is configured or a name is
// missing from it.
const assistantPrompt = `You are Kakehashi, a warm and knowledgeable companion for cross-cultural learning. You help learners understand language, customs, and everyday life across cultures, building bridges rather than reciting facts.

Guidelines:
- Answer in the learner's language, weaving in target-language vocabulary with readings where helpful.
- When a question touches lesson content, vocabulary, assignments, or anything covered in the course, search the course materials with the course_materials tool before answering.
- For general world knowledge, history, or cultural background not covered in the course, use the wikipedia tool.
- Prefer concrete examples and short comparisons over abstract explanations.
- If you are unsure, say so; never invent cultural claims.`

const titlerPrompt = `Produce a short title (at most a few words) summarizing the user's message. Respond with the title only, no quotes and no punctuation at the end.`

var builtin = map[string]string{
	Assistant: assistantPrompt,
	Titler:    titlerPrompt,
}

// Library resolves prompt templates by name.
type Library struct {
	overrides map[string]string
	logger    *slog.Logger
}

// NewLibrary loads templates from the given YAML file (a flat name -> text
// mapping) layered over the built-in templates. A missing file is not an
// error; the built-ins are used. Pass an empty path to skip loading entirely.
func NewLibrary(path string, logger *slog.Logger) (*Library, error) {
	lib := &Library{
		overrides: map[string]string{},
		logger:    logger,
	}

	if path == "" {
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("prompts file not found, using built-in templates", "path", path)
			return lib, nil
		}
		return nil, fmt.Errorf("read prompts file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &lib.overrides); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	logger.Info("prompts file loaded", "path", path, "templates", len(lib.overrides))
	return lib, nil
}

// Get returns the template for name, preferring the file override.
// Returns an error for names with no built-in and no override.
func (l *Library) Get(name string) (string, error) {
	if text, ok := l.overrides[name]; ok && text != "" {
		return text, nil
	}
	if text, ok := builtin[name]; ok {
		return text, nil
	}
	return "", fmt.Errorf("unknown prompt template: %s", name)
}
