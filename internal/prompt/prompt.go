// Package prompt resolves the tutor system prompt that opens every session.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const FileName = "SYSTEM_PROMPT.md"

//go:embed default_prompt.md
var defaultPrompt string

func Default() string {
	return strings.TrimSpace(defaultPrompt)
}

// Load returns the prompt at path when set. Otherwise it looks for FileName in
// the working directory and its parents and falls back to the built-in prompt.
func Load(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return readPrompt(path)
	}
	text, err := ReadFromDisk()
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return text, err
}

func ReadFromDisk() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path, err := findInParents(cwd, FileName)
	if err != nil {
		return "", err
	}
	return readPrompt(path)
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return text, nil
}

func findInParents(startDir string, filename string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
