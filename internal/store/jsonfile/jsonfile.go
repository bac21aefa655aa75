// Package jsonfile keeps feedback in a single JSON array file, rewritten
// atomically on every append.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/Keyring-Network/gavryn-tutor/internal/store"
)

type FeedbackFile struct {
	mu   sync.Mutex
	path string
}

// New opens the feedback file at path, creating it with the seed record when
// it does not exist yet.
func New(path string) (*FeedbackFile, error) {
	f := &FeedbackFile{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := f.write([]store.Feedback{store.SeedFeedback()}); err != nil {
			return nil, fmt.Errorf("seed feedback file: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	if _, err := f.read(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FeedbackFile) AppendFeedback(ctx context.Context, feedback store.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	records, err := f.read()
	if err != nil {
		return err
	}
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt == "" {
		feedback.CreatedAt = store.Now()
	}
	return f.write(append(records, feedback))
}

func (f *FeedbackFile) ListFeedback(ctx context.Context) ([]store.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FeedbackFile) Ping(ctx context.Context) error {
	_, err := os.Stat(f.path)
	return err
}

func (f *FeedbackFile) read() ([]store.Feedback, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var records []store.Feedback
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode feedback file %s: %w", f.path, err)
	}
	return records, nil
}

func (f *FeedbackFile) write(records []store.Feedback) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".feedback-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
