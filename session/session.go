// Package session stores conversation history as JSON files, one file per
// named session under .melon/sessions. Saves are atomic (write to a temp
// file, then rename) so an interrupted process never leaves a half-written
// history behind.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ToolCall is a structured tool invocation requested by the model. The ID
// is the correlation key: the matching tool result message carries the same
// ID in its ToolCallID field.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is the raw JSON argument payload exactly as the model
	// produced it. It is parsed at dispatch time, not here, so a malformed
	// payload surfaces as a tool result rather than a decode error.
	Arguments string `json:"arguments"`
}

// Message is one role-tagged unit of conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`

	// For assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// For tool messages: the ID of the ToolCall this message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Session holds the conversation history for one named chat.
type Session struct {
	Name          string    `json:"name"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
	ToolVerbosity string    `json:"tool_verbosity,omitempty"`
	Messages      []Message `json:"messages"`

	path string
}

// New creates a new empty session stored under the given name.
func New(name string) (*Session, error) {
	path, err := sessionPath(name)
	if err != nil {
		return nil, err
	}
	return &Session{
		Name:     name,
		Messages: []Message{},
		path:     path,
	}, nil
}

// Load reads an existing session from disk.
func Load(name string) (*Session, error) {
	path, err := sessionPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// List returns the names of all sessions on disk, without extensions.
func List() ([]string, error) {
	dir, err := sessionDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read session directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

// Save writes the session to disk atomically: serialize to a temp file in
// the same directory, then rename over the target.
func (s *Session) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".melon-session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// Reset drops all history except leading system messages. Used by /clear.
func (s *Session) Reset() {
	var kept []Message
	for _, m := range s.Messages {
		if m.Role != "system" {
			break
		}
		kept = append(kept, m)
	}
	if kept == nil {
		kept = []Message{}
	}
	s.Messages = kept
}

func sessionDir() (string, error) {
	dir := filepath.Join(".melon", "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return dir, nil
}

func sessionPath(name string) (string, error) {
	dir, err := sessionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", name)), nil
}
