package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type debugRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	Response     string    `json:"response,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// writeDebug stores one exchange under debugDir. Failures are logged only.
func (c *Client) writeDebug(systemPrompt, userPrompt, response string, callErr error) {
	if c.debugDir == "" {
		return
	}
	rec := debugRecord{
		Timestamp:    time.Now().UTC(),
		Provider:     c.provider,
		Model:        c.model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Response:     response,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		slog.Warn("Client.writeDebug: marshal failed", "error", err)
		return
	}
	if err := os.MkdirAll(c.debugDir, 0755); err != nil {
		slog.Warn("Client.writeDebug: failed to create debug directory", "dir", c.debugDir, "error", err)
		return
	}
	name := fmt.Sprintf("plan_%s_%d.json", rec.Timestamp.Format("20060102T150405"), rec.Timestamp.Nanosecond())
	path := filepath.Join(c.debugDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("Client.writeDebug: failed to write debug file", "path", path, "error", err)
	}
}
