package models

import (
	"strings"
	"time"
)

// Author is a snapshot of the composing user taken when the whisper is
// created. Later profile changes on the platform are not reflected here.
type Author struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName joins first and last name, falling back to the handle.
func (a Author) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// Handle is what texts show as the sender: the username, else the display
// name, else "Unknown".
func (a Author) Handle() string {
	if a.Username != "" {
		return a.Username
	}
	if name := a.DisplayName(); name != "" {
		return name
	}
	return "Unknown"
}

type Whisper struct {
	ID           string     `json:"id"`
	Author       Author     `json:"author"`
	TargetHandle string     `json:"target_handle"` // lowercased, no leading "@"
	SecretText   string     `json:"secret_text"`
	CreatedAt    time.Time  `json:"created_at"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	OpenedBy     *int64     `json:"opened_by,omitempty"`
}

// Sealed reports whether the whisper has not been revealed yet.
func (w *Whisper) Sealed() bool {
	return w.OpenedAt == nil
}
