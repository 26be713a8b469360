package session

import (
	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/loader"
	"github.com/jonathan/netmirror/internal/render"
)

// View is what the user sees at one instant.
type View struct {
	SessionID     uuid.UUID    `json:"session_id"`
	State         loader.State `json:"state"`
	SplashVisible bool         `json:"splash_visible"`
	SettingsOpen  bool         `json:"settings_open"`
	// Page is set only while State is ready and the renderer has answered.
	Page        *render.Page `json:"page,omitempty"`
	RenderError string       `json:"render_error,omitempty"`
}

// CanRetry reports whether the retry affordance is shown.
func (v View) CanRetry() bool {
	return v.State.CanRetry()
}

// CanOpenSettings reports whether the settings affordance is shown.
func (v View) CanOpenSettings() bool {
	return v.State.CanOpenSettings()
}

func (v View) clone() View {
	out := v
	if v.Page != nil {
		page := *v.Page
		out.Page = &page
	}
	return out
}
