// ABOUTME: Tests for theme resolution precedence, shadow presets and placement rules
// ABOUTME: Also covers late remote theme updates

package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/config"
)

func TestResolve_Defaults(t *testing.T) {
	r := Resolve(config.Widget{}, nil)

	assert.Equal(t, DefaultPrimaryColor, r.PrimaryColor)
	assert.Equal(t, DefaultPrimaryColor, r.Header.TitleColor)
	assert.Equal(t, DefaultSubtitleColor, r.Header.SubtitleColor)
	assert.True(t, r.Header.ShowLogo)
	assert.Empty(t, r.Header.LogoURL)
	assert.Equal(t, DefaultWindowBackground, r.Window.Background)
	assert.Equal(t, DefaultFontFamily, r.Window.FontFamily)
	assert.Equal(t, DefaultShadow, r.Window.Shadow)
	assert.Equal(t, DefaultFloatingButtonSize, r.FloatingButton.Width)
	assert.Equal(t, "chat", r.FloatingButton.Icon)
	assert.Equal(t, DefaultPrimaryColor, r.FloatingButton.Background)
	assert.Equal(t, Colors{Background: DefaultAIMessageBg, Text: DefaultAIMessageText}, r.AIMessage)
	assert.Equal(t, Colors{Background: DefaultUserMessageBg, Text: DefaultUserMessageText}, r.UserMessage)
	assert.Equal(t, "Nachricht eingeben...", r.Input.Placeholder)
	assert.Equal(t, DefaultButtonText, r.PrimaryButton.Text)
	assert.False(t, r.Features.FullScreenEnabled)
	assert.True(t, r.Features.ShowConversationManagement)
	assert.Equal(t, Placement{Position: "bottom-right", Bottom: "20px", Right: "20px"}, r.Placement)
}

func TestResolve_Precedence(t *testing.T) {
	remote := &api.Theme{Primary500: "#111111", Logo: "https://cdn/logo.png", AIIcon: "https://cdn/ai.png"}

	t.Run("remote beats default", func(t *testing.T) {
		r := Resolve(config.Widget{}, remote)
		assert.Equal(t, "#111111", r.PrimaryColor)
		assert.Equal(t, "#111111", r.Header.TitleColor)
		assert.Equal(t, "#111111", r.PrimaryButton.Background)
		assert.Equal(t, "https://cdn/logo.png", r.Header.LogoURL)
		assert.Equal(t, Assets{AIIcon: "https://cdn/ai.png", Logo: "https://cdn/logo.png"}, r.Assets)
	})

	t.Run("config beats remote", func(t *testing.T) {
		r := Resolve(config.Widget{
			PrimaryColor:                  "#222222",
			ChatTitleColor:                "#333333",
			FloatingButtonBackgroundColor: "#444444",
		}, remote)
		assert.Equal(t, "#222222", r.PrimaryColor)
		assert.Equal(t, "#333333", r.Header.TitleColor)
		assert.Equal(t, "#444444", r.FloatingButton.Background)
		assert.Equal(t, "#222222", r.PrimaryButton.Background)
	})
}

func TestResolve_Features(t *testing.T) {
	off := false
	r := Resolve(config.Widget{
		FullScreenEnabled:          true,
		UseCustomLogo:              true,
		ShowConversationManagement: &off,
	}, nil)

	assert.True(t, r.Features.FullScreenEnabled)
	assert.False(t, r.Features.ShowConversationManagement)
	assert.False(t, r.Header.ShowLogo)
}

func TestShadow(t *testing.T) {
	tests := map[string]string{
		"none":   "none",
		"small":  "0 2px 8px rgba(0, 0, 0, 0.1)",
		"medium": "0 4px 12px rgba(0, 0, 0, 0.15)",
		"large":  DefaultShadow,
		"":       DefaultShadow,
		"weird":  DefaultShadow,
	}
	for preset, want := range tests {
		assert.Equal(t, want, Shadow(preset), "preset %q", preset)
	}
}

func TestResolvePlacement(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Widget
		want Placement
	}{
		{
			name: "position wins over location",
			cfg:  config.Widget{Position: "bottom-left", Location: "bottom-right"},
			want: Placement{Position: "bottom-left", Bottom: "20px", Right: "20px"},
		},
		{
			name: "legacy bottom",
			cfg:  config.Widget{Location: "bottom"},
			want: Placement{Position: "bottom-right", Bottom: "20px", Right: "20px"},
		},
		{
			name: "legacy bottom-left",
			cfg:  config.Widget{Location: "bottom-left"},
			want: Placement{Position: "bottom-left", Bottom: "20px", Right: "20px"},
		},
		{
			name: "spacing block",
			cfg:  config.Widget{Spacing: config.Spacing{Bottom: "5px", Right: "6px", Left: "7px"}},
			want: Placement{Position: "bottom-right", Bottom: "5px", Right: "6px", Left: "7px"},
		},
		{
			name: "flat spacing wins",
			cfg: config.Widget{
				Spacing:       config.Spacing{Bottom: "5px", Right: "6px"},
				SpacingBottom: "50px",
				SpacingRight:  "60px",
			},
			want: Placement{Position: "bottom-right", Bottom: "50px", Right: "60px"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePlacement(tt.cfg))
		})
	}
}

func TestUpdateWithAPIData(t *testing.T) {
	current := Resolve(config.Widget{PrimaryColor: "#222222"}, &api.Theme{AIIcon: "old-icon", Logo: "old-logo"})

	updated := UpdateWithAPIData(current, api.Theme{Logo: "new-logo", Primary500: "#999999"})

	assert.Equal(t, "new-logo", updated.Assets.Logo)
	assert.Equal(t, "old-icon", updated.Assets.AIIcon, "empty remote field keeps current value")
	assert.Equal(t, "new-logo", updated.Header.LogoURL)
	assert.Equal(t, "#222222", updated.PrimaryColor, "colors are not refreshed")

	// The input is not modified
	assert.Equal(t, "old-logo", current.Assets.Logo)
}
