// ABOUTME: Resolves the widget theme from config, remote account theme and defaults
// ABOUTME: Also resolves placement (position, legacy location, spacing) and shadow presets

package theme

import (
	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/config"
	"github.com/2389/chatwidget/internal/state"
)

// Defaults used when neither config nor remote theme set a value.
const (
	DefaultPrimaryColor       = "#6B7280"
	DefaultFontFamily         = "ui-sans-serif, system-ui, sans-serif"
	DefaultShadow             = "0 20px 25px -5px rgb(0 0 0 / 0.1), 0 8px 10px -6px rgb(0 0 0 / 0.1)"
	DefaultBorderRadius       = "12px"
	DefaultSubtitleColor      = "#6B7280"
	DefaultDescriptionColor   = "#6B7280"
	DefaultWindowBackground   = "#ffffff"
	DefaultAIMessageBg        = "#f3f4f6"
	DefaultAIMessageText      = "#000000"
	DefaultUserMessageBg      = "#d1d5db"
	DefaultUserMessageText    = "#4b5563"
	DefaultInputBg            = "#f3f4f6"
	DefaultInputText          = "#000000"
	DefaultButtonText         = "#ffffff"
	DefaultFloatingButtonSize = "70px"
	DefaultFloatingButtonIcon = "chat"
	DefaultSpacingBottom      = "20px"
	DefaultSpacingRight       = "20px"
)

var shadows = map[string]string{
	"none":   "none",
	"small":  "0 2px 8px rgba(0, 0, 0, 0.1)",
	"medium": "0 4px 12px rgba(0, 0, 0, 0.15)",
	"large":  DefaultShadow,
}

// Colors is a background/foreground pair.
type Colors struct {
	Background string
	Text       string
}

// Header describes the chat window header.
type Header struct {
	Title            string
	TitleColor       string
	Subtitle         string
	SubtitleColor    string
	Description      string
	DescriptionColor string
	LogoURL          string
	ShowLogo         bool
}

// Window describes the chat window frame.
type Window struct {
	Background   string
	FontFamily   string
	Shadow       string
	BorderRadius string
}

// FloatingButton describes the launcher button.
type FloatingButton struct {
	Background  string
	IconColor   string
	BorderColor string
	Width       string
	Height      string
	Icon        string
}

// Input describes the text input.
type Input struct {
	Placeholder string
	Colors
}

// Assets are branding images served by the backend.
type Assets struct {
	AIIcon string
	Logo   string
}

// Features are optional UI capabilities.
type Features struct {
	FullScreenEnabled          bool
	ShowConversationManagement bool
}

// Placement anchors the widget to the viewport.
type Placement struct {
	Position string
	Bottom   string
	Right    string
	Left     string
}

// Resolved is the final theme every renderer reads.
type Resolved struct {
	PrimaryColor   string
	Header         Header
	Window         Window
	FloatingButton FloatingButton
	AIMessage      Colors
	UserMessage    Colors
	Input          Input
	PrimaryButton  Colors
	Assets         Assets
	Features       Features
	Placement      Placement
}

// Resolve merges cfg, the optional remote theme and defaults.
func Resolve(cfg config.Widget, remote *api.Theme) Resolved {
	var rt api.Theme
	if remote != nil {
		rt = *remote
	}

	primary := first(cfg.PrimaryColor, rt.Primary500, DefaultPrimaryColor)

	return Resolved{
		PrimaryColor: primary,
		Header: Header{
			Title:            cfg.ChatTitle,
			TitleColor:       first(cfg.ChatTitleColor, primary),
			Subtitle:         cfg.ChatSubTitle,
			SubtitleColor:    first(cfg.ChatSubTitleColor, DefaultSubtitleColor),
			Description:      cfg.ChatDescription,
			DescriptionColor: first(cfg.ChatDescriptionColor, DefaultDescriptionColor),
			LogoURL:          rt.Logo,
			ShowLogo:         !cfg.UseCustomLogo,
		},
		Window: Window{
			Background:   first(cfg.ChatBackgroundColor, DefaultWindowBackground),
			FontFamily:   first(cfg.FontFamily, DefaultFontFamily),
			Shadow:       Shadow(cfg.Shadow),
			BorderRadius: DefaultBorderRadius,
		},
		FloatingButton: FloatingButton{
			Background:  first(cfg.FloatingButtonBackgroundColor, primary),
			IconColor:   first(cfg.FloatingButtonIconColor, DefaultButtonText),
			BorderColor: cfg.FloatingButtonBorderColor,
			Width:       first(cfg.FloatingButtonWidth, DefaultFloatingButtonSize),
			Height:      first(cfg.FloatingButtonHeight, DefaultFloatingButtonSize),
			Icon:        first(cfg.FloatingButtonIcon, DefaultFloatingButtonIcon),
		},
		AIMessage: Colors{
			Background: first(cfg.AIMessageBackgroundColor, DefaultAIMessageBg),
			Text:       first(cfg.AIMessageTextColor, DefaultAIMessageText),
		},
		UserMessage: Colors{
			Background: first(cfg.MessageBackgroundColor, DefaultUserMessageBg),
			Text:       first(cfg.MessageTextColor, DefaultUserMessageText),
		},
		Input: Input{
			Placeholder: first(cfg.TextInputPlaceholder, state.DefaultInputPlaceholder),
			Colors:      Colors{Background: DefaultInputBg, Text: DefaultInputText},
		},
		PrimaryButton: Colors{
			Background: first(cfg.ButtonBackgroundColor, primary),
			Text:       first(cfg.ButtonColor, DefaultButtonText),
		},
		Assets: Assets{
			AIIcon: rt.AIIcon,
			Logo:   rt.Logo,
		},
		Features: Features{
			FullScreenEnabled:          cfg.FullScreenEnabled,
			ShowConversationManagement: cfg.ShowConversationManagement == nil || *cfg.ShowConversationManagement,
		},
		Placement: ResolvePlacement(cfg),
	}
}

// UpdateWithAPIData refreshes the branding assets and header logo from a
// late-arriving remote theme. Colors are left alone. Empty remote fields keep
// the current values.
func UpdateWithAPIData(current Resolved, remote api.Theme) Resolved {
	current.Assets = Assets{
		AIIcon: first(remote.AIIcon, current.Assets.AIIcon),
		Logo:   first(remote.Logo, current.Assets.Logo),
	}
	current.Header.LogoURL = first(remote.Logo, current.Header.LogoURL)
	return current
}

// Shadow maps a preset name to a CSS box-shadow. Unknown or empty names get
// the large preset.
func Shadow(preset string) string {
	if s, ok := shadows[preset]; ok {
		return s
	}
	return DefaultShadow
}

// ResolvePlacement picks the position from Position, then the legacy
// Location, then bottom-right. Spacing prefers SpacingBottom/SpacingRight,
// then the Spacing block, then the defaults.
func ResolvePlacement(cfg config.Widget) Placement {
	position := cfg.Position
	if position == "" {
		switch cfg.Location {
		case "bottom", config.PositionBottomRight:
			position = config.PositionBottomRight
		case config.PositionBottomLeft:
			position = config.PositionBottomLeft
		default:
			position = config.PositionBottomRight
		}
	}

	return Placement{
		Position: position,
		Bottom:   first(cfg.SpacingBottom, cfg.Spacing.Bottom, DefaultSpacingBottom),
		Right:    first(cfg.SpacingRight, cfg.Spacing.Right, DefaultSpacingRight),
		Left:     cfg.Spacing.Left,
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
