package domain

// TextDefaults holds saved defaults for text generation.
type TextDefaults struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// ImageDefaults holds saved defaults for image generation.
type ImageDefaults struct {
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// ProviderConfig is the saved per-provider configuration.
// Text and Image are the modality sub-trees; Advanced carries vendor-specific settings.
type ProviderConfig struct {
	Text     *TextDefaults  `json:"text,omitempty"`
	Image    *ImageDefaults `json:"image,omitempty"`
	Advanced map[string]any `json:"advanced,omitempty"`
}

// ProviderConfigSchema is what an adapter declares about its configurable settings.
type ProviderConfigSchema struct {
	Defaults     ProviderConfig
	AdvancedKeys []string
}

// Overlay layers cfg over base field by field; set fields in cfg win.
func (base ProviderConfig) Overlay(cfg ProviderConfig) ProviderConfig {
	out := ProviderConfig{}

	if base.Text != nil || cfg.Text != nil {
		text := TextDefaults{}
		if base.Text != nil {
			text = *base.Text
		}
		if cfg.Text != nil {
			if cfg.Text.Temperature != nil {
				text.Temperature = cfg.Text.Temperature
			}
			if cfg.Text.MaxTokens != nil {
				text.MaxTokens = cfg.Text.MaxTokens
			}
			if cfg.Text.TopP != nil {
				text.TopP = cfg.Text.TopP
			}
			if cfg.Text.SystemPrompt != "" {
				text.SystemPrompt = cfg.Text.SystemPrompt
			}
		}
		out.Text = &text
	}

	if base.Image != nil || cfg.Image != nil {
		image := ImageDefaults{}
		if base.Image != nil {
			image = *base.Image
		}
		if cfg.Image != nil {
			if cfg.Image.Size != "" {
				image.Size = cfg.Image.Size
			}
			if cfg.Image.Quality != "" {
				image.Quality = cfg.Image.Quality
			}
			if cfg.Image.Style != "" {
				image.Style = cfg.Image.Style
			}
			if cfg.Image.Count != nil {
				image.Count = cfg.Image.Count
			}
		}
		out.Image = &image
	}

	if len(base.Advanced) > 0 || len(cfg.Advanced) > 0 {
		out.Advanced = make(map[string]any, len(base.Advanced)+len(cfg.Advanced))
		for k, v := range base.Advanced {
			out.Advanced[k] = v
		}
		for k, v := range cfg.Advanced {
			out.Advanced[k] = v
		}
	}
	return out
}
