package domain

// GenerationOptions is the request-scoped value object for text generation.
// Pointer fields distinguish "omitted" from an explicit zero so saved provider
// configuration can fill only what the caller left out.
type GenerationOptions struct {
	Model        string         `json:"model"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
	TopP         *float64       `json:"top_p,omitempty"`
	Stream       bool           `json:"stream,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Context      string         `json:"context,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Clone returns a copy whose Extra map and pointers can be modified freely.
func (o GenerationOptions) Clone() GenerationOptions {
	out := o
	if o.Temperature != nil {
		v := *o.Temperature
		out.Temperature = &v
	}
	if o.MaxTokens != nil {
		v := *o.MaxTokens
		out.MaxTokens = &v
	}
	if o.TopP != nil {
		v := *o.TopP
		out.TopP = &v
	}
	if o.Extra != nil {
		out.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// ImageOptions is the request-scoped value object for image generation.
type ImageOptions struct {
	Model   string         `json:"model"`
	Size    string         `json:"size,omitempty"`
	Quality string         `json:"quality,omitempty"`
	Style   string         `json:"style,omitempty"`
	Count   *int           `json:"n,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy of the options.
func (o ImageOptions) Clone() ImageOptions {
	out := o
	if o.Count != nil {
		v := *o.Count
		out.Count = &v
	}
	if o.Extra != nil {
		out.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Usage holds normalized token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TextResponse is the aggregate result of a non-streaming text call.
type TextResponse struct {
	Content      string `json:"content"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// GeneratedImage is one image returned by an image-capable adapter.
type GeneratedImage struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageResponse is the aggregate result of an image call.
type ImageResponse struct {
	Images []GeneratedImage `json:"images"`
}

// ChunkMetadata is carried by the terminal chunk of a stream.
type ChunkMetadata struct {
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Chunk is one increment of a streamed generation. Exactly one chunk per stream
// has IsComplete set; it is the last one and its Content is empty.
type Chunk struct {
	Content    string         `json:"content"`
	IsComplete bool           `json:"is_complete"`
	Metadata   *ChunkMetadata `json:"metadata,omitempty"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
