package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goaide/internal/providers"
)

const ctxMediaImages toolContextKey = "tool_media_images"

// WithMediaImages stores the current message's decoded images on ctx
// for read_image.
func WithMediaImages(ctx context.Context, images []providers.ImageContent) context.Context {
	if len(images) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxMediaImages, images)
}

// MediaImagesFromCtx retrieves stored images from ctx.
func MediaImagesFromCtx(ctx context.Context) []providers.ImageContent {
	v, _ := ctx.Value(ctxMediaImages).([]providers.ImageContent)
	return v
}

// visionProviderPriority is the order providers are tried for vision
// calls.
var visionProviderPriority = []string{"anthropic", "openai", "zhipu"}

// ReadImageTool describes the images attached to the current message
// through a vision-capable provider.
type ReadImageTool struct {
	registry *providers.Registry
}

func NewReadImageTool(registry *providers.Registry) *ReadImageTool {
	return &ReadImageTool{registry: registry}
}

func (t *ReadImageTool) Name() string { return "read_image" }

func (t *ReadImageTool) Description() string {
	return "Analyze images attached to the current message using a vision model. Use this when the message mentions an attached image you cannot view directly."
}

func (t *ReadImageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "What you want to know about the image(s), e.g. 'Describe this image in detail' or 'What text is in this image?'",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *ReadImageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		prompt = "Describe this image in detail."
	}

	images := MediaImagesFromCtx(ctx)
	if len(images) == 0 {
		return ErrorResult("No images available in this conversation. The user may not have sent an image.")
	}

	provider, err := t.visionProvider()
	if err != nil {
		return ErrorResult(err.Error())
	}
	model := provider.DefaultModel()

	slog.Info("read_image: calling vision provider", "provider", provider.Name(), "images", len(images))

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{
			Role:    "user",
			Content: prompt,
			Images:  images,
		}},
		Model: model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   1024,
			providers.OptTemperature: 0.3,
		},
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("Vision provider error: %v", err))
	}

	result := NewResult(resp.Content)
	result.Usage = resp.Usage
	result.Provider = provider.Name()
	result.Model = model
	return result
}

func (t *ReadImageTool) visionProvider() (providers.Provider, error) {
	for _, name := range visionProviderPriority {
		if p, err := t.registry.Get(name); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no vision-capable provider configured (need one of: %v)", visionProviderPriority)
}
