package core

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// generateImageTool renders an image from a text prompt and posts it to the
// conversation. The posting happens inside the tool, so the result is
// self-contained and the turn does not compose another response around it.
type generateImageTool struct {
	images interfaces.ImageGenerator
	chat   interfaces.ChatService
}

func (t *generateImageTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__generate_image",
		Description: "Generate an image from a text prompt and post it to the current conversation.",
		Parameters: map[string]*gollem.Parameter{
			"prompt": {
				Type:        gollem.TypeString,
				Description: "Description of the image to generate",
				Required:    true,
			},
		},
	}
}

func (t *generateImageTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	key, ok := tool.ConversationFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("conversation is not available")
	}

	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	tool.Update(ctx, "Generating image...")

	data, mimeType, err := t.images.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate image")
	}

	name := "generated" + extensionFor(mimeType)
	if err := t.chat.PostImage(ctx, key, name, data); err != nil {
		return nil, goerr.Wrap(err, "failed to post generated image")
	}

	return map[string]any{
		"size":                       len(data),
		"mime_type":                  mimeType,
		model.OutputMessageKey:       "Here's the image you asked for.",
		model.OutputSelfContainedKey: true,
	}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
