package llm

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// PreviewMIMEType labels every preview payload, whatever the part declares.
const PreviewMIMEType = "image/png"

// noImageMessage is the failure reported when a response carries no image part.
const noImageMessage = "No image data found in response."

// ExtractImage returns the first part carrying inline image bytes as a PNG
// data URI. Parts without data are skipped; ok is false when none qualify.
func ExtractImage(parts []*genai.Part) (payload string, ok bool) {
	for _, part := range parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return DataURI(part.InlineData.Data), true
	}
	return "", false
}

// DataURI encodes image bytes as a data:image/png;base64 URI.
func DataURI(data []byte) string {
	return "data:" + PreviewMIMEType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a data URI produced by DataURI back into its MIME type and bytes.
func DecodeDataURI(payload string) (mimeType string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(payload, "data:")
	if !found {
		return "", nil, false
	}
	mimeType, encoded, found := strings.Cut(rest, ";base64,")
	if !found {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, false
	}
	return mimeType, data, true
}

// GenerateImage renders a preview for a styled prompt and returns it as a
// data URI. A response without an image part is always an error.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	const op = "generate_image"
	if strings.TrimSpace(prompt) == "" {
		return "", validationError(op, "prompt is required")
	}

	log.Debug().
		Str("prompt", prompt[:min(50, len(prompt))]+"...").
		Str("model", c.cfg.ImageModel).
		Msg("Generating image")

	if err := c.wait(ctx); err != nil {
		return "", remoteCallError(op, err)
	}

	parts, err := c.image.generateImage(ctx, prompt, c.cfg.AspectRatio, c.cfg.ImageSize)
	if err != nil {
		log.Error().Err(err).
			Str("model", c.cfg.ImageModel).
			Str("prompt_preview", prompt[:min(80, len(prompt))]).
			Msg("Gemini image generation failed")
		return "", remoteCallError(op, err)
	}

	payload, ok := ExtractImage(parts)
	if !ok {
		log.Warn().
			Str("model", c.cfg.ImageModel).
			Int("parts", len(parts)).
			Msg("No image blob in Gemini response")
		return "", emptyResultError(op, noImageMessage)
	}

	log.Info().
		Str("caller", "GenerateImage").
		Int("payload_length", len(payload)).
		Str("aspect_ratio", c.cfg.AspectRatio).
		Str("image_size", c.cfg.ImageSize).
		Msg("Gemini response (image blob)")

	return payload, nil
}
