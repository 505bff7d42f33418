package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// FallbackPrompt is returned when the text model answers without any text.
// It is a visible placeholder, not a usable prompt.
const FallbackPrompt = "Failed to generate prompt."

// MandatorySuffix must close every generated prompt verbatim.
const MandatorySuffix = "full body shot, standing pose, front view, pure white background, simple background, no text, 8k resolution, cinematic lighting, 3D render, best quality, Battle Through the Heavens style, 3D CG, unreal engine 5, not realistic, not real person, not photorealistic"

// SystemInstruction is the fixed instruction sent with every prompt request.
var SystemInstruction = fmt.Sprintf(`You are an expert prompt engineer specializing in 3D Chinese Animation (Donghua/Guoman) character design.

**TASK:**
Convert the user's character description into a prompt for a **High-Quality 3D Donghua Character Render**.

**LAYOUT REQUIREMENT (CRITICAL):**
- **Composition:** FULL BODY SHOT (Must show head to feet).
- **Pose:** Standing straight, Front View.
- **Background:** PURE WHITE BACKGROUND, Clean, Minimalist.
- **Constraint:** ABSOLUTELY NO TEXT, NO LOGOS, NO WATERMARKS in the background.

**Style Guidelines:**
- **"Battle Through the Heavens" (Doupo Cangqiong)** aesthetic.
- High-fidelity 3D Render (Blender/C4D/Octane).
- Xuanhuan/Cultivation style: exquisite robes, armor, glowing energy, noble aura.
- Focus on describing the character's facial features, hairstyle, clothing details, and accessories in English.

**Negative Constraints (STRICTLY ENFORCED):**
- **ABSOLUTELY FORBIDDEN:** Do NOT use words like: 'photorealistic', 'realistic', 'real life', 'human', 'photo', 'hyperrealistic', 'photography', 'camera', 'live action'.
- **NO:** 2D, Cartoon, Anime drawings, Sketch, Chibi, Cropped image, Close up.
- **REPLACEMENT:** If you want to describe detail, use 'highly detailed 3D', 'intricate textures', '8k CG', or 'masterpiece' instead of 'realistic'.
- The result must look like a high-end **3D CG Render**, NOT a photograph of a real person.

**Mandatory Requirements:**
You MUST append the following keywords to the very end of the generated prompt exactly as listed:
"%s"

**Output Format:**
Return ONLY the optimized prompt text in English.`, MandatorySuffix)

// PromptRequest frames a user description as the task message for the text model.
func PromptRequest(description string) string {
	return fmt.Sprintf("User Description: %s\n\nCreate a detailed 3D Donghua character prompt (Full Body, Front View, White Background). Ensure NO realistic/photo keywords are used.", description)
}

// GeneratePrompt turns a character description into a styled image prompt.
// An empty model answer yields FallbackPrompt rather than an error.
func (c *Client) GeneratePrompt(ctx context.Context, description string) (string, error) {
	const op = "generate_prompt"
	if strings.TrimSpace(description) == "" {
		return "", validationError(op, "description is required")
	}

	log.Debug().
		Int("description_length", len(description)).
		Str("model", c.cfg.TextModel).
		Msg("Generating styled prompt")

	if err := c.wait(ctx); err != nil {
		return "", remoteCallError(op, err)
	}

	text, err := c.text.generateText(ctx, SystemInstruction, PromptRequest(description), *c.cfg.Temperature)
	if err != nil {
		log.Error().Err(err).Str("model", c.cfg.TextModel).Msg("Gemini prompt generation failed")
		return "", remoteCallError(op, err)
	}

	logGeminiResponse("GeneratePrompt", text)

	if strings.TrimSpace(text) == "" {
		log.Warn().Str("model", c.cfg.TextModel).Msg("Gemini returned empty prompt, using fallback")
		return FallbackPrompt, nil
	}

	log.Info().
		Int("prompt_length", len(text)).
		Msg("Prompt generation complete (Gemini)")

	return text, nil
}
