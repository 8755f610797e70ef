package prompts

import (
	"fmt"
	"strings"

	"github.com/mirae/stylegen/internal/domain"
)

// ============================================================================
// Vision-model instructions for Midjourney prompt generation
// ============================================================================

// The model must answer with machine-parseable lines:
//
//	PROMPT1: <prompt text with --ar/--s parameters>
//	NAME1: <english name> / <chinese name>   (outfit mode only)
//
// Anything outside those prefixes is ignored by the parser, so the
// instructions repeat the format rules aggressively.

// SystemPrompt defines the role and output contract for the vision model.
const SystemPrompt = `You are an expert fashion designer and Midjourney prompt engineer. You analyze Pinterest-style fashion reference images and write production-quality Midjourney prompts for 3D clothing design.

OUTPUT FORMAT (strict):
- Each prompt on its own line, prefixed PROMPT1:, PROMPT2:, PROMPT3:
- Name suggestions (when requested) each on its own line, prefixed NAME1: through NAME10:
- Plain text only. No markdown, no bullet points, no numbering, no quotation marks around prompts.
- Do NOT include the /imagine command, only the prompt text with parameters.

MODERN PARAMETERS TO USE:
- --ar (aspect ratio): 1:1, 3:2, 16:9, 2:3
- --s or --stylize: 50-1000 (50=low style, 250=high)
- --chaos: 0-100 for variety`

// outfitTemplate asks for three complete-look studio prompts plus ten
// bilingual product names. Placeholders: part, gender, part, part.
const outfitTemplate = `Analyze this fashion reference image and write exactly 3 OUTFIT Midjourney prompts focused on the %s.

Requirements:
- Each prompt describes a complete look on a %s model, biased toward a clean studio shot with a background color contrasting the %s
- Vary the styling context across the 3 prompts (runway, street style, editorial)
- Include fabric, fit, color and overall aesthetic details for the %s
- Use modern Midjourney parameters (--ar 2:3 or 3:2, --s)

Also suggest exactly 10 product names for this garment, each bilingual (English / Chinese), one per line prefixed NAME1: through NAME10:.

Answer with PROMPT1:, PROMPT2:, PROMPT3: then NAME1: .. NAME10:, nothing else.`

// textureTemplate asks for three macro fabric-only prompts.
// Placeholders: part, part.
const textureTemplate = `Analyze this fashion reference image and write exactly 3 TEXTURE Midjourney prompts for the %s material only.

Requirements:
- Extreme close-up macro photography of the %s fabric: weave pattern, surface detail, material properties
- Mandatory 1:1 aspect ratio (--ar 1:1) on every prompt
- Absolutely NO visible background, model, body, or scene context - fabric fills the entire frame
- Suitable for 3D texture mapping workflows (add --s 50, optionally --chaos 10)

Answer with PROMPT1:, PROMPT2:, PROMPT3: only, nothing else.`

// UserPrompt builds the per-job instruction from the job parameters.
func UserPrompt(part string, promptType domain.PromptType, gender domain.GenderType, guidance string) string {
	var b strings.Builder

	if promptType == domain.PromptTypeTexture {
		fmt.Fprintf(&b, textureTemplate, part, part)
	} else {
		g := "female"
		if gender == domain.GenderMale {
			g = "male"
		}
		fmt.Fprintf(&b, outfitTemplate, part, g, part, part)
	}

	if guidance = strings.TrimSpace(guidance); guidance != "" {
		b.WriteString("\n\nAdditional context from the designer: ")
		b.WriteString(guidance)
	}

	return b.String()
}

// ============================================================================
// Refusal detection
// ============================================================================

// RefusalPhrases are substrings that identify a content-policy refusal
// in a model response. Matched case-insensitively.
var RefusalPhrases = []string{
	"i'm sorry, but i can't",
	"i am sorry, but i can't",
	"i'm sorry, i can't",
	"i cannot assist with",
	"unable to analyze",
	"i can't analyze",
	"i cannot analyze",
	"i can't help with that",
	"against my guidelines",
}

// IsRefusal reports whether the model response reads as a policy refusal.
func IsRefusal(response string) bool {
	lower := strings.ToLower(response)
	for _, phrase := range RefusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
