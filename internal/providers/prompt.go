package providers

import (
	"strings"
)

// styleEnhancements are appended to image prompts to pull the model toward
// a consistent children's-book look.
var styleEnhancements = []string{
	"Colorful children's book illustration style",
	"warm and inviting atmosphere",
	"soft lighting",
	"friendly and approachable characters",
	"bright cheerful colors",
	"detailed but not overwhelming",
	"age-appropriate and magical",
	"high quality digital art",
}

// EnhanceImagePrompt appends the standard style suffix. Prompts that
// already mention a book/illustration style skip the first (redundant)
// style term and only get the quality enhancements.
func EnhanceImagePrompt(prompt string) string {
	lower := strings.ToLower(prompt)
	hasBookStyle := strings.Contains(lower, "children's book") ||
		strings.Contains(lower, "storybook") ||
		strings.Contains(lower, "illustration")

	terms := styleEnhancements
	if hasBookStyle {
		terms = styleEnhancements[1:]
	}
	return prompt + ", " + strings.Join(terms, ", ")
}

// ConsistencyPrefix builds the shared prompt prefix used when generating
// every image of a story in one pass, so all pages share the same art
// style and the main character looks identical across scenes.
func ConsistencyPrefix(storyTitle, characterDescription string) string {
	var b strings.Builder
	b.WriteString("Children's book illustration style. Story: \"")
	b.WriteString(storyTitle)
	b.WriteString("\". ")

	if desc := strings.TrimSpace(characterDescription); desc != "" {
		b.WriteString("MAIN CHARACTER (must appear exactly the same in all images): ")
		b.WriteString(desc)
		b.WriteString(". ")
	}

	b.WriteString("Art style: Colorful, warm, child-friendly illustrations with soft edges and vibrant colors. ")
	b.WriteString("Maintain exact character appearance, clothing, and features across all scenes. ")
	return b.String()
}

// ScenePrompt combines the consistency prefix with one page's description.
func ScenePrompt(prefix, imagePrompt string) string {
	return prefix + "Scene: " + imagePrompt
}

// RegenerationPrompt appends custom instructions to an existing prompt.
func RegenerationPrompt(original, instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		return original
	}
	return original + ". Additional instructions: " + instructions
}
