package providers

import (
	"strings"
	"testing"
)

func TestEnhanceImagePrompt(t *testing.T) {
	out := EnhanceImagePrompt("a fox in a forest")
	if !strings.HasPrefix(out, "a fox in a forest, Colorful children's book illustration style") {
		t.Errorf("plain prompt should get the full enhancement: %q", out)
	}
	if !strings.Contains(out, "high quality digital art") {
		t.Errorf("missing quality terms: %q", out)
	}

	// Prompts already styled skip the redundant style term.
	out = EnhanceImagePrompt("storybook scene of a fox")
	if strings.Contains(out, "Colorful children's book illustration style") {
		t.Errorf("styled prompt should not repeat the style term: %q", out)
	}
	if !strings.Contains(out, "warm and inviting atmosphere") {
		t.Errorf("styled prompt still gets quality terms: %q", out)
	}
}

func TestConsistencyPrefix(t *testing.T) {
	p := ConsistencyPrefix("The Brave Little Fox", "  a small red fox with a blue scarf  ")
	if !strings.Contains(p, `Story: "The Brave Little Fox"`) {
		t.Errorf("missing story title: %q", p)
	}
	if !strings.Contains(p, "MAIN CHARACTER (must appear exactly the same in all images): a small red fox with a blue scarf.") {
		t.Errorf("missing character description: %q", p)
	}

	// No character description: the character clause is omitted entirely.
	p = ConsistencyPrefix("T", "   ")
	if strings.Contains(p, "MAIN CHARACTER") {
		t.Errorf("unexpected character clause: %q", p)
	}
}

func TestScenePrompt(t *testing.T) {
	got := ScenePrompt("prefix. ", "the fox crosses the river")
	if got != "prefix. Scene: the fox crosses the river" {
		t.Errorf("ScenePrompt = %q", got)
	}
}

func TestRegenerationPrompt(t *testing.T) {
	if got := RegenerationPrompt("base", ""); got != "base" {
		t.Errorf("empty instructions: %q", got)
	}
	got := RegenerationPrompt("base", "add a rainbow")
	if got != "base. Additional instructions: add a rainbow" {
		t.Errorf("RegenerationPrompt = %q", got)
	}
}
