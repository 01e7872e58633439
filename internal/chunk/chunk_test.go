package chunk

import (
	"strings"
	"testing"
)

func genText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func TestFixedChunkSizeToleranceWithOverlap(t *testing.T) {
	text := genText(2000) // ~8000 chars
	chunks := Split(text, Options{Strategy: StrategyFixed, MaxTokens: 200, Overlap: 10})
	if len(chunks) == 0 {
		t.Fatalf("expected some chunks")
	}
	tgt := 200 * 4
	tolLow, tolHigh := int(float64(tgt)*0.9), int(float64(tgt)*1.1)
	for i, c := range chunks {
		if i == len(chunks)-1 {
			break
		}
		if l := len(c.Text); !(l >= tolLow && l <= tolHigh) {
			t.Fatalf("chunk %d length %d out of tolerance [%d,%d]", i, l, tolLow, tolHigh)
		}
	}
}

func TestMarkdownChunkPreservesHeadings(t *testing.T) {
	text := "# Title\n\npara1 text here.\n\n## Sub\n\npara2 text here."
	chunks := Split(text, Options{Strategy: StrategyMarkdown, MaxTokens: 10})
	if len(chunks) < 2 {
		t.Fatalf("expected >=2 chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "# Title") {
		t.Fatalf("first chunk should contain heading: %q", chunks[0].Text)
	}
}

func TestCodeChunkRarelySplitsFunctions(t *testing.T) {
	text := "package x\n\n// comment\n\nfunc A() {}\n\nfunc B() {}\n\nfunc C() {}\n"
	chunks := Split(text, Options{Strategy: StrategyCode, MaxTokens: 8})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks")
	}
	for _, c := range chunks {
		if strings.Count(c.Text, "func ") > 1 {
			t.Fatalf("chunk should not contain many functions: %q", c.Text)
		}
	}
}

func TestSplitDefaultsToFixedStrategy(t *testing.T) {
	chunks := Split(genText(50), Options{})
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
}
