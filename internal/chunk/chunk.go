// Package chunk splits long input text into smaller pieces sized for
// embedding and storage as separate Volumes.
package chunk

import "strings"

// Chunk is a single produced piece of text.
type Chunk struct {
	Index int
	Text  string
}

// Strategy selects how text is split.
type Strategy string

const (
	StrategyFixed    Strategy = "fixed"
	StrategyMarkdown Strategy = "markdown"
	StrategyCode     Strategy = "code"
)

// Options configures a Split call.
type Options struct {
	Strategy Strategy
	// MaxTokens bounds a chunk's approximate size; converted to characters
	// via a 4-chars-per-token heuristic since no tokenizer is assumed.
	MaxTokens int
	Overlap   int
}

// Split dispatches to the strategy named in opt.Strategy, defaulting to
// Fixed.
func Split(text string, opt Options) []Chunk {
	switch opt.Strategy {
	case StrategyMarkdown:
		return splitMarkdown(text, opt)
	case StrategyCode:
		return splitCode(text, opt)
	default:
		return splitFixed(text, opt)
	}
}

func targetChars(opt Options) int {
	n := opt.MaxTokens
	if n <= 0 {
		n = 512
	}
	if n*4 < 32 {
		return 32
	}
	return n * 4
}

func overlapWords(opt Options) int {
	if opt.Overlap <= 0 {
		return 0
	}
	// a token is roughly 0.75 words; keep at least one word of carry-over
	// whenever an overlap was requested at all.
	w := opt.Overlap * 3 / 4
	if w < 1 {
		w = 1
	}
	return w
}

func number(out []Chunk) []Chunk {
	for i := range out {
		out[i].Index = i
	}
	return out
}

// splitFixed packs whitespace-delimited words into chunks close to the
// target size, carrying the trailing overlapWords(opt) words of one chunk
// into the start of the next so neighboring chunks share context.
func splitFixed(text string, opt Options) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	tgt := targetChars(opt)
	carry := overlapWords(opt)

	var out []Chunk
	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, Chunk{Text: strings.Join(cur, " ")})
	}

	i := 0
	for i < len(words) {
		w := words[i]
		add := len(w)
		if curLen > 0 {
			add++ // separating space
		}
		if curLen > 0 && curLen+add > tgt {
			flush()
			start := len(cur) - carry
			if start < 0 {
				start = 0
			}
			cur = append([]string(nil), cur[start:]...)
			curLen = len(strings.Join(cur, " "))
			continue
		}
		cur = append(cur, w)
		curLen += add
		i++
	}
	flush()
	return number(out)
}

// section is a markdown heading and the body lines beneath it, before
// deeper sub-headings (which become their own sections).
type section struct {
	heading string
	level   int
	body    []string
}

// splitMarkdown first partitions text into heading-delimited sections, then
// repacks adjacent small sections together and re-splits any section that
// alone exceeds the target size using splitFixed, so headings never land
// mid-chunk.
func splitMarkdown(text string, opt Options) []Chunk {
	sections := parseSections(text)
	tgt := targetChars(opt)

	var out []Chunk
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, Chunk{Text: s})
		}
		buf.Reset()
	}

	for _, sec := range sections {
		rendered := renderSection(sec)
		if len(rendered) > tgt {
			flush()
			for _, piece := range splitFixed(rendered, opt) {
				out = append(out, Chunk{Text: piece.Text})
			}
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(rendered) > tgt {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(rendered)
	}
	flush()
	return number(out)
}

func parseSections(text string) []section {
	lines := strings.Split(text, "\n")
	var sections []section
	cur := section{}
	hasCur := false

	for _, ln := range lines {
		if level := headingLevel(ln); level > 0 {
			if hasCur {
				sections = append(sections, cur)
			}
			cur = section{heading: ln, level: level}
			hasCur = true
			continue
		}
		if !hasCur {
			cur = section{}
			hasCur = true
		}
		cur.body = append(cur.body, ln)
	}
	if hasCur {
		sections = append(sections, cur)
	}
	return sections
}

func headingLevel(ln string) int {
	trimmed := strings.TrimLeft(ln, " \t")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0
	}
	return level
}

func renderSection(sec section) string {
	var sb strings.Builder
	if sec.heading != "" {
		sb.WriteString(sec.heading)
	}
	body := strings.TrimSpace(strings.Join(sec.body, "\n"))
	if body != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(body)
	}
	return strings.TrimSpace(sb.String())
}

// codeBlock is a maximal run of lines separated by a blank line seen at
// brace depth zero. opensBrace marks a block that itself opens a scope
// (a function, class, or similar declaration), found structurally from
// the presence of an opening brace rather than by matching language
// keywords.
type codeBlock struct {
	text       string
	opensBrace bool
}

func splitBlocks(text string) []codeBlock {
	lines := strings.Split(text, "\n")
	depth := 0
	var blocks []codeBlock
	var buf strings.Builder
	opened := false

	finish := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			blocks = append(blocks, codeBlock{text: s, opensBrace: opened})
		}
		buf.Reset()
		opened = false
	}

	for i, ln := range lines {
		if depth == 0 && strings.TrimSpace(ln) == "" && buf.Len() > 0 {
			finish()
		}
		buf.WriteString(ln)
		if i < len(lines)-1 {
			buf.WriteString("\n")
		}
		if strings.Contains(ln, "{") {
			opened = true
		}
		depth += strings.Count(ln, "{") - strings.Count(ln, "}")
		if depth < 0 {
			depth = 0
		}
	}
	finish()
	return blocks
}

// splitCode packs blank-line-delimited blocks together up to the target
// size, but never merges two blocks that each open their own scope
// (two sibling functions, classes, and the like) into one chunk, so a
// declaration is rarely split from its body and rarely shares a chunk
// with another declaration.
func splitCode(text string, opt Options) []Chunk {
	blocks := splitBlocks(text)
	tgt := targetChars(opt)

	var out []Chunk
	var cur []string
	curLen := 0
	curHasBrace := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, Chunk{Text: strings.Join(cur, "\n\n")})
		cur = nil
		curLen = 0
		curHasBrace = false
	}

	for _, b := range blocks {
		collides := curHasBrace && b.opensBrace
		tooBig := curLen > 0 && curLen+len(b.text) > tgt
		if collides || tooBig {
			flush()
		}
		cur = append(cur, b.text)
		curLen += len(b.text)
		curHasBrace = curHasBrace || b.opensBrace
	}
	flush()
	return number(out)
}
