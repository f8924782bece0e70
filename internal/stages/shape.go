package stages

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"storygen-backend/internal/pipeline"
)

var shapers = map[pipeline.Stage]shaper{
	pipeline.StageStakeExtraction:   shapeStakes,
	pipeline.StageMessageDerivation: shapeMessages,
	pipeline.StageThemeSynthesis:    shapeThreads,
	pipeline.StageSummarySynthesis:  shapeSummary,
	pipeline.StageTopicGeneration:   shapeTopics,
}

var (
	messageLine    = regexp.MustCompile(`^-\s*On\s+([^:]+):\s+(.+)$`)
	threadMarker   = regexp.MustCompile(`Thread #(\d+):`)
	threadBody     = regexp.MustCompile(`(?s)^\s*([A-Z][A-Z'’]+(?:[ -][A-Z][A-Z'’]+)*)\s*(?:[—–-]\s*)?(.*)$`)
	summaryHeading = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:\*\*|__|\*)?\s*sum of your story\s*:?\s*(?:\*\*|__|\*)?\s*:?\s*`)
	listMarker     = regexp.MustCompile(`^(?:[-•*]|\d+[.)])\s*`)
	blankLines     = regexp.MustCompile(`\n\s*\n`)
)

const blockSelector = "p, div, li, br, tr, h1, h2, h3, h4, h5, h6"

func looksLikeHTML(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

func parse(raw string) (*goquery.Document, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, false
	}
	return doc, true
}

// plainText drops markup and keeps one line per block element.
func plainText(raw string) string {
	if !looksLikeHTML(raw) {
		return raw
	}
	doc, ok := parse(raw)
	if !ok {
		return raw
	}
	doc.Find("script, style").Remove()
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	return doc.Find("body").Text()
}

func paragraphs(text string) string {
	var b strings.Builder
	for _, part := range blankLines.Split(strings.TrimSpace(text), -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(part), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

func fallback(raw string) Shaped {
	text := strings.TrimSpace(raw)
	return Shaped{Text: text, Display: paragraphs(text)}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func shapeStakes(raw string) Shaped {
	var items []string
	if looksLikeHTML(raw) {
		if doc, ok := parse(raw); ok {
			doc.Find("li").Each(func(_ int, s *goquery.Selection) {
				if item := collapse(s.Text()); item != "" {
					items = append(items, item)
				}
			})
		}
	}
	if len(items) == 0 {
		for _, line := range strings.Split(plainText(raw), "\n") {
			item := collapse(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
			if item != "" {
				items = append(items, item)
			}
		}
	}
	if len(items) == 0 {
		return fallback(raw)
	}

	var text, display strings.Builder
	display.WriteString("<ul>")
	for i, item := range items {
		if i > 0 {
			text.WriteString("\n")
		}
		text.WriteString("- ")
		text.WriteString(item)
		display.WriteString("<li>")
		display.WriteString(html.EscapeString(item))
		display.WriteString("</li>")
	}
	display.WriteString("</ul>")
	return Shaped{Text: text.String(), Display: display.String()}
}

func shapeMessages(raw string) Shaped {
	text := strings.TrimSpace(plainText(raw))
	var rows, extra strings.Builder
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := messageLine.FindStringSubmatch(line)
		if m == nil {
			extra.WriteString("<p>")
			extra.WriteString(html.EscapeString(line))
			extra.WriteString("</p>")
			continue
		}
		n++
		fmt.Fprintf(&rows, "<tr><td>%d.</td><td class=\"title\">%s</td><td class=\"information\">&#34;%s&#34;</td></tr>",
			n, html.EscapeString(strings.TrimSpace(m[1])), html.EscapeString(strings.TrimSpace(m[2])))
	}
	if n == 0 {
		return fallback(raw)
	}
	return Shaped{Text: text, Display: "<table>" + rows.String() + "</table>" + extra.String()}
}

type thread struct {
	num  string
	name string
	desc string
}

func parseThreads(text string) []thread {
	locs := threadMarker.FindAllStringSubmatchIndex(text, -1)
	var out []thread
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		m := threadBody.FindStringSubmatch(text[loc[1]:end])
		if m == nil {
			continue
		}
		out = append(out, thread{
			num:  text[loc[2]:loc[3]],
			name: collapse(m[1]),
			desc: collapse(m[2]),
		})
	}
	return out
}

func titleCase(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func shapeThreads(raw string) Shaped {
	if strings.Contains(raw, `<ul class="labels">`) {
		return Shaped{Text: strings.TrimSpace(plainText(raw)), Display: sanitize(raw)}
	}
	text := strings.TrimSpace(plainText(raw))
	threads := parseThreads(text)
	if len(threads) == 0 {
		return fallback(raw)
	}

	var b strings.Builder
	b.WriteString("<ul class=\"labels\">")
	for _, t := range threads {
		fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(titleCase(t.name)))
	}
	b.WriteString("</ul><div class=\"labels-data\"><ul>")
	for _, t := range threads {
		fmt.Fprintf(&b, "<li>%s. <span class=\"color-blue\">%s</span> %s</li>",
			t.num, html.EscapeString(t.name), html.EscapeString(t.desc))
	}
	b.WriteString("</ul></div>")
	return Shaped{Text: text, Display: b.String()}
}

func shapeSummary(raw string) Shaped {
	source := raw
	if looksLikeHTML(raw) {
		if doc, ok := parse(raw); ok {
			doc.Find("h1, h2, h3, h4, h5, h6, strong, b").Each(func(_ int, s *goquery.Selection) {
				if summaryHeading.ReplaceAllString(collapse(s.Text()), "") == "" {
					s.Remove()
				}
			})
			doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
				s.AfterHtml("\n")
			})
			source = doc.Find("body").Text()
		}
	}
	body := strings.TrimSpace(summaryHeading.ReplaceAllString(strings.TrimSpace(source), ""))
	if body == "" {
		return fallback(raw)
	}
	return Shaped{Text: body, Display: paragraphs(body)}
}

func shapeTopics(raw string) Shaped {
	if !looksLikeHTML(raw) {
		return fallback(raw)
	}
	clean := sanitize(raw)
	if strings.TrimSpace(clean) == "" {
		return fallback(plainText(raw))
	}
	return Shaped{Text: clean, Display: clean}
}

// sanitize removes active content from model HTML: embedded code and media elements,
// inline event handlers and javascript: URLs.
func sanitize(raw string) string {
	doc, ok := parse(raw)
	if !ok {
		return html.EscapeString(raw)
	}
	doc.Find("script, style, iframe, object, embed, link, meta").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		var attrs []string
		for _, a := range node.Attr {
			key := strings.ToLower(a.Key)
			val := strings.ToLower(strings.Join(strings.Fields(a.Val), ""))
			if strings.HasPrefix(key, "on") || strings.HasPrefix(val, "javascript:") {
				attrs = append(attrs, a.Key)
			}
		}
		for _, key := range attrs {
			s.RemoveAttr(key)
		}
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return html.EscapeString(raw)
	}
	return strings.TrimSpace(out)
}
