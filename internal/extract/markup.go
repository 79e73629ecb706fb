package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	breakTags         = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
	multiNewlines     = regexp.MustCompile(`\n{3,}`)

	mdFence      = regexp.MustCompile("(?m)^```.*$")
	mdImages     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinks      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeadings   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdRule       = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	mdListMarker = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
)

func htmlText(_ string, data []byte) (string, error) {
	return stripHTML(string(trimBOM(data))), nil
}

// stripHTML removes tags and non-content elements, keeping block structure
// as line breaks.
func stripHTML(content string) string {
	for _, re := range []*regexp.Regexp{scriptTag, styleTag, noscriptTag, headTag, svgTag, htmlComments} {
		content = re.ReplaceAllString(content, "")
	}

	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = breakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func markdownText(_ string, data []byte) (string, error) {
	text, err := plainText("", data)
	if err != nil {
		return "", err
	}
	return stripMarkdown(text), nil
}

// stripMarkdown drops formatting syntax but keeps code and link text, which
// often carry the answer to a question.
func stripMarkdown(content string) string {
	content = mdFence.ReplaceAllString(content, "")
	content = mdImages.ReplaceAllString(content, "$1")
	content = mdLinks.ReplaceAllString(content, "$1")
	content = mdHeadings.ReplaceAllString(content, "")
	content = mdEmphasis.ReplaceAllString(content, "$2")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdRule.ReplaceAllString(content, "")
	content = mdListMarker.ReplaceAllString(content, "$1")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
