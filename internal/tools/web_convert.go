package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// extractJSON pretty-prints a JSON body, or passes it through raw.
func extractJSON(body []byte) (string, string) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body), "raw"
	}
	formatted, _ := json.MarshalIndent(data, "", "  ")
	return string(formatted), "json"
}

// Chrome elements stripped before any conversion.
var chromeRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[\s\S]*?</script>`),
	regexp.MustCompile(`(?is)<style[\s\S]*?</style>`),
	regexp.MustCompile(`<!--[\s\S]*?-->`),
	regexp.MustCompile(`(?is)<nav[\s\S]*?</nav>`),
	regexp.MustCompile(`(?is)<footer[\s\S]*?</footer>`),
}

var (
	rePageHeader = regexp.MustCompile(`(?is)<header[\s\S]*?</header>`)
	reParagraph  = regexp.MustCompile(`(?i)<p[^>]*>([\s\S]*?)</p>`)
	reBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reListItem   = regexp.MustCompile(`(?i)<li[^>]*>([\s\S]*?)</li>`)
	reAnchor     = regexp.MustCompile(`(?i)<a[^>]*href="([^"]*)"[^>]*>([\s\S]*?)</a>`)
	rePre        = regexp.MustCompile(`(?is)<pre[^>]*>([\s\S]*?)</pre>`)
	reCode       = regexp.MustCompile(`(?i)<code[^>]*>([\s\S]*?)</code>`)
	reStrong     = regexp.MustCompile(`(?i)<(?:strong|b)[^>]*>([\s\S]*?)</(?:strong|b)>`)
	reEm         = regexp.MustCompile(`(?i)<(?:em|i)[^>]*>([\s\S]*?)</(?:em|i)>`)
	reBlockquote = regexp.MustCompile(`(?is)<blockquote[^>]*>([\s\S]*?)</blockquote>`)
	reImgAlt     = regexp.MustCompile(`(?i)<img[^>]*alt="([^"]*)"[^>]*/?>`)
	reAnyTag     = regexp.MustCompile(`<[^>]+>`)
	reMultiNL    = regexp.MustCompile(`\n{3,}`)
	reMultiSP    = regexp.MustCompile(`[ \t]{2,}`)
	reHeading    = regexp.MustCompile(`(?i)<h([1-6])[^>]*>([\s\S]*?)</h[1-6]>`)
)

func stripChrome(html string) string {
	for _, re := range chromeRes {
		html = re.ReplaceAllString(html, "")
	}
	return html
}

// htmlToMarkdown converts HTML to a markdown-like format. Regex-based
// rather than a full DOM walk, which covers article-shaped pages well
// enough for model consumption.
func htmlToMarkdown(html string) string {
	s := stripChrome(html)

	s = reHeading.ReplaceAllStringFunc(s, func(match string) string {
		m := reHeading.FindStringSubmatch(match)
		level := int(m[1][0] - '0')
		return "\n" + strings.Repeat("#", level) + " " + m[2] + "\n"
	})

	// Code blocks go before the generic tag strip.
	s = rePre.ReplaceAllString(s, "\n```\n$1\n```\n")
	s = reCode.ReplaceAllString(s, "`$1`")

	s = reBlockquote.ReplaceAllStringFunc(s, func(match string) string {
		inner := reBlockquote.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		var quoted []string
		for _, line := range strings.Split(strings.TrimSpace(inner[1]), "\n") {
			quoted = append(quoted, "> "+strings.TrimSpace(line))
		}
		return "\n" + strings.Join(quoted, "\n") + "\n"
	})

	s = reAnchor.ReplaceAllString(s, "[$2]($1)")
	s = reImgAlt.ReplaceAllString(s, "![$1]")
	s = reStrong.ReplaceAllString(s, "**$1**")
	s = reEm.ReplaceAllString(s, "*$1*")
	s = reParagraph.ReplaceAllString(s, "\n$1\n")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reListItem.ReplaceAllString(s, "\n- $1")
	s = reAnyTag.ReplaceAllString(s, "")

	s = decodeHTMLEntities(s)
	s = reMultiNL.ReplaceAllString(s, "\n\n")
	s = reMultiSP.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// htmlToText extracts plain text, keeping paragraph and list breaks.
func htmlToText(html string) string {
	s := rePageHeader.ReplaceAllString(stripChrome(html), "")

	s = reParagraph.ReplaceAllString(s, "\n$1\n")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reListItem.ReplaceAllString(s, "\n- $1")
	s = reAnyTag.ReplaceAllString(s, "")

	s = decodeHTMLEntities(s)
	s = reMultiSP.ReplaceAllString(s, " ")
	s = reMultiNL.ReplaceAllString(s, "\n\n")

	var clean []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

var (
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCodeRe    = regexp.MustCompile("`[^`]+`")
	mdImageRe   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// markdownToText strips markdown formatting for text mode.
func markdownToText(md string) string {
	s := mdHeadingRe.ReplaceAllString(md, "")
	s = strings.NewReplacer("**", "", "__", "").Replace(s)
	s = mdCodeRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Trim(m, "`")
	})
	s = mdImageRe.ReplaceAllString(s, "$1")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = reMultiNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var htmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
	"&mdash;", "—",
	"&ndash;", "–",
	"&laquo;", "«",
	"&raquo;", "»",
	"&bull;", "•",
	"&hellip;", "...",
	"&copy;", "(c)",
	"&reg;", "(R)",
	"&trade;", "(TM)",
)

func decodeHTMLEntities(s string) string {
	return htmlEntityReplacer.Replace(s)
}
