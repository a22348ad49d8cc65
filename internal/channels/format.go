package channels

import "strings"

// SplitMessage breaks content into chunks of at most limit bytes,
// preferring newline boundaries. A single line longer than the limit
// is hard-split. Concatenating the returned chunks reproduces the
// input exactly.
func SplitMessage(content string, limit int) []string {
	if limit <= 0 || len(content) <= limit {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	rest := content
	for len(rest) > 0 {
		nl := strings.IndexByte(rest, '\n')
		var line string
		if nl >= 0 {
			line = rest[:nl+1] // keep the newline so joins are lossless
			rest = rest[nl+1:]
		} else {
			line = rest
			rest = ""
		}

		// Hard-split a single over-long line.
		for len(line) > limit {
			flush()
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}

		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}

// FormatTelegram translates common markdown to Telegram's legacy
// Markdown dialect: "**bold**" becomes "*bold*" and heading markers
// are stripped. Fenced code blocks pass through verbatim.
func FormatTelegram(content string) string {
	return mapOutsideCodeBlocks(content, func(segment string) string {
		segment = strings.ReplaceAll(segment, "**", "*")
		return stripHeadingMarkers(segment)
	})
}

// mapOutsideCodeBlocks applies f to every region outside ``` fences,
// leaving the fenced regions byte-identical.
func mapOutsideCodeBlocks(content string, f func(string) string) string {
	var sb strings.Builder
	rest := content
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			sb.WriteString(f(rest))
			return sb.String()
		}
		sb.WriteString(f(rest[:open]))

		closing := strings.Index(rest[open+3:], "```")
		if closing < 0 {
			// Unterminated fence: leave the remainder untouched.
			sb.WriteString(rest[open:])
			return sb.String()
		}
		end := open + 3 + closing + 3
		sb.WriteString(rest[open:end])
		rest = rest[end:]
	}
}

// stripHeadingMarkers removes leading "#"s from heading lines, keeping
// the heading text.
func stripHeadingMarkers(segment string) string {
	lines := strings.Split(segment, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		j := 0
		for j < len(trimmed) && trimmed[j] == '#' {
			j++
		}
		if j > 0 && j <= 6 && j < len(trimmed) && trimmed[j] == ' ' {
			lines[i] = trimmed[j+1:]
		}
	}
	return strings.Join(lines, "\n")
}
