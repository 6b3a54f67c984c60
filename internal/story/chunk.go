package story

import "unicode"

// Split breaks text into chunks of at most limit runes. A chunk preferably
// ends right after a line break inside its window, otherwise right before
// one, otherwise at the limit. No chunk is whitespace-only, since chat
// platforms refuse blank messages. Concatenating the chunks yields text
// unchanged unless it holds a whitespace run too long to attach to any
// chunk; such runs are dropped. Blank text yields no chunks.
func Split(text string, limit int) []string {
	runes := []rune(text)
	if leadingSpace(runes) == len(runes) {
		return nil
	}
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := chooseCut(runes, limit)
		if cut == 0 {
			runes = runes[leadingSpace(runes):]
			continue
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if leadingSpace(runes) < len(runes) {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// chooseCut returns the length of the next chunk of runes, which is longer
// than limit. It returns 0 when the whole window is whitespace.
func chooseCut(runes []rune, limit int) int {
	first := leadingSpace(runes)
	if first >= limit {
		return 0
	}

	// A cut is clean when neither side is blank and the next window still
	// reaches non-whitespace.
	clean := func(cut int) bool {
		if cut <= first {
			return false
		}
		rest := runes[cut:]
		lead := leadingSpace(rest)
		if lead == len(rest) {
			return false
		}
		return len(rest) <= limit || lead < limit
	}

	for cut := limit; cut > first; cut-- {
		if runes[cut-1] == '\n' && clean(cut) {
			return cut
		}
	}
	for cut := limit; cut > first; cut-- {
		if runes[cut] == '\n' && clean(cut) {
			return cut
		}
	}
	for cut := limit; cut > first; cut-- {
		if clean(cut) {
			return cut
		}
	}
	return limit
}

func leadingSpace(runes []rune) int {
	for i, r := range runes {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return len(runes)
}
