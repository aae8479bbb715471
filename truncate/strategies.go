package truncate

import "strings"

// truncateEnd removes content from the end until it fits.
func (t *Truncator) truncateEnd(text string, limit int) string {
	target := limit - t.measure(t.suffix)
	if target <= 0 {
		return t.suffix
	}

	runes := []rune(text)
	keep := t.prefixLen(runes, target)
	if keep == 0 {
		return t.suffix
	}

	if t.lineBreak > 0 && t.lineBreak < 1 {
		if nl := lastNewline(runes[:keep]); nl > int(float64(keep)*t.lineBreak) {
			keep = nl
		}
	}

	return string(runes[:keep]) + t.suffix
}

// truncateMiddle removes content from the middle, keeping start and end.
func (t *Truncator) truncateMiddle(text string, limit int) string {
	target := limit - t.measure(t.suffix)
	if target <= 0 {
		return t.suffix
	}

	runes := []rune(text)
	total := len(runes)
	head := t.prefixLen(runes, target/2)
	tail := t.suffixStart(runes, target-target/2)
	if tail < head {
		tail = head
	}

	var sb strings.Builder
	sb.WriteString(string(runes[:head]))
	sb.WriteString(t.suffix)
	if tail < total {
		sb.WriteString(string(runes[tail:]))
	}
	return sb.String()
}

// truncateStart removes content from the start.
func (t *Truncator) truncateStart(text string, limit int) string {
	target := limit - t.measure(t.suffix)
	if target <= 0 {
		return t.suffix
	}

	runes := []rune(text)
	start := t.suffixStart(runes, target)
	if start >= len(runes) {
		return t.suffix
	}
	return t.suffix + string(runes[start:])
}

// prefixLen binary-searches the longest prefix of runes that fits limit.
func (t *Truncator) prefixLen(runes []rune, limit int) int {
	low, high := 0, len(runes)
	for low < high {
		mid := (low + high + 1) / 2
		if t.fits(string(runes[:mid]), limit) {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}

// suffixStart binary-searches the earliest index whose suffix fits limit.
func (t *Truncator) suffixStart(runes []rune, limit int) int {
	low, high := 0, len(runes)
	for low < high {
		mid := (low + high) / 2
		if t.fits(string(runes[mid:]), limit) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
