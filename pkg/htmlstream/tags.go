package htmlstream

import "strings"

// isNameBoundary reports whether b may follow a tag name inside a tag.
func isNameBoundary(b byte) bool {
	switch b {
	case '>', ' ', '\t', '\n', '\r', '\f', '/':
		return true
	}
	return false
}

// openTagAt reports whether s holds an opening tag named name at offset i.
// A name cut off by the end of s counts as an opening tag: the rest of it has
// not arrived yet.
func openTagAt(s string, i int, name string) bool {
	if !strings.HasPrefix(s[i:], "<"+name) {
		return false
	}
	end := i + 1 + len(name)
	return end == len(s) || isNameBoundary(s[end])
}

// closeTagEnd returns the offset just past the closing tag named name starting
// at i, or -1 if there is no complete closing tag there.
func closeTagEnd(s string, i int, name string) int {
	if !strings.HasPrefix(s[i:], "</"+name) {
		return -1
	}
	j := i + 2 + len(name)
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
		j++
	}
	if j < len(s) && s[j] == '>' {
		return j + 1
	}
	return -1
}

// indexOpenTag returns the offset of the first opening tag named name, or -1.
func indexOpenTag(s, name string) int {
	marker := "<" + name
	for from := 0; from < len(s); {
		k := strings.Index(s[from:], marker)
		if k < 0 {
			return -1
		}
		if openTagAt(s, from+k, name) {
			return from + k
		}
		from += k + 1
	}
	return -1
}

// tagStats summarises the opening and closing tags of one element name within
// a region of text.
type tagStats struct {
	opens     int
	closes    int
	unclosed  int // offset of the earliest opening tag still unclosed, -1 if none
	lastClose int // offset just past the last closing tag, -1 if none
}

func scanTags(s, name string) tagStats {
	st := tagStats{unclosed: -1, lastClose: -1}
	var open []int
	for i := strings.IndexByte(s, '<'); i >= 0; {
		if openTagAt(s, i, name) {
			st.opens++
			open = append(open, i)
		} else if end := closeTagEnd(s, i, name); end >= 0 {
			st.closes++
			st.lastClose = end
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
		next := strings.IndexByte(s[i+1:], '<')
		if next < 0 {
			break
		}
		i += next + 1
	}
	if len(open) > 0 {
		st.unclosed = open[0]
	}
	return st
}
