// Package yamlutil splits the multi-document output of helm template.
package yamlutil

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// docSeparator matches a line holding only "---" and optional whitespace.
var docSeparator = regexp.MustCompile(`(?m)^---\s*$`)

// sourceHeader matches the "# Source: <path>" line helm writes above every
// rendered document.
var sourceHeader = regexp.MustCompile(`^#\s*Source:\s*(\S+)\s*$`)

// Document is one YAML document of a rendered manifest stream.
type Document struct {
	// Source is the chart template named by the document's "# Source:"
	// header, or empty.
	Source string
	// Body is the raw document without the leading separator.
	Body []byte
}

// Split splits data at "---" lines. Documents made only of blank lines and
// comments, which helm emits for templates that render nothing, are
// dropped.
func Split(data []byte) []Document {
	parts := docSeparator.Split(string(data), -1)

	docs := make([]Document, 0, len(parts))

	for _, part := range parts {
		source, empty := scan(part)
		if empty {
			continue
		}

		docs = append(docs, Document{Source: source, Body: []byte(part)})
	}

	return docs
}

// scan returns the source header of part and whether part has no content
// besides comments.
func scan(part string) (source string, empty bool) {
	empty = true

	sc := bufio.NewScanner(strings.NewReader(part))
	sc.Buffer(make([]byte, 0, 64*1024), len(part)+1)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())

		switch {
		case len(line) == 0:
		case line[0] == '#':
			if m := sourceHeader.FindSubmatch(line); m != nil && source == "" {
				source = string(m[1])
			}
		default:
			empty = false
		}
	}

	return source, empty
}
