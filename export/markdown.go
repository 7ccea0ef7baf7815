package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
)

// Markdown writes b as a Markdown document.
func Markdown(w io.Writer, b batch.Batch, lang catalog.Language, opts ...Option) error {
	doc := newDocument(b, lang, opts)
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# %s\n", doc.Title)
	for _, p := range doc.Problems {
		fmt.Fprintf(bw, "\n## Problem %d: %s\n\n", p.Number, p.Name)
		bw.WriteString("#### Source Code:\n\n")
		writeFence(bw, doc.Language, p.Source)
		bw.WriteString("\n#### Execution Output:\n\n")
		writeFence(bw, "text", p.Output)
	}
	return bw.Flush()
}

// writeFence picks a backtick fence longer than any run inside body.
func writeFence(w *bufio.Writer, info, body string) {
	fence := strings.Repeat("`", max(3, longestRun(body, '`')+1))
	body = strings.TrimSuffix(body, "\n")
	fmt.Fprintf(w, "%s%s\n%s\n%s\n", fence, info, body, fence)
}

func longestRun(s string, c rune) int {
	longest, run := 0, 0
	for _, r := range s {
		if r != c {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return longest
}
