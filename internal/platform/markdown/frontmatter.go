package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const separator = "---\n"

// Split decodes the YAML frontmatter of content into meta and returns the body.
// Content without frontmatter leaves meta untouched.
func Split(content string, meta any) (string, error) {
	if !strings.HasPrefix(content, separator) {
		return content, nil
	}
	rest := strings.TrimPrefix(content, separator)
	end := strings.Index(rest, "\n"+separator)
	if end < 0 {
		return "", fmt.Errorf("invalid frontmatter: missing closing separator")
	}
	if err := yaml.Unmarshal([]byte(rest[:end+1]), meta); err != nil {
		return "", fmt.Errorf("decode frontmatter: %w", err)
	}
	return rest[end+1+len(separator):], nil
}

// Render writes meta as a frontmatter block above body. Struct fields keep declaration order.
func Render(meta any, body string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(separator)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString(separator)
	if body != "" && !strings.HasPrefix(body, "\n") {
		buf.WriteByte('\n')
	}
	buf.WriteString(body)
	return buf.String(), nil
}

// Table renders a pipe table with right-aligned columns. Short rows are padded with empty cells.
func Table(header []string, rows [][]string) string {
	if len(header) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n|")
	for range header {
		b.WriteString("---:|")
	}
	b.WriteByte('\n')
	for _, row := range rows {
		cells := make([]string, len(header))
		copy(cells, row)
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}
