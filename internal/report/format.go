package report

import (
	"fmt"
	"html"
	"strings"
)

// Format is an output rendering of a report.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatText     Format = "text"
)

const dateLayout = "1/2/2006"

const htmlStyle = `    body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
    h1 { color: #2c3e50; }
    h2 { color: #34495e; margin-top: 30px; }
    h3 { color: #7f8c8d; }
    .metadata { background: #ecf0f1; padding: 15px; border-radius: 5px; }
    .visualization { background: #f8f9fa; padding: 10px; margin: 10px 0; border-left: 3px solid #3498db; }
`

// Render writes r in the requested format. Anything other than markdown or
// html renders as plain text.
func Render(r *Report, f Format) string {
	switch f {
	case FormatMarkdown:
		return renderMarkdown(r)
	case FormatHTML:
		return renderHTML(r)
	default:
		return renderText(r)
	}
}

func renderMarkdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	fmt.Fprintf(&b, "*Generated: %s*\n\n", r.GeneratedAt.Format(dateLayout))
	b.WriteString("---\n\n")
	for _, s := range r.Sections {
		markdownSection(&b, s, 1)
	}
	b.WriteString("\n---\n\n")
	b.WriteString("## Report Metadata\n\n")
	fmt.Fprintf(&b, "- Word Count: %s\n", grouped(float64(r.Metadata.WordCount)))
	fmt.Fprintf(&b, "- Reading Time: %d minutes\n", r.Metadata.ReadingTime)
	fmt.Fprintf(&b, "- Confidence Score: %.0f%%\n", r.Metadata.Confidence*100)
	fmt.Fprintf(&b, "- Data Sources: %d\n", len(r.Metadata.DataSources))
	return b.String()
}

func markdownSection(b *strings.Builder, s Section, level int) {
	fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", level+1), s.Title)
	fmt.Fprintf(b, "%s\n\n", s.Content)
	for _, v := range s.Visualizations {
		fmt.Fprintf(b, "*[%s: %s]*\n", strings.ToUpper(v.Type), v.Data.Title)
		fmt.Fprintf(b, "*%s*\n\n", v.Caption)
	}
	for _, sub := range s.Subsections {
		markdownSection(b, sub, level+1)
	}
}

func renderHTML(r *Report) string {
	var b strings.Builder
	title := html.EscapeString(r.Title)
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", title)
	fmt.Fprintf(&b, "  <style>\n%s  </style>\n", htmlStyle)
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "  <h1>%s</h1>\n", title)
	fmt.Fprintf(&b, "  <p><em>Generated: %s</em></p>\n  <hr>\n", r.GeneratedAt.Format(dateLayout))
	for _, s := range r.Sections {
		htmlSection(&b, s)
	}
	b.WriteString("  <hr>\n  <div class=\"metadata\">\n    <h2>Report Metadata</h2>\n    <ul>\n")
	fmt.Fprintf(&b, "      <li>Word Count: %s</li>\n", grouped(float64(r.Metadata.WordCount)))
	fmt.Fprintf(&b, "      <li>Reading Time: %d minutes</li>\n", r.Metadata.ReadingTime)
	fmt.Fprintf(&b, "      <li>Confidence Score: %.0f%%</li>\n", r.Metadata.Confidence*100)
	b.WriteString("    </ul>\n  </div>\n</body>\n</html>")
	return b.String()
}

// htmlSection turns blank-line separated paragraphs into <p> elements and
// paragraphs of "- " lines into lists.
func htmlSection(b *strings.Builder, s Section) {
	fmt.Fprintf(b, "<h2>%s</h2>\n", html.EscapeString(s.Title))
	for _, para := range strings.Split(s.Content, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		if !strings.HasPrefix(para, "- ") {
			fmt.Fprintf(b, "<p>%s</p>\n", html.EscapeString(para))
			continue
		}
		b.WriteString("<ul>\n")
		for _, line := range strings.Split(para, "\n") {
			if item, ok := strings.CutPrefix(line, "- "); ok {
				fmt.Fprintf(b, "  <li>%s</li>\n", html.EscapeString(item))
			}
		}
		b.WriteString("</ul>\n")
	}
	for _, v := range s.Visualizations {
		b.WriteString("<div class=\"visualization\">\n")
		fmt.Fprintf(b, "  <strong>%s: %s</strong><br>\n", strings.ToUpper(v.Type), html.EscapeString(v.Data.Title))
		fmt.Fprintf(b, "  <em>%s</em>\n", html.EscapeString(v.Caption))
		b.WriteString("</div>\n")
	}
}

func renderText(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", r.Title, strings.Repeat("=", len(r.Title)))
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(dateLayout))
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "%s\n%s\n\n", s.Title, strings.Repeat("-", len(s.Title)))
		fmt.Fprintf(&b, "%s\n\n", s.Content)
	}
	return b.String()
}
