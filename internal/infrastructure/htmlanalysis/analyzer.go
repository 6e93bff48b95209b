// Package htmlanalysis extracts headings and a markdown body from raw HTML.
package htmlanalysis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

var (
	markdownImage = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

type Analyzer struct {
	now func() time.Time
}

func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

func (a *Analyzer) Analyze(rawHTML string) (domain.HTMLAnalysis, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return domain.HTMLAnalysis{}, domain.WrapError(domain.ErrInvalidInput, "analyze html", fmt.Errorf("empty document"))
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return domain.HTMLAnalysis{}, fmt.Errorf("parse html: %w", err)
	}

	analysis := domain.HTMLAnalysis{
		H1: []string{},
		H2: []string{},
		H3: []string{},
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				if analysis.Title == "" {
					analysis.Title = textContent(n)
				}
				return
			case "h1", "h2", "h3":
				if text := textContent(n); text != "" {
					switch n.Data {
					case "h1":
						analysis.H1 = append(analysis.H1, text)
					case "h2":
						analysis.H2 = append(analysis.H2, text)
					default:
						analysis.H3 = append(analysis.H3, text)
					}
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	analysis.H1Consistency = H1Consistent(analysis.Title, analysis.H1)

	markdown, err := htmltomarkdown.ConvertString(rawHTML)
	if err != nil {
		return domain.HTMLAnalysis{}, fmt.Errorf("convert html to markdown: %w", err)
	}
	analysis.Markdown = cleanMarkdown(markdown)
	analysis.AnalyzedAt = a.now().UTC()
	return analysis, nil
}

// H1Consistent reports whether every H1 and the title contain one another,
// ignoring case. A page without H1s is consistent; one with H1s but no title is not.
func H1Consistent(title string, h1s []string) bool {
	if len(h1s) == 0 {
		return true
	}
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return false
	}
	for _, h := range h1s {
		h = strings.ToLower(strings.TrimSpace(h))
		if !strings.Contains(t, h) && !strings.Contains(h, t) {
			return false
		}
	}
	return true
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func cleanMarkdown(markdown string) string {
	markdown = markdownImage.ReplaceAllString(markdown, "")
	markdown = blankRuns.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}
