package loader

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

var (
	htmlSpaceRuns = regexp.MustCompile(`[ \t\f\v]+`)
	htmlBlankRuns = regexp.MustCompile(`\n\s*\n+`)
)

func loadHTMLFile(_ context.Context, path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseHTML(f, path)
}

func parseHTML(r io.Reader, source string) ([]domain.Document, error) {
	title, text, err := extractHTML(r)
	if err != nil {
		return nil, err
	}
	docs := singleDocument(text, source)
	if len(docs) == 1 && title != "" {
		docs[0].Metadata[domain.MetaTitle] = title
	}
	return docs, nil
}

// extractHTML returns the document title and its visible text with block
// elements separated by newlines.
func extractHTML(r io.Reader) (string, string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var (
		title string
		sb    strings.Builder
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if title == "" {
					title = strings.TrimSpace(nodeText(n))
				}
				return
			case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Head:
				if n.DataAtom == atom.Head {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.DataAtom == atom.Title {
							walk(c)
						}
					}
				}
				return
			case atom.Br:
				sb.WriteByte('\n')
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			sb.WriteByte('\n')
		}
	}
	walk(root)

	text := htmlSpaceRuns.ReplaceAllString(sb.String(), " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = htmlBlankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return title, strings.TrimSpace(text), nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Main, atom.Aside, atom.Nav,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Table, atom.Blockquote, atom.Pre, atom.Hr, atom.Dd, atom.Dt:
		return true
	}
	return false
}
