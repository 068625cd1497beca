package research

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// PageContent is the readable content extracted from one web page.
type PageContent struct {
	Title    string
	Markdown string
}

// Converter turns raw page HTML into readable markdown. Readability strips
// boilerplate first; the remaining article HTML is converted to
// GitHub-flavored markdown.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a page converter.
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Converter{converter: converter}
}

// Convert extracts the readable article from page HTML and renders it as
// markdown.
func (c *Converter) Convert(pageHTML []byte, pageURL string) (*PageContent, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(pageHTML), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("extract readable content: %w", err)
	}

	markdown, err := c.converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = cleanMarkdown(markdown)

	title := article.Title
	if title == "" {
		title = extractHTMLTitle(pageHTML)
	}

	return &PageContent{Title: title, Markdown: markdown}, nil
}

// extractHTMLTitle pulls the <title> element from raw HTML.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func cleanMarkdown(markdown string) string {
	markdown = excessiveLinesRe.ReplaceAllString(markdown, "\n\n\n")
	return strings.TrimSpace(markdown)
}
