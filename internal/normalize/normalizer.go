// Package normalize turns rendered product pages into the plain text fed to extractors.
package normalize

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

// DefaultMaxChars is the default text budget handed to an extractor.
const DefaultMaxChars = 15000

// strippedTags never carry product content.
const strippedTags = "script, style, noscript, footer, nav"

// Normalizer strips non-content markup and collapses a page to newline-separated text.
type Normalizer struct {
	maxChars int
	logger   logger.Logger
}

// New creates a Normalizer. A maxChars <= 0 selects DefaultMaxChars.
func New(maxChars int, log logger.Logger) *Normalizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Normalizer{maxChars: maxChars, logger: log}
}

// Normalize returns the visible text of rawHTML, one text block per line,
// blank lines removed, hard-truncated to the character budget.
func (n *Normalizer) Normalize(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find(strippedTags).Remove()

	var lines []string
	for _, root := range doc.Nodes {
		collectText(root, &lines)
	}
	text := strings.Join(lines, "\n")

	// Truncate on rune boundaries so multi-byte prices ("₹", "€") stay intact.
	runes := []rune(text)
	if len(runes) > n.maxChars {
		if n.logger != nil {
			n.logger.Debug("truncating normalized content",
				logger.Int("from_chars", len(runes)),
				logger.Int("to_chars", n.maxChars))
		}
		text = string(runes[:n.maxChars])
	}

	return text, nil
}

// collectText walks the tree in document order and appends every non-blank
// line of every text node.
func collectText(node *html.Node, lines *[]string) {
	if node.Type == html.TextNode {
		for _, line := range strings.Split(node.Data, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				*lines = append(*lines, trimmed)
			}
		}
		return
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}
