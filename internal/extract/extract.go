// Package extract pulls the question title and top answer body out of a
// Stack Overflow question page.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var (
	// ErrMissingTitle is returned when the page has no question title node.
	ErrMissingTitle = errors.New("extract: question title not found")
	// ErrMissingAnswerBody is returned when the page has no answer body node.
	ErrMissingAnswerBody = errors.New("extract: answer body not found")
)

// Page is the extracted text content of a question page.
type Page struct {
	QuestionTitle string
	AnswerBody    string
}

// Extract parses pageHTML and locates the question title (the h1 carrying
// itemprop="name") and the first answer's prose body. Returned strings are
// whitespace-collapsed plain text.
func Extract(pageHTML string) (Page, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return Page{}, fmt.Errorf("extract: parse html: %w", err)
	}

	titleNode := findTitle(doc)
	if titleNode == nil {
		return Page{}, ErrMissingTitle
	}
	title := textContent(titleNode)
	if title == "" {
		return Page{}, ErrMissingTitle
	}

	answerNode := findAnswer(doc)
	if answerNode == nil {
		return Page{}, ErrMissingAnswerBody
	}
	answer := textContent(answerNode)
	if answer == "" {
		return Page{}, ErrMissingAnswerBody
	}

	return Page{QuestionTitle: title, AnswerBody: answer}, nil
}

// findTitle returns the first h1 element marked with itemprop="name".
func findTitle(doc *html.Node) *html.Node {
	return findNode(doc, func(n *html.Node) bool {
		return n.Data == "h1" && attrValue(n, "itemprop") == "name"
	})
}

// findAnswer returns the prose container of the first rendered answer: the
// first element whose class list contains "answer", narrowed to its
// post-body child when one exists.
func findAnswer(doc *html.Node) *html.Node {
	answer := findNode(doc, func(n *html.Node) bool {
		return hasClass(n, "answer")
	})
	if answer == nil {
		return nil
	}
	body := findNode(answer, func(n *html.Node) bool {
		return hasClass(n, "js-post-body") || hasClass(n, "s-prose")
	})
	if body != nil {
		return body
	}
	return answer
}

// findNode walks the tree depth-first and returns the first element node
// matching the predicate.
func findNode(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent collects the text nodes beneath n, skipping script and style
// blocks, and collapses all whitespace runs to single spaces.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
