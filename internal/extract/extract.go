package extract

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func nodeText(node *html.Node, out *strings.Builder) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		out.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		nodeText(child, out)
	}
}

// Clean returns the visible text of the selection with non printable runes
// removed and runs of whitespace collapsed.
func Clean(sel *goquery.Selection) string {
	var raw strings.Builder
	for _, n := range sel.Nodes {
		nodeText(n, &raw)
	}

	var printable strings.Builder
	for _, c := range raw.String() {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			printable.WriteRune(c)
		}
	}
	text := strings.TrimSpace(printable.String())
	return innerWhitespace.ReplaceAllString(text, " ")
}

// Text returns the cleaned text of the first element matching selector, nil
// when nothing matches.
func Text(sel *goquery.Selection, selector string) *string {
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	text := Clean(found)
	return &text
}

// TextOr is Text with a fallback for missing or empty elements.
func TextOr(sel *goquery.Selection, selector, fallback string) string {
	text := Text(sel, selector)
	if text == nil || *text == "" {
		return fallback
	}
	return *text
}

// Attr returns the attribute of the first element matching selector, nil when
// the element or the attribute is missing.
func Attr(sel *goquery.Selection, selector, attr string) *string {
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	value, ok := found.Attr(attr)
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	return &value
}

// Fault describes an element that could not be extracted.
type Fault struct {
	Index int
	Err   error
}

func (f Fault) Error() string {
	return fmt.Sprintf("item %d: %s", f.Index, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// Each calls fn for every element of sel. Elements that fn rejects are
// skipped, elements whose extraction panics are skipped and reported as faults.
func Each[T any](sel *goquery.Selection, fn func(item *goquery.Selection) (T, bool)) ([]T, []error) {
	var out []T
	var faults []error
	sel.Each(func(i int, item *goquery.Selection) {
		value, ok, err := guard(item, fn)
		if err != nil {
			faults = append(faults, Fault{Index: i, Err: err})
			return
		}
		if ok {
			out = append(out, value)
		}
	})
	return out, faults
}

func guard[T any](item *goquery.Selection, fn func(item *goquery.Selection) (T, bool)) (value T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	value, ok = fn(item)
	return value, ok, nil
}
