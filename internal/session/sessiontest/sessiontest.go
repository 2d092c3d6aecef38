// Package sessiontest provides a scripted session.Session for tests.
package sessiontest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fetch404/internal/fault"
	"fetch404/internal/rotation"
	"fetch404/internal/session"

	"github.com/PuerkitoBio/goquery"
)

// Calls counts the invocations of each session verb.
type Calls struct {
	Navigate int
	Wait     int
	Evaluate int
	LoadMore int
	Release  int
}

// Session renders Pages[0] on navigation and moves to the next page on every
// TriggerLoadMore, staying on the last one once the script runs out.
type Session struct {
	Pages []string
	// Item counts raw items, defaults to ".timeline-item:not(.show-more)".
	Item string

	NavigateErr error
	LoadMoreErr error

	Calls Calls

	current int
	doc     *goquery.Document
	address string
}

func (s *Session) load(i int) error {
	if i >= len(s.Pages) {
		return fmt.Errorf("no page %d scripted", i)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.Pages[i]))
	if err != nil {
		return err
	}
	s.current = i
	s.doc = doc
	return nil
}

func (s *Session) Navigate(ctx context.Context, address string, budget time.Duration) error {
	s.Calls.Navigate++
	s.address = address
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	return s.load(0)
}

func (s *Session) WaitForAnyOf(ctx context.Context, markers []string, budget time.Duration) (int, error) {
	s.Calls.Wait++
	if s.doc == nil {
		return -1, fault.New(fault.SourceError, "nothing rendered yet")
	}
	for i, marker := range markers {
		if s.doc.Find(marker).Length() > 0 {
			return i, nil
		}
	}
	return -1, fault.New(fault.SelectorTimeout, "none of %v appeared within %s", markers, budget)
}

func (s *Session) Evaluate(ctx context.Context, fn func(root *goquery.Selection) error) error {
	s.Calls.Evaluate++
	if s.doc == nil {
		return fault.New(fault.SourceError, "nothing rendered yet")
	}
	return session.Guard(s.doc.Selection, fn)
}

func (s *Session) ItemCount() int {
	if s.doc == nil {
		return 0
	}
	item := s.Item
	if item == "" {
		item = ".timeline-item:not(.show-more)"
	}
	return s.doc.Find(item).Length()
}

func (s *Session) TriggerLoadMore(ctx context.Context) (bool, error) {
	s.Calls.LoadMore++
	if s.LoadMoreErr != nil {
		return false, s.LoadMoreErr
	}
	before := s.ItemCount()
	if s.current+1 < len(s.Pages) {
		if err := s.load(s.current + 1); err != nil {
			return false, err
		}
	}
	return s.ItemCount() != before, nil
}

func (s *Session) Address() string {
	return s.address
}

func (s *Session) Release() error {
	s.Calls.Release++
	return nil
}

// Factory hands out the scripted session of each mirror, mirrors without one
// fail to acquire.
type Factory struct {
	Sessions map[rotation.Endpoint]*Session
	Acquired []rotation.Endpoint
}

func (f *Factory) Acquire(ctx context.Context, endpoint rotation.Endpoint) (session.Session, error) {
	f.Acquired = append(f.Acquired, endpoint)
	s, ok := f.Sessions[endpoint]
	if !ok {
		return nil, fault.New(fault.SourceError, "%s is unreachable", endpoint)
	}
	return s, nil
}

// Timeline renders a minimal timeline page holding one post per id.
func Timeline(ids ...string) string {
	var out strings.Builder
	out.WriteString(`<html><body><div class="timeline">`)
	for _, id := range ids {
		fmt.Fprintf(&out, `
			<div class="timeline-item">
				<a class="tweet-link" href="/user/status/%[1]s#m"></a>
				<a class="fullname" href="/user">User</a>
				<a class="username" href="/user">@user</a>
				<div class="tweet-content">post %[1]s</div>
			</div>`, id)
	}
	out.WriteString(`<div class="show-more"><a href="?cursor=next">Load more</a></div></div></body></html>`)
	return out.String()
}
