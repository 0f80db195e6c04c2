// Package sessiontest provides an in-memory session.Session for tests.
package sessiontest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/maprank/session"
)

// Feed scripts what a Session serves for one URL.
type Feed struct {
	// Pages are successive snapshots. Snapshot returns Pages[min(scrolls, len-1)]
	// where scrolls counts ScrollToBottom calls since the last Navigate.
	Pages []string

	// NavErr is returned from Navigate.
	NavErr error

	// ReadyErr is returned from WaitForElement. Use session.ErrTimeout to
	// simulate a feed that never renders.
	ReadyErr error
}

// Session is a scripted session.Session. Feeds are keyed by the exact URL
// passed to Navigate; Default serves any other URL.
type Session struct {
	Feeds   map[string]Feed
	Default Feed

	// Delay is slept (context-aware) inside Snapshot.
	Delay time.Duration

	mu          sync.Mutex
	current     Feed
	scrolls     int
	Navigations []string
	Snapshots   int
	Scrolls     int
	Closed      int
}

var _ session.Session = (*Session)(nil)

// Navigate implements session.Session.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.Navigations = append(s.Navigations, url)
	f, ok := s.Feeds[url]
	if !ok {
		f = s.Default
	}
	s.current = f
	s.scrolls = 0
	return f.NavErr
}

// WaitForElement implements session.Session.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.current.ReadyErr
}

// Snapshot implements session.Session.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.Snapshots++
	if len(s.current.Pages) == 0 {
		return "", nil
	}
	return s.current.Pages[min(s.scrolls, len(s.current.Pages)-1)], nil
}

// ScrollToBottom implements session.Session.
func (s *Session) ScrollToBottom(ctx context.Context, containerSelector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.scrolls++
	s.Scrolls++
	return nil
}

// Close implements session.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
	return nil
}

// Opener hands out Session, or fails with Err.
type Opener struct {
	Session *Session
	Err     error

	mu    sync.Mutex
	Opens int
}

// Open implements session.Opener.
func (o *Opener) Open(ctx context.Context) (session.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Opens++
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Session, nil
}

// Item describes one entry for Markup.
type Item struct {
	Name   string
	Ad     bool
	NoName bool
}

// Organic returns a plain entry named name.
func Organic(name string) Item { return Item{Name: name} }

// Ad returns a sponsored entry.
func Ad(name string) Item { return Item{Name: name, Ad: true} }

// Markup renders items as a feed matching feed.DefaultSelectors.
func Markup(items ...Item) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="Ryr1F" id="_pcmap_list_scroll_container"><ul>`)
	for _, it := range items {
		b.WriteString("<li>")
		if it.Ad {
			b.WriteString(`<div class="gU6bV _DHlh">광고</div>`)
		}
		if !it.NoName {
			fmt.Fprintf(&b, `<a class="place_bluelink tWIhh"><span class="O_Uah">%s</span></a>`, it.Name)
		}
		b.WriteString("</li>")
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

// Names is shorthand for Markup of organic entries.
func Names(names ...string) string {
	items := make([]Item, len(names))
	for i, n := range names {
		items[i] = Organic(n)
	}
	return Markup(items...)
}
