// Package feed turns a rendered result-feed snapshot into ordered entries.
package feed

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/maprank/models"
	"golang.org/x/net/html"
)

// Selectors locate the parts of a result feed in rendered markup.
type Selectors struct {
	// Item matches one element per feed entry, in document order.
	Item string `yaml:"item"`

	// Ad matches the sponsored marker inside an entry.
	Ad string `yaml:"ad"`

	// Name matches the display-name element inside an organic entry.
	Name string `yaml:"name"`
}

// DefaultSelectors match the place list rendered inside the map search frame.
var DefaultSelectors = Selectors{
	Item: "div.Ryr1F#_pcmap_list_scroll_container > ul > li",
	Ad:   ".gU6bV._DHlh",
	Name: ".place_bluelink.tWIhh > span.O_Uah",
}

// Validate reports the first selector that is empty or does not compile.
func (s Selectors) Validate() error {
	_, err := NewParser(s)
	return err
}

// Parser extracts entries from snapshots. It keeps no state between calls and
// is safe for concurrent use.
type Parser struct {
	item cascadia.Selector
	ad   cascadia.Selector
	name cascadia.Selector
}

// NewParser compiles the selectors once.
func NewParser(sel Selectors) (*Parser, error) {
	item, err := compile("item", sel.Item)
	if err != nil {
		return nil, err
	}
	ad, err := compile("ad", sel.Ad)
	if err != nil {
		return nil, err
	}
	name, err := compile("name", sel.Name)
	if err != nil {
		return nil, err
	}
	return &Parser{item: item, ad: ad, name: name}, nil
}

func compile(role, selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("feed: %s selector is empty", role)
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("feed: %s selector %q: %w", role, selector, err)
	}
	return s, nil
}

// Page is the parse result of one snapshot.
type Page struct {
	// Entries are in document order with Position 1..len(Entries).
	Entries []models.Entry

	// Anomalies counts organic entries without a usable display name.
	Anomalies int
}

// Organic returns the number of non-sponsored entries.
func (p *Page) Organic() int {
	n := 0
	for _, e := range p.Entries {
		if !e.Sponsored {
			n++
		}
	}
	return n
}

// Parse extracts the visible entries from markup. A snapshot with no
// matching entries yields an empty page, not an error.
func (p *Parser) Parse(markup string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, models.NewRankError(models.ErrCodeParseAnomaly, "snapshot is not parseable markup", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	items := doc.FindMatcher(p.item)
	page := &Page{Entries: make([]models.Entry, 0, items.Length())}

	items.Each(func(i int, s *goquery.Selection) {
		e := models.Entry{Position: i + 1}
		if s.FindMatcher(p.ad).Length() > 0 {
			e.Sponsored = true
			page.Entries = append(page.Entries, e)
			return
		}

		nameSel := s.FindMatcher(p.name).First()
		if text := strings.TrimSpace(nameSel.Text()); nameSel.Length() > 0 && text != "" {
			e.Identity = text
			e.HasIdentity = true
		} else {
			page.Anomalies++
		}
		page.Entries = append(page.Entries, e)
	})

	return page, nil
}

// FirstMatch returns the first organic entry whose identity equals target.
func (p *Page) FirstMatch(target string) (models.Entry, bool) {
	for _, e := range p.Entries {
		if e.Matches(target) {
			return e, true
		}
	}
	return models.Entry{}, false
}
