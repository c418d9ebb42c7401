package registry

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=../store_mocks_test.go -package=bulletins . Store

type PageID string

const (
	Page1 PageID = "page1"
	Page2 PageID = "page2"
	Page3 PageID = "page3"
)

// Pages lists every bulletin page slot, in display order
var Pages = []PageID{Page1, Page2, Page3}

func ParsePageID(s string) (PageID, bool) {
	p := PageID(s)
	return p, p.Valid()
}

func (p PageID) Valid() bool {
	for _, page := range Pages {
		if p == page {
			return true
		}
	}
	return false
}

// Registry maps a page to the public URL of its current image.
// Keys are always a subset of Pages.
type Registry map[PageID]string

func (r Registry) Clone() Registry {
	c := make(Registry, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Store persists the whole registry document. Save replaces the previous
// document in one step; readers never observe a partial write.
type Store interface {
	Load(ctx context.Context) (Registry, error)
	Save(ctx context.Context, reg Registry) error
}

// fromRaw keeps only known pages with a non-empty URL
func fromRaw(raw map[string]string, source string) Registry {
	reg := make(Registry, len(raw))
	var dropped []string
	for k, v := range raw {
		page, ok := ParsePageID(k)
		if !ok || v == "" {
			dropped = append(dropped, k)
			continue
		}
		reg[page] = v
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		log.Warnf("registry [%s]: dropped unknown or empty entries: %v", source, dropped)
	}
	return reg
}
