package beatmap

import "sort"

type Bookmark struct {
	Time float64 `json:"time"`
	Name string  `json:"name"`
}

// Bookmarks 按时间排序，同一时间只保留一个
type Bookmarks struct {
	items []Bookmark
}

func NewBookmarks(items []Bookmark) *Bookmarks {
	b := &Bookmarks{}
	for _, it := range items {
		b.Add(it)
	}
	return b
}

func (b *Bookmarks) search(t float64) int {
	return sort.Search(len(b.items), func(i int) bool { return b.items[i].Time >= t })
}

// Add 时间已存在时不做任何事并返回 false
func (b *Bookmarks) Add(bm Bookmark) bool {
	i := b.search(bm.Time)
	if i < len(b.items) && b.items[i].Time == bm.Time {
		return false
	}
	b.items = append(b.items, Bookmark{})
	copy(b.items[i+1:], b.items[i:])
	b.items[i] = bm
	return true
}

func (b *Bookmarks) Remove(t float64) (Bookmark, bool) {
	i := b.search(t)
	if i >= len(b.items) || b.items[i].Time != t {
		return Bookmark{}, false
	}
	bm := b.items[i]
	b.items = append(b.items[:i], b.items[i+1:]...)
	return bm, true
}

func (b *Bookmarks) Get(t float64) (Bookmark, bool) {
	i := b.search(t)
	if i >= len(b.items) || b.items[i].Time != t {
		return Bookmark{}, false
	}
	return b.items[i], true
}

func (b *Bookmarks) All() []Bookmark {
	out := make([]Bookmark, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Bookmarks) Len() int { return len(b.items) }
