package calc

import (
	"fmt"
	"sync"
)

// MaxStyles is the number of distinct styles a workbook can hold
const MaxStyles = 64000

// CellStyle is the formatting attached to a cell. only the number format
// affects calculation, through precision-as-displayed and CELL.
type CellStyle struct {
	NumberFormat string
	Bold         bool
	Italic       bool
	FontColor    string
	FillColor    string
	HAlign       string
}

// StyleTable interns cell styles with reference counting. id 0 is
// reserved for the default style and is never stored.
type StyleTable struct {
	mu        sync.RWMutex
	ids       map[CellStyle]uint32
	styles    map[uint32]CellStyle
	formats   map[uint32]*NumberFormat
	refCounts map[uint32]int
	nextID    uint32
}

// NewStyleTable creates an empty style table
func NewStyleTable() *StyleTable {
	return &StyleTable{
		ids:       make(map[CellStyle]uint32),
		styles:    make(map[uint32]CellStyle),
		formats:   make(map[uint32]*NumberFormat),
		refCounts: make(map[uint32]int),
		nextID:    1,
	}
}

// Intern returns the id for a style, adding it on first use. the
// returned id holds no reference; cells take one when they are assigned
// the style.
func (st *StyleTable) Intern(s CellStyle) (uint32, error) {
	if s == (CellStyle{}) {
		return 0, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if id, ok := st.ids[s]; ok {
		return id, nil
	}
	if len(st.styles) >= MaxStyles {
		return 0, NewApplicationError(ResourceExhausted, fmt.Sprintf("style table is full (%d styles)", MaxStyles))
	}
	id := st.nextID
	st.nextID++
	st.ids[s] = id
	st.styles[id] = s
	st.formats[id] = ParseNumberFormat(s.NumberFormat)
	return id, nil
}

// Style returns the style for an id
func (st *StyleTable) Style(id uint32) (CellStyle, bool) {
	if id == 0 {
		return CellStyle{}, true
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.styles[id]
	return s, ok
}

// Format returns the parsed number format of a style, nil for General
func (st *StyleTable) Format(id uint32) *NumberFormat {
	if id == 0 {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	f := st.formats[id]
	if f != nil && f.General {
		return nil
	}
	return f
}

// AddReference records one more cell using the style
func (st *StyleTable) AddReference(id uint32) bool {
	if id == 0 {
		return true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.styles[id]; !ok {
		return false
	}
	st.refCounts[id]++
	return true
}

// RemoveReference drops one cell reference. a style whose count reaches
// zero stays interned so ids handed out earlier remain valid.
func (st *StyleTable) RemoveReference(id uint32) {
	if id == 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.refCounts[id] > 0 {
		st.refCounts[id]--
	}
}

// ReferenceCount returns how many cells use the style
func (st *StyleTable) ReferenceCount(id uint32) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.refCounts[id]
}

// Count returns the number of interned styles, excluding the default
func (st *StyleTable) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.styles)
}
