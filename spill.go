package calc

// SpillRegion is the block a dynamic array formula occupies. a blocked
// region remembers the rectangle it wanted, so a change to a blocker can
// send the origin back to the scheduler.
type SpillRegion struct {
	Sheet   SheetID
	Origin  CellAddr
	Rect    Rect
	Array   *Array
	Blocked bool

	id uint64
}

func (r *SpillRegion) key() CellAddress {
	return globalAddress(r.Sheet, r.Origin)
}

// spillIndex tracks spill regions by origin and, per sheet, by the rows
// they cover. it is written only between evaluation phases.
type spillIndex struct {
	byOrigin map[CellAddress]*SpillRegion
	bySheet  map[SheetID]*intervalTree[CellAddress]
	nextID   uint64
}

func newSpillIndex() *spillIndex {
	return &spillIndex{
		byOrigin: make(map[CellAddress]*SpillRegion),
		bySheet:  make(map[SheetID]*intervalTree[CellAddress]),
		nextID:   1,
	}
}

func (si *spillIndex) put(r *SpillRegion) {
	si.remove(r.key())
	r.id = si.nextID
	si.nextID++
	si.byOrigin[r.key()] = r
	tree, ok := si.bySheet[r.Sheet]
	if !ok {
		tree = &intervalTree[CellAddress]{}
		si.bySheet[r.Sheet] = tree
	}
	tree.insert(r.Rect.Start.Row, r.Rect.End.Row, r.id, r.key())
}

func (si *spillIndex) remove(origin CellAddress) (*SpillRegion, bool) {
	r, ok := si.byOrigin[origin]
	if !ok {
		return nil, false
	}
	delete(si.byOrigin, origin)
	if tree := si.bySheet[r.Sheet]; tree != nil {
		tree.remove(r.Rect.Start.Row, r.id)
		if tree.len() == 0 {
			delete(si.bySheet, r.Sheet)
		}
	}
	return r, true
}

// forEachOverlapping calls fn for every region, active or blocked, whose
// rectangle intersects rect
func (si *spillIndex) forEachOverlapping(sheet SheetID, rect Rect, fn func(r *SpillRegion)) {
	tree := si.bySheet[sheet]
	if tree == nil {
		return
	}
	tree.overlap(rect.Start.Row, rect.End.Row, func(origin CellAddress) {
		r := si.byOrigin[origin]
		if _, ok := r.Rect.Intersect(rect); ok {
			fn(r)
		}
	})
}

// activeAt returns the placed region covering addr, origin included
func (si *spillIndex) activeAt(sheet SheetID, addr CellAddr) (*SpillRegion, bool) {
	var found *SpillRegion
	si.forEachOverlapping(sheet, Rect{Start: addr, End: addr}, func(r *SpillRegion) {
		if !r.Blocked {
			found = r
		}
	})
	return found, found != nil
}

// valueAt returns the spilled element shown at a non-origin cell
func (si *spillIndex) valueAt(sheet SheetID, addr CellAddr) (Value, bool) {
	r, ok := si.activeAt(sheet, addr)
	if !ok || r.Origin == addr {
		return nil, false
	}
	return r.Array.At(int(addr.Row-r.Rect.Start.Row), int(addr.Col-r.Rect.Start.Col)), true
}

// rectOf returns the placed rectangle of a spill origin
func (si *spillIndex) rectOf(origin CellAddress) (Rect, bool) {
	r, ok := si.byOrigin[origin]
	if !ok || r.Blocked {
		return Rect{}, false
	}
	return r.Rect, true
}

func (si *spillIndex) count() int {
	return len(si.byOrigin)
}

// spillOutcome tells the scheduler what a placement changed. Rects lists
// areas whose readers must be recomputed and Origins lists spill formulas
// that may now place differently.
type spillOutcome struct {
	Value   Value
	Rects   []Rect
	Origins []CellAddress
}

// placeSpill records an array result at origin. the origin shows the
// first element, or #SPILL! when the block runs off the sheet or any other
// cell of the block holds content or belongs to another placed region.
func (s *Storage) placeSpill(ws *Worksheet, origin CellAddr, arr *Array) spillOutcome {
	sheet := ws.ID()
	key := globalAddress(sheet, origin)
	old := s.spills.byOrigin[key]

	rows, cols := ws.Dimensions()
	region := &SpillRegion{Sheet: sheet, Origin: origin, Array: blanksAsZero(arr)}
	endRow := uint64(origin.Row) + uint64(arr.Rows) - 1
	endCol := uint64(origin.Col) + uint64(arr.Cols) - 1
	if endRow >= uint64(rows) || endCol >= uint64(cols) {
		region.Blocked = true
		endRow = min(endRow, uint64(rows-1))
		endCol = min(endCol, uint64(cols-1))
	}
	region.Rect = Rect{Start: origin, End: CellAddr{Row: uint32(endRow), Col: uint32(endCol)}}
	if !region.Blocked {
		region.Blocked = s.spillBlocked(ws, region.Rect, key)
	}
	s.spills.put(region)

	out := spillOutcome{Value: region.Array.Data[0]}
	if region.Blocked {
		out.Value = NewSpreadsheetError(ErrorCodeSpill, "spill range is not empty")
	}
	if old == nil || old.Rect != region.Rect || old.Blocked != region.Blocked {
		if old != nil {
			out.Rects = append(out.Rects, old.Rect)
			out.Origins = s.blockedOrigins(sheet, old.Rect, key)
		}
		out.Rects = append(out.Rects, region.Rect)
	}
	return out
}

// clearSpill forgets the region anchored at origin
func (s *Storage) clearSpill(sheet SheetID, origin CellAddr) spillOutcome {
	key := globalAddress(sheet, origin)
	old, ok := s.spills.remove(key)
	if !ok {
		return spillOutcome{}
	}
	out := spillOutcome{Origins: s.blockedOrigins(sheet, old.Rect, key)}
	if !old.Blocked {
		out.Rects = []Rect{old.Rect}
	}
	return out
}

// spillBlocked checks the block for stored content and placed regions
func (s *Storage) spillBlocked(ws *Worksheet, rect Rect, self CellAddress) bool {
	blocked := false
	origin := self.Local()
	ws.forEachCell(rect, func(addr CellAddr, c *Cell) bool {
		if addr != origin && hasContent(c) {
			blocked = true
			return false
		}
		return true
	})
	if blocked {
		return true
	}
	s.spills.forEachOverlapping(ws.ID(), rect, func(r *SpillRegion) {
		if !r.Blocked && r.key() != self {
			blocked = true
		}
	})
	return blocked
}

// blockedOrigins lists blocked regions overlapping rect other than self
func (s *Storage) blockedOrigins(sheet SheetID, rect Rect, self CellAddress) []CellAddress {
	var out []CellAddress
	s.spills.forEachOverlapping(sheet, rect, func(r *SpillRegion) {
		if r.Blocked && r.key() != self {
			out = append(out, r.key())
		}
	})
	return out
}

// spillOriginsCovering lists the regions, placed or blocked, whose block
// contains addr without being anchored there. writing to addr changes
// whether they can place.
func (s *Storage) spillOriginsCovering(sheet SheetID, addr CellAddr) []CellAddress {
	var out []CellAddress
	s.spills.forEachOverlapping(sheet, Rect{Start: addr, End: addr}, func(r *SpillRegion) {
		if r.Origin != addr {
			out = append(out, r.key())
		}
	})
	return out
}

// blanksAsZero returns arr with blank elements shown as 0, copying only
// when needed
func blanksAsZero(arr *Array) *Array {
	for i, v := range arr.Data {
		if v != nil {
			continue
		}
		out := &Array{Rows: arr.Rows, Cols: arr.Cols, Data: make([]Value, len(arr.Data))}
		copy(out.Data, arr.Data)
		for j := i; j < len(out.Data); j++ {
			if out.Data[j] == nil {
				out.Data[j] = 0.0
			}
		}
		return out
	}
	return arr
}
