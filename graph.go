package calc

import (
	"slices"
)

// PrecedentKind tells a cell precedent from a range precedent
type PrecedentKind uint8

const (
	PrecedentCell PrecedentKind = iota
	PrecedentRange
)

func (k PrecedentKind) String() string {
	if k == PrecedentRange {
		return "range"
	}
	return "cell"
}

// Precedent is one reference read by a formula. a cell precedent has
// Start == End.
type Precedent struct {
	Kind  PrecedentKind
	Sheet SheetID
	Start CellAddr
	End   CellAddr
}

// Rect returns the area the precedent covers
func (p Precedent) Rect() Rect {
	return Rect{Start: p.Start, End: p.End}
}

// DependencyNode represents a cell in the dependency graph
type DependencyNode struct {
	// address of *THIS* node
	Address CellAddress

	// precedents in the order the formula mentions them
	Precedents []Precedent

	// cell-to-cell dependencies
	CellPrecedents map[CellAddress]*DependencyNode // cells this cell depends on
	CellDependents map[CellAddress]*DependencyNode // cells that depend on this cell

	// range dependencies, kept whole and never expanded into cells
	RangePrecedents map[RangeAddress]struct{}

	// formula is set for formula cells; other nodes exist only as the
	// target of an edge
	Formula bool

	// dirty tracking
	IsDirty bool
}

// rangeBucket groups the formulas observing one exact range
type rangeBucket struct {
	id        uint64
	observers map[CellAddress]struct{}
}

// DependencyGraph manages cell dependencies and calculation order
type DependencyGraph struct {
	nodes          map[CellAddress]*DependencyNode          // all nodes in the graph
	rangeObservers map[RangeAddress]*rangeBucket            // range -> cells that depend on it
	rangeIndex     map[SheetID]*intervalTree[RangeAddress] // observed ranges by row span, per sheet
	dirtySet       map[CellAddress]struct{}                 // cells needing recalculation
	volatileCells  map[CellAddress]struct{}                 // cells with volatile functions (always recalculate)
	nextBucket     uint64

	// spillRect reports the placed spill block of a formula cell, whose
	// readers depend on it without naming it
	spillRect func(CellAddress) (Rect, bool)
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:          make(map[CellAddress]*DependencyNode),
		rangeObservers: make(map[RangeAddress]*rangeBucket),
		rangeIndex:     make(map[SheetID]*intervalTree[RangeAddress]),
		dirtySet:       make(map[CellAddress]struct{}),
		volatileCells:  make(map[CellAddress]struct{}),
		nextBucket:     1,
	}
}

// GetOrCreateNode gets an existing node or creates a new one
func (dg *DependencyGraph) GetOrCreateNode(addr CellAddress) *DependencyNode {
	if node, exists := dg.nodes[addr]; exists {
		return node
	}

	node := &DependencyNode{
		Address:         addr,
		CellPrecedents:  make(map[CellAddress]*DependencyNode),
		CellDependents:  make(map[CellAddress]*DependencyNode),
		RangePrecedents: make(map[RangeAddress]struct{}),
	}
	dg.nodes[addr] = node
	return node
}

// GetNode retrieves a node if it exists
func (dg *DependencyGraph) GetNode(addr CellAddress) (*DependencyNode, bool) {
	node, exists := dg.nodes[addr]
	return node, exists
}

// UpdateCellDependencies replaces the precedents of a formula cell.
// single-cell ranges are stored as cell edges.
func (dg *DependencyGraph) UpdateCellDependencies(addr CellAddress, precedents []Precedent, volatile bool) {
	dg.ClearDependencies(addr)
	node := dg.GetOrCreateNode(addr)
	node.Formula = true
	node.Precedents = slices.Clone(precedents)
	for _, p := range precedents {
		if p.Kind == PrecedentCell || p.Start == p.End {
			dg.AddCellDependency(addr, globalAddress(p.Sheet, p.Start))
			continue
		}
		dg.AddRangeDependency(addr, rangeAddress(p.Sheet, p.Rect()))
	}
	if volatile {
		dg.MarkVolatile(addr)
	} else {
		dg.UnmarkVolatile(addr)
	}
}

// RemoveFormula turns a formula node back into a plain cell node. edges
// from formulas that read the cell are kept.
func (dg *DependencyGraph) RemoveFormula(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	dg.ClearDependencies(addr)
	node.Formula = false
	node.Precedents = nil
	dg.UnmarkVolatile(addr)
	dg.ClearDirty(addr)
	dg.cleanupNodeIfEmpty(addr)
}

// RemoveNode removes a node and all its dependencies
func (dg *DependencyGraph) RemoveNode(addr CellAddress) bool {
	node, exists := dg.nodes[addr]
	if !exists {
		return false
	}

	// remove this node from all its precedents' dependent lists
	for precedentAddr, precedentNode := range node.CellPrecedents {
		delete(precedentNode.CellDependents, addr)
		// clean up precedent node if it has no dependencies
		dg.cleanupNodeIfEmpty(precedentAddr)
	}

	// remove this node from all its dependents' precedent lists. the
	// dependents keep their formulas.
	for _, dependentNode := range node.CellDependents {
		delete(dependentNode.CellPrecedents, addr)
	}

	for rangeAddr := range node.RangePrecedents {
		dg.dropObserver(rangeAddr, addr)
	}

	delete(dg.dirtySet, addr)
	delete(dg.volatileCells, addr)
	delete(dg.nodes, addr)

	return true
}

// cleanupNodeIfEmpty removes a node if it has no dependencies or formula
func (dg *DependencyGraph) cleanupNodeIfEmpty(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}

	// keep node if it has a formula or any dependencies
	if node.Formula ||
		len(node.CellPrecedents) > 0 ||
		len(node.CellDependents) > 0 ||
		len(node.RangePrecedents) > 0 {
		return
	}

	// remove empty node and its dirty flag
	delete(dg.nodes, addr)
	delete(dg.dirtySet, addr)
}

// AddCellDependency adds a cell-to-cell dependency (from depends on to)
func (dg *DependencyGraph) AddCellDependency(from, to CellAddress) {
	fromNode := dg.GetOrCreateNode(from)
	toNode := dg.GetOrCreateNode(to)

	fromNode.CellPrecedents[to] = toNode
	toNode.CellDependents[from] = fromNode
}

// RemoveCellDependency removes a cell-to-cell dependency
func (dg *DependencyGraph) RemoveCellDependency(from, to CellAddress) bool {
	fromNode, fromExists := dg.nodes[from]
	toNode, toExists := dg.nodes[to]

	if !fromExists || !toExists {
		return false
	}

	delete(fromNode.CellPrecedents, to)
	delete(toNode.CellDependents, from)

	dg.cleanupNodeIfEmpty(from)
	dg.cleanupNodeIfEmpty(to)

	return true
}

// AddRangeDependency adds a cell-to-range dependency (from depends on range)
func (dg *DependencyGraph) AddRangeDependency(from CellAddress, rangeAddr RangeAddress) {
	node := dg.GetOrCreateNode(from)
	node.RangePrecedents[rangeAddr] = struct{}{}

	bucket, exists := dg.rangeObservers[rangeAddr]
	if !exists {
		bucket = &rangeBucket{id: dg.nextBucket, observers: make(map[CellAddress]struct{})}
		dg.nextBucket++
		dg.rangeObservers[rangeAddr] = bucket
		tree, ok := dg.rangeIndex[rangeAddr.WorksheetID]
		if !ok {
			tree = &intervalTree[RangeAddress]{}
			dg.rangeIndex[rangeAddr.WorksheetID] = tree
		}
		tree.insert(rangeAddr.StartRow, rangeAddr.EndRow, bucket.id, rangeAddr)
	}
	bucket.observers[from] = struct{}{}
}

// RemoveRangeDependency removes a cell-to-range dependency
func (dg *DependencyGraph) RemoveRangeDependency(from CellAddress, rangeAddr RangeAddress) bool {
	node, exists := dg.nodes[from]
	if !exists {
		return false
	}

	delete(node.RangePrecedents, rangeAddr)
	dg.dropObserver(rangeAddr, from)
	dg.cleanupNodeIfEmpty(from)

	return true
}

// dropObserver removes one observer from a bucket, dropping the bucket and
// its index entry when nobody observes the range any more
func (dg *DependencyGraph) dropObserver(rangeAddr RangeAddress, addr CellAddress) {
	bucket, exists := dg.rangeObservers[rangeAddr]
	if !exists {
		return
	}
	delete(bucket.observers, addr)
	if len(bucket.observers) > 0 {
		return
	}
	delete(dg.rangeObservers, rangeAddr)
	if tree := dg.rangeIndex[rangeAddr.WorksheetID]; tree != nil {
		tree.remove(rangeAddr.StartRow, bucket.id)
		if tree.len() == 0 {
			delete(dg.rangeIndex, rangeAddr.WorksheetID)
		}
	}
}

// ClearDependencies clears all dependencies for a cell
func (dg *DependencyGraph) ClearDependencies(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists {
		return
	}
	node.Precedents = nil

	for precedentAddr := range node.CellPrecedents {
		dg.RemoveCellDependency(addr, precedentAddr)
	}
	for rangeAddr := range node.RangePrecedents {
		dg.RemoveRangeDependency(addr, rangeAddr)
	}
}

// forEachRangeObserver calls fn for every formula observing a range that
// contains addr
func (dg *DependencyGraph) forEachRangeObserver(addr CellAddress, fn func(observer CellAddress)) {
	tree := dg.rangeIndex[addr.WorksheetID]
	if tree == nil {
		return
	}
	tree.stab(addr.Row, func(rangeAddr RangeAddress) {
		if !rangeAddr.Contains(addr) {
			return
		}
		for observer := range dg.rangeObservers[rangeAddr].observers {
			fn(observer)
		}
	})
}

// rectScanLimit is the largest area whose cells are looked up one by one
// when collecting the dependents of a rectangle
const rectScanLimit = 4096

// forEachRectDependent calls fn for formulas reading any cell of rect,
// through a cell edge or an overlapping range. a formula may be reported
// more than once.
func (dg *DependencyGraph) forEachRectDependent(sheet SheetID, rect Rect, fn func(dependent CellAddress)) {
	if tree := dg.rangeIndex[sheet]; tree != nil {
		tree.overlap(rect.Start.Row, rect.End.Row, func(rangeAddr RangeAddress) {
			if _, ok := rangeAddr.Rect().Intersect(rect); !ok {
				return
			}
			for observer := range dg.rangeObservers[rangeAddr].observers {
				fn(observer)
			}
		})
	}
	visit := func(node *DependencyNode) {
		for dependent := range node.CellDependents {
			fn(dependent)
		}
	}
	if rect.Area() <= rectScanLimit {
		eachAddr(rect, func(a CellAddr) {
			if node, ok := dg.nodes[globalAddress(sheet, a)]; ok {
				visit(node)
			}
		})
		return
	}
	for addr, node := range dg.nodes {
		if addr.WorksheetID == sheet && rect.Contains(addr.Local()) {
			visit(node)
		}
	}
}

// forEachDependent calls fn for every formula that reads addr directly:
// cell edges, observed ranges and, for a spilling formula, the readers of
// its spill block
func (dg *DependencyGraph) forEachDependent(addr CellAddress, fn func(dependent CellAddress)) {
	node, exists := dg.nodes[addr]
	if exists {
		for dependent := range node.CellDependents {
			fn(dependent)
		}
	}
	dg.forEachRangeObserver(addr, fn)
	if exists && node.Formula && dg.spillRect != nil {
		if rect, ok := dg.spillRect(addr); ok {
			dg.forEachRectDependent(addr.WorksheetID, rect, func(dependent CellAddress) {
				if dependent != addr {
					fn(dependent)
				}
			})
		}
	}
}

// markOne flags a single formula cell
func (dg *DependencyGraph) markOne(addr CellAddress) {
	node, exists := dg.nodes[addr]
	if !exists || !node.Formula {
		return
	}
	dg.dirtySet[addr] = struct{}{}
	node.IsDirty = true
}

// MarkDirty marks a cell and every formula that transitively depends on
// it as needing recalculation. plain value cells only seed the walk.
func (dg *DependencyGraph) MarkDirty(addr CellAddress) {
	visited := make(map[CellAddress]struct{})
	stack := []CellAddress{addr}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}
		dg.markOne(current)
		dg.forEachDependent(current, func(dependent CellAddress) {
			if _, seen := visited[dependent]; !seen {
				stack = append(stack, dependent)
			}
		})
	}
}

// MarkRectDirty marks the formulas reading any cell of rect, and their
// dependents
func (dg *DependencyGraph) MarkRectDirty(sheet SheetID, rect Rect) {
	var seeds []CellAddress
	dg.forEachRectDependent(sheet, rect, func(dependent CellAddress) {
		seeds = append(seeds, dependent)
	})
	for _, seed := range seeds {
		dg.MarkDirty(seed)
	}
}

// MarkSheetDirty marks every formula on a sheet and everything reading the
// sheet
func (dg *DependencyGraph) MarkSheetDirty(sheet SheetID) {
	var seeds []CellAddress
	for addr, node := range dg.nodes {
		if addr.WorksheetID == sheet {
			seeds = append(seeds, addr)
			continue
		}
		for rangeAddr := range node.RangePrecedents {
			if rangeAddr.WorksheetID == sheet {
				seeds = append(seeds, addr)
				break
			}
		}
	}
	for _, seed := range seeds {
		dg.MarkDirty(seed)
	}
}

// MarkAllFormulasDirty flags every formula cell
func (dg *DependencyGraph) MarkAllFormulasDirty() {
	for addr := range dg.nodes {
		dg.markOne(addr)
	}
}

// FormulaCells returns every formula cell, sorted
func (dg *DependencyGraph) FormulaCells() []CellAddress {
	set := make(map[CellAddress]struct{})
	for addr, node := range dg.nodes {
		if node.Formula {
			set[addr] = struct{}{}
		}
	}
	return sortedAddresses(set)
}

// ClearDirty clears the dirty flag for a cell
func (dg *DependencyGraph) ClearDirty(addr CellAddress) {
	delete(dg.dirtySet, addr)

	if node, exists := dg.nodes[addr]; exists {
		node.IsDirty = false
	}
}

// ClearAllDirty clears all dirty flags
func (dg *DependencyGraph) ClearAllDirty() {
	dg.dirtySet = make(map[CellAddress]struct{})

	for _, node := range dg.nodes {
		node.IsDirty = false
	}
}

// IsCellDirty reports whether a formula cell awaits recalculation
func (dg *DependencyGraph) IsCellDirty(addr CellAddress) bool {
	_, dirty := dg.dirtySet[addr]
	return dirty
}

// DirtyCount returns the number of dirty formula cells
func (dg *DependencyGraph) DirtyCount() int {
	return len(dg.dirtySet)
}

// GetDirectDependents returns the formulas reading this cell directly,
// through cell edges or observed ranges, sorted
func (dg *DependencyGraph) GetDirectDependents(addr CellAddress) []CellAddress {
	seen := make(map[CellAddress]struct{})
	dg.forEachDependent(addr, func(dependent CellAddress) {
		seen[dependent] = struct{}{}
	})
	return sortedAddresses(seen)
}

// GetAllDependents returns all cells affected by this cell (transitive
// closure), sorted
func (dg *DependencyGraph) GetAllDependents(addr CellAddress) []CellAddress {
	visited := make(map[CellAddress]struct{})
	stack := []CellAddress{addr}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dg.forEachDependent(current, func(dependent CellAddress) {
			if _, seen := visited[dependent]; !seen {
				visited[dependent] = struct{}{}
				stack = append(stack, dependent)
			}
		})
	}
	delete(visited, addr)
	return sortedAddresses(visited)
}

// GetDirectPrecedents returns cells this cell directly depends on
func (dg *DependencyGraph) GetDirectPrecedents(addr CellAddress) []CellAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	set := make(map[CellAddress]struct{}, len(node.CellPrecedents))
	for precedentAddr := range node.CellPrecedents {
		set[precedentAddr] = struct{}{}
	}
	return sortedAddresses(set)
}

// GetRangePrecedents returns ranges this cell depends on
func (dg *DependencyGraph) GetRangePrecedents(addr CellAddress) []RangeAddress {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}

	result := make([]RangeAddress, 0, len(node.RangePrecedents))
	for rangeAddr := range node.RangePrecedents {
		result = append(result, rangeAddr)
	}
	slices.SortFunc(result, compareRangeAddress)
	return result
}

// Precedents returns the ordered precedent list of a formula cell
func (dg *DependencyGraph) Precedents(addr CellAddress) []Precedent {
	node, exists := dg.nodes[addr]
	if !exists {
		return nil
	}
	return slices.Clone(node.Precedents)
}

// NodeCount returns the number of nodes in the graph
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.nodes)
}

// RangeObserverCount returns the number of observed ranges
func (dg *DependencyGraph) RangeObserverCount() int {
	return len(dg.rangeObservers)
}

// MarkVolatile marks a cell as containing volatile functions
func (dg *DependencyGraph) MarkVolatile(addr CellAddress) {
	dg.volatileCells[addr] = struct{}{}
}

// UnmarkVolatile removes volatile marking from a cell
func (dg *DependencyGraph) UnmarkVolatile(addr CellAddress) {
	delete(dg.volatileCells, addr)
}

// IsVolatile checks if a cell contains volatile functions
func (dg *DependencyGraph) IsVolatile(addr CellAddress) bool {
	_, isVolatile := dg.volatileCells[addr]
	return isVolatile
}

// GetVolatileCells returns all cells marked as volatile, sorted
func (dg *DependencyGraph) GetVolatileCells() []CellAddress {
	return sortedAddresses(dg.volatileCells)
}

// MarkAllVolatileDirty marks all volatile cells, and what reads them, as
// dirty for recalculation
func (dg *DependencyGraph) MarkAllVolatileDirty() {
	for _, addr := range dg.GetVolatileCells() {
		dg.MarkDirty(addr)
	}
}

// GraphStats summarizes the size of the graph
type GraphStats struct {
	Nodes           int
	FormulaCells    int
	DirectCellEdges int
	RangeEdges      int
	RangeBuckets    int
	DirtyCells      int
	VolatileCells   int
}

// Stats counts nodes and edges. a range precedent is one edge however
// many cells it covers.
func (dg *DependencyGraph) Stats() GraphStats {
	st := GraphStats{
		Nodes:         len(dg.nodes),
		RangeBuckets:  len(dg.rangeObservers),
		DirtyCells:    len(dg.dirtySet),
		VolatileCells: len(dg.volatileCells),
	}
	for _, node := range dg.nodes {
		if node.Formula {
			st.FormulaCells++
		}
		st.DirectCellEdges += len(node.CellPrecedents)
		st.RangeEdges += len(node.RangePrecedents)
	}
	return st
}

// CalcStep is a group of dirty cells evaluated together. a cyclic step is
// one strongly connected component of the dirty subgraph.
type CalcStep struct {
	Cells  []CellAddress
	Cyclic bool
	// Level is the length of the longest dependency chain leading to the
	// step; steps of one level do not read each other
	Level int
}

// CalcOrder is the schedule for the dirty cells of one pass
type CalcOrder struct {
	Steps  []CalcStep
	Cycles [][]CellAddress
}

// CalcOrderForDirty orders the dirty cells so every cell comes after the
// dirty cells it reads. strongly connected components (Tarjan) become
// cyclic steps, and a cell reading itself counts as a cycle.
func (dg *DependencyGraph) CalcOrderForDirty() CalcOrder {
	cells := sortedAddresses(dg.dirtySet)
	index := make(map[CellAddress]int, len(cells))
	for i, c := range cells {
		index[c] = i
	}

	succ := make([][]int, len(cells))
	selfLoop := make([]bool, len(cells))
	for i, c := range cells {
		seen := make(map[int]struct{})
		dg.forEachDependent(c, func(dependent CellAddress) {
			j, dirty := index[dependent]
			if !dirty {
				return
			}
			if j == i {
				selfLoop[i] = true
				return
			}
			if _, dup := seen[j]; !dup {
				seen[j] = struct{}{}
				succ[i] = append(succ[i], j)
			}
		})
		slices.Sort(succ[i])
	}

	components := stronglyConnected(len(cells), succ)
	slices.Reverse(components)

	component := make([]int, len(cells))
	for ci, members := range components {
		for _, v := range members {
			component[v] = ci
		}
	}
	levels := make([]int, len(components))
	for ci, members := range components {
		for _, v := range members {
			for _, w := range succ[v] {
				if cw := component[w]; cw != ci {
					levels[cw] = max(levels[cw], levels[ci]+1)
				}
			}
		}
	}

	var order CalcOrder
	for ci, members := range components {
		step := CalcStep{Level: levels[ci], Cyclic: len(members) > 1 || selfLoop[members[0]]}
		for _, v := range members {
			step.Cells = append(step.Cells, cells[v])
		}
		slices.SortFunc(step.Cells, compareCellAddress)
		if step.Cyclic {
			order.Cycles = append(order.Cycles, step.Cells)
		}
		order.Steps = append(order.Steps, step)
	}
	slices.SortStableFunc(order.Steps, func(a, b CalcStep) int {
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		return compareCellAddress(a.Cells[0], b.Cells[0])
	})
	return order
}

// stronglyConnected runs Tarjan's algorithm without recursion. components
// come out in reverse topological order.
func stronglyConnected(n int, succ [][]int) [][]int {
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var components [][]int
	next := 0

	type frame struct{ v, edge int }
	for root := 0; root < n; root++ {
		if index[root] >= 0 {
			continue
		}
		index[root], low[root] = next, next
		next++
		stack = append(stack, root)
		onStack[root] = true
		calls := []frame{{v: root}}

		for len(calls) > 0 {
			top := len(calls) - 1
			v := calls[top].v
			if e := calls[top].edge; e < len(succ[v]) {
				calls[top].edge++
				w := succ[v][e]
				switch {
				case index[w] < 0:
					index[w], low[w] = next, next
					next++
					stack = append(stack, w)
					onStack[w] = true
					calls = append(calls, frame{v: w})
				case onStack[w]:
					low[v] = min(low[v], index[w])
				}
				continue
			}

			if low[v] == index[v] {
				var members []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					members = append(members, w)
					if w == v {
						break
					}
				}
				components = append(components, members)
			}
			calls = calls[:top]
			if top > 0 {
				parent := calls[top-1].v
				low[parent] = min(low[parent], low[v])
			}
		}
	}
	return components
}

func compareCellAddress(a, b CellAddress) int {
	switch {
	case a.less(b):
		return -1
	case b.less(a):
		return 1
	}
	return 0
}

func compareRangeAddress(a, b RangeAddress) int {
	if c := compareCellAddress(
		CellAddress{WorksheetID: a.WorksheetID, Row: a.StartRow, Column: a.StartColumn},
		CellAddress{WorksheetID: b.WorksheetID, Row: b.StartRow, Column: b.StartColumn},
	); c != 0 {
		return c
	}
	return compareCellAddress(
		CellAddress{Row: a.EndRow, Column: a.EndColumn},
		CellAddress{Row: b.EndRow, Column: b.EndColumn},
	)
}

func sortedAddresses(set map[CellAddress]struct{}) []CellAddress {
	out := make([]CellAddress, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	slices.SortFunc(out, compareCellAddress)
	return out
}
