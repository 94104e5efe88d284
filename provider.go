package calc

// ExternalValueProvider supplies values for cells the engine does not
// store, for example a file-backed data set. it is called from worker
// goroutines during parallel recalculation and must be safe for concurrent
// use. cross-workbook references never reach the provider.
type ExternalValueProvider interface {
	Get(sheet string, addr CellAddr) (Value, bool)
}

// ExtentProvider is implemented by providers that know how much data they
// hold. range reads only ask such providers for positions inside the
// extent; providers without it are asked cell by cell for ranges up to
// maxProviderScan cells.
type ExtentProvider interface {
	Extent(sheet string) (rows, cols uint32, ok bool)
}

// maxProviderScan bounds per-position provider calls for a range read
// when the provider does not report its extent
const maxProviderScan = 1 << 16

// ProviderFunc adapts a function to ExternalValueProvider
type ProviderFunc func(sheet string, addr CellAddr) (Value, bool)

// Get calls f
func (f ProviderFunc) Get(sheet string, addr CellAddr) (Value, bool) {
	return f(sheet, addr)
}

// MapProvider serves values from a fixed map keyed by sheet name. it is
// immutable after construction.
type MapProvider struct {
	cells map[string]map[CellAddr]Value
	ext   map[string]CellAddr
}

// NewMapProvider copies the given cells into a provider
func NewMapProvider(cells map[string]map[CellAddr]Value) *MapProvider {
	p := &MapProvider{cells: make(map[string]map[CellAddr]Value, len(cells)), ext: make(map[string]CellAddr)}
	for sheet, m := range cells {
		key := foldKey(sheet)
		dst := make(map[CellAddr]Value, len(m))
		var far CellAddr
		for addr, v := range m {
			dst[addr] = v
			far.Row = max(far.Row, addr.Row+1)
			far.Col = max(far.Col, addr.Col+1)
		}
		p.cells[key] = dst
		p.ext[key] = far
	}
	return p
}

// Get returns the stored value
func (p *MapProvider) Get(sheet string, addr CellAddr) (Value, bool) {
	v, ok := p.cells[foldKey(sheet)][addr]
	return v, ok
}

// Extent reports the used area of a sheet
func (p *MapProvider) Extent(sheet string) (uint32, uint32, bool) {
	far, ok := p.ext[foldKey(sheet)]
	return far.Row, far.Col, ok
}
