package calc

import (
	"fmt"
	"slices"
	"strings"
)

// DefinedName is a workbook- or sheet-scoped alias for a reference, a
// constant or any expression, LAMBDA included. Formula is stored without
// the leading '='.
type DefinedName struct {
	Name    string
	Scope   SheetID // 0 for workbook scope
	Formula string
	Ast     *Ast
}

// nameKey identifies a defined name within its scope
type nameKey struct {
	scope SheetID
	name  string // folded
}

// NameTable manages defined names with ID tracking. a name that formulas
// use before it is defined is interned as undefined, so defining it later
// can find the formulas that were waiting for it.
type NameTable struct {
	// core name/ID mapping (for all names, defined or not)

	keyToID  map[nameKey]uint32
	idToKey  map[uint32]nameKey
	spelling map[uint32]string

	// name definitions

	definedNames map[uint32]*DefinedName

	// track undefined names (referenced but not yet defined)

	undefinedIDs map[uint32]struct{}

	// reference counting

	refCounts map[uint32]int
	nextID    uint32
}

// NewNameTable creates a new defined-name table
func NewNameTable() *NameTable {
	return &NameTable{
		keyToID:      make(map[nameKey]uint32),
		idToKey:      make(map[uint32]nameKey),
		spelling:     make(map[uint32]string),
		definedNames: make(map[uint32]*DefinedName),
		undefinedIDs: make(map[uint32]struct{}),
		refCounts:    make(map[uint32]int),
		nextID:       1, // start at 1, reserve 0 for no name
	}
}

// validateName checks defined-name syntax. names that read as cell
// references are rejected.
func validateName(name string) error {
	if !isValidName(name) || looksLikeA1(name) || beyondGridA1(name) || looksLikeR1C1(name) {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("%q is not a valid name", name))
	}
	switch strings.ToUpper(name) {
	case "TRUE", "FALSE":
		return NewApplicationError(InvalidArgument, fmt.Sprintf("%q is reserved", name))
	}
	return nil
}

// InternName adds a reference to a workbook-scoped name (defined or not)
// and returns its ID
func (nt *NameTable) InternName(name string) uint32 {
	key := nameKey{name: foldKey(name)}
	if id, exists := nt.keyToID[key]; exists {
		nt.refCounts[id]++
		return id
	}
	id := nt.nextID
	nt.keyToID[key] = id
	nt.idToKey[id] = key
	nt.spelling[id] = name
	nt.undefinedIDs[id] = struct{}{}
	nt.refCounts[id] = 1
	nt.nextID++
	return id
}

// DefineName defines or redefines a name. returns the ID of the name.
func (nt *NameTable) DefineName(dn *DefinedName) uint32 {
	key := nameKey{scope: dn.Scope, name: foldKey(dn.Name)}
	if id, exists := nt.keyToID[key]; exists {
		nt.definedNames[id] = dn
		nt.spelling[id] = dn.Name
		delete(nt.undefinedIDs, id)
		return id
	}
	id := nt.nextID
	nt.keyToID[key] = id
	nt.idToKey[id] = key
	nt.spelling[id] = dn.Name
	nt.definedNames[id] = dn
	nt.nextID++
	return id
}

// UndefineName removes the definition of a name. if formulas still use it
// it stays interned as undefined. returns true if the name was removed
// completely.
func (nt *NameTable) UndefineName(name string, scope SheetID) bool {
	id, exists := nt.keyToID[nameKey{scope: scope, name: foldKey(name)}]
	if !exists {
		return false
	}
	delete(nt.definedNames, id)
	if nt.refCounts[id] > 0 {
		nt.undefinedIDs[id] = struct{}{}
		return false
	}
	nt.removeName(id)
	return true
}

// removeName removes a name completely from all tracking maps
func (nt *NameTable) removeName(id uint32) {
	delete(nt.keyToID, nt.idToKey[id])
	delete(nt.idToKey, id)
	delete(nt.spelling, id)
	delete(nt.definedNames, id)
	delete(nt.undefinedIDs, id)
	delete(nt.refCounts, id)
}

// RemoveReference decrements the reference count for a name ID. an
// undefined name with no references is forgotten.
func (nt *NameTable) RemoveReference(id uint32) bool {
	if _, exists := nt.idToKey[id]; !exists {
		return false
	}
	nt.refCounts[id]--
	if nt.refCounts[id] <= 0 {
		if _, isUndefined := nt.undefinedIDs[id]; isUndefined {
			nt.removeName(id)
			return true
		}
		nt.refCounts[id] = 0
	}
	return false
}

// ReleaseName drops a reference taken with InternName
func (nt *NameTable) ReleaseName(name string) bool {
	id, ok := nt.keyToID[nameKey{name: foldKey(name)}]
	if !ok {
		return false
	}
	return nt.RemoveReference(id)
}

// Lookup resolves a name as seen from a sheet: a name scoped to that sheet
// wins over a workbook name
func (nt *NameTable) Lookup(name string, scope SheetID) (*DefinedName, bool) {
	folded := foldKey(name)
	if scope != 0 {
		if id, ok := nt.keyToID[nameKey{scope: scope, name: folded}]; ok {
			if dn, defined := nt.definedNames[id]; defined {
				return dn, true
			}
		}
	}
	id, ok := nt.keyToID[nameKey{name: folded}]
	if !ok {
		return nil, false
	}
	dn, defined := nt.definedNames[id]
	return dn, defined
}

// IsNameDefined checks if a name has a definition in the given scope
func (nt *NameTable) IsNameDefined(name string, scope SheetID) bool {
	id, ok := nt.keyToID[nameKey{scope: scope, name: foldKey(name)}]
	if !ok {
		return false
	}
	_, defined := nt.definedNames[id]
	return defined
}

// GetReferenceCount returns the number of formulas using a name
func (nt *NameTable) GetReferenceCount(id uint32) int {
	return nt.refCounts[id]
}

// GetAllDefinedNames returns the defined names ordered by scope and name
func (nt *NameTable) GetAllDefinedNames() []*DefinedName {
	out := make([]*DefinedName, 0, len(nt.definedNames))
	for _, dn := range nt.definedNames {
		out = append(out, dn)
	}
	slices.SortFunc(out, func(a, b *DefinedName) int {
		if a.Scope != b.Scope {
			return int(a.Scope) - int(b.Scope)
		}
		return strings.Compare(foldKey(a.Name), foldKey(b.Name))
	})
	return out
}

// GetAllUndefinedNames returns names used by formulas but never defined
func (nt *NameTable) GetAllUndefinedNames() []string {
	result := make([]string, 0, len(nt.undefinedIDs))
	for id := range nt.undefinedIDs {
		result = append(result, nt.spelling[id])
	}
	slices.Sort(result)
	return result
}

// dropScope removes every name scoped to a sheet that no longer exists
func (nt *NameTable) dropScope(scope SheetID) []string {
	var dropped []string
	for id, key := range nt.idToKey {
		if key.scope == scope {
			dropped = append(dropped, nt.spelling[id])
			nt.removeName(id)
		}
	}
	slices.Sort(dropped)
	return dropped
}

// Count returns the total number of names (defined and undefined)
func (nt *NameTable) Count() int {
	return len(nt.keyToID)
}

// CountDefined returns the number of defined names
func (nt *NameTable) CountDefined() int {
	return len(nt.definedNames)
}

// CountUndefined returns the number of undefined names
func (nt *NameTable) CountUndefined() int {
	return len(nt.undefinedIDs)
}
