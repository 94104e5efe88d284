package calc

// dependencyInfo is what a formula reads, as seen from one cell
type dependencyInfo struct {
	precedents []Precedent
	volatile   bool
	threadSafe bool
	sheets     []SheetID // resolved sheets the formula reads
	sheetNames []string  // folded sheet names mentioned, resolved or not
	names      []string  // folded defined names used
	tables     bool      // uses structured references
}

// depCollector walks a formula tree the way the evaluator would, without
// evaluating anything. defined names are expanded so a formula depends on
// the cells its names refer to.
type depCollector struct {
	s     *Storage
	ev    *Evaluator // borrowed for sheet and range resolution only
	info  dependencyInfo
	precs map[Precedent]struct{}
	seenS map[SheetID]struct{}
	seenN map[string]struct{}
	seenF map[string]struct{}
	// expanding holds the defined names currently being walked
	expanding map[string]struct{}
}

// collectDependencies finds the precedents of a formula placed at
// sheet!cell
func collectDependencies(s *Storage, ast *Ast, sheet SheetID, cell CellAddr) dependencyInfo {
	dc := &depCollector{
		s:         s,
		ev:        NewEvaluator(s, nil, sheet, cell),
		info:      dependencyInfo{threadSafe: true},
		precs:     make(map[Precedent]struct{}),
		seenS:     make(map[SheetID]struct{}),
		seenN:     make(map[string]struct{}),
		seenF:     make(map[string]struct{}),
		expanding: make(map[string]struct{}),
	}
	dc.visit(ast.Root, nil)
	return dc.info
}

// scope is the set of LET and LAMBDA names visible at a node
type scope map[string]struct{}

func (sc scope) with(names ...string) scope {
	out := make(scope, len(sc)+len(names))
	for k := range sc {
		out[k] = struct{}{}
	}
	for _, n := range names {
		out[foldKey(n)] = struct{}{}
	}
	return out
}

func (sc scope) has(name string) bool {
	_, ok := sc[foldKey(name)]
	return ok
}

func (dc *depCollector) add(p Precedent) {
	if _, dup := dc.precs[p]; dup {
		return
	}
	dc.precs[p] = struct{}{}
	dc.info.precedents = append(dc.info.precedents, p)
	if _, dup := dc.seenS[p.Sheet]; !dup {
		dc.seenS[p.Sheet] = struct{}{}
		dc.info.sheets = append(dc.info.sheets, p.Sheet)
	}
}

func (dc *depCollector) noteSheetName(ref *SheetRef) {
	if ref == nil || ref.IsExternal() {
		return
	}
	for _, name := range []string{ref.Name, ref.LastName} {
		if name == "" {
			continue
		}
		key := foldKey(name)
		if _, dup := dc.seenF[key]; !dup {
			dc.seenF[key] = struct{}{}
			dc.info.sheetNames = append(dc.info.sheetNames, key)
		}
	}
}

func (dc *depCollector) noteName(name string) {
	key := foldKey(name)
	if _, dup := dc.seenN[key]; !dup {
		dc.seenN[key] = struct{}{}
		dc.info.names = append(dc.info.names, key)
	}
}

func (dc *depCollector) visit(n Node, sc scope) {
	switch x := n.(type) {
	case nil:
	case *CellRefNode:
		dc.noteSheetName(x.Sheet)
		sheets, err := dc.ev.resolveSheets(x.Sheet)
		if err != nil {
			return
		}
		for _, sheet := range sheets {
			rows, cols := dc.ev.dimensions(sheet)
			if addr, ok := x.Ref.resolve(dc.ev.cell, rows, cols); ok {
				dc.add(Precedent{Kind: PrecedentCell, Sheet: sheet, Start: addr, End: addr})
			}
		}
	case *RangeNode:
		dc.noteSheetName(x.Sheet)
		sheets, err := dc.ev.resolveSheets(x.Sheet)
		if err != nil {
			return
		}
		for _, sheet := range sheets {
			if ref, ok := dc.ev.rangeOn(x, sheet); ok {
				dc.addReference(ref)
			}
		}
	case *NameNode:
		if x.Sheet == nil && sc.has(x.Name) {
			return
		}
		dc.noteSheetName(x.Sheet)
		scopeSheet := dc.ev.sheet
		if x.Sheet != nil {
			sheets, err := dc.ev.resolveSheets(x.Sheet)
			if err != nil {
				return
			}
			scopeSheet = sheets[0]
		}
		dc.expandName(x.Name, scopeSheet)
	case *BinaryOpNode:
		dc.visit(x.Left, sc)
		dc.visit(x.Right, sc)
	case *UnaryOpNode:
		dc.visit(x.Operand, sc)
	case *PostfixOpNode:
		dc.visit(x.Operand, sc)
	case *FunctionCallNode:
		switch def, builtin := LookupFunction(x.Name); {
		case x.Written != "" && sc.has(x.Written):
		case builtin:
			if def.IsVolatile() {
				dc.info.volatile = true
			}
			if !def.IsThreadSafe() {
				dc.info.threadSafe = false
			}
		default:
			dc.expandName(x.Written, dc.ev.sheet)
		}
		for _, a := range x.Args {
			dc.visit(a, sc)
		}
	case *CallNode:
		dc.visit(x.Callee, sc)
		for _, a := range x.Args {
			dc.visit(a, sc)
		}
	case *LetNode:
		inner := sc
		for i, name := range x.Names {
			dc.visit(x.Values[i], inner)
			inner = inner.with(name)
		}
		dc.visit(x.Body, inner)
	case *LambdaNode:
		dc.visit(x.Body, sc.with(x.Params...))
	case *StructuredRefNode:
		dc.info.tables = true
		if v, err := resolveStructuredRef(dc.s, x, dc.ev.sheet, dc.ev.cell); err == nil {
			dc.addReference(v.(*Reference))
		}
	case *ArrayNode:
		for _, e := range x.Elements {
			dc.visit(e, sc)
		}
	}
}

func (dc *depCollector) addReference(ref *Reference) {
	kind := PrecedentRange
	if ref.IsSingleCell() {
		kind = PrecedentCell
	}
	dc.add(Precedent{Kind: kind, Sheet: ref.Sheet, Start: ref.Start, End: ref.End})
}

// expandName records a defined name and walks its formula as the
// evaluator does: anchored at A1 of the scope sheet, without LET bindings
func (dc *depCollector) expandName(name string, scopeSheet SheetID) {
	dc.noteName(name)
	dn, ok := dc.s.names.Lookup(name, scopeSheet)
	if !ok || dn.Ast == nil {
		return
	}
	key := foldKey(name)
	if _, loop := dc.expanding[key]; loop || len(dc.expanding) >= maxEvalDepth {
		return
	}
	dc.expanding[key] = struct{}{}
	savedSheet, savedCell := dc.ev.sheet, dc.ev.cell
	if dn.Scope != 0 {
		dc.ev.sheet = dn.Scope
	}
	dc.ev.cell = CellAddr{}
	dc.visit(dn.Ast.Root, nil)
	dc.ev.sheet, dc.ev.cell = savedSheet, savedCell
	delete(dc.expanding, key)
}
