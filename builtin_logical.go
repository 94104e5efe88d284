package calc

func init() {
	register(
		&FunctionDef{Name: "IF", MinArgs: 1, MaxArgs: 3, Flags: pure, Special: specialIF},
		&FunctionDef{Name: "IFS", MinArgs: 2, MaxArgs: variadic, Flags: pure, Special: specialIFS},
		&FunctionDef{Name: "SWITCH", MinArgs: 3, MaxArgs: variadic, Flags: pure, Special: specialSWITCH},
		&FunctionDef{Name: "CHOOSE", MinArgs: 2, MaxArgs: variadic, Flags: pure, Special: specialCHOOSE},
		&FunctionDef{Name: "AND", MinArgs: 1, MaxArgs: variadic, Returns: ReturnBool, Flags: pure, Special: specialAND},
		&FunctionDef{Name: "OR", MinArgs: 1, MaxArgs: variadic, Returns: ReturnBool, Flags: pure, Special: specialOR},
		&FunctionDef{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, Flags: pure | FlagAcceptsErrors, Special: specialIFERROR},
		&FunctionDef{Name: "IFNA", MinArgs: 2, MaxArgs: 2, Flags: pure | FlagAcceptsErrors, Special: specialIFNA},
		&FunctionDef{Name: "ISOMITTED", MinArgs: 1, MaxArgs: 1, Returns: ReturnBool, Flags: pure, Special: specialISOMITTED},
		&FunctionDef{Name: "XOR", MinArgs: 1, MaxArgs: variadic, Args: []ArgKind{ArgRange}, Returns: ReturnBool, Arrays: SupportsArrays, Flags: pure, Impl: fnXOR},
		&FunctionDef{Name: "NOT", MinArgs: 1, MaxArgs: 1, Returns: ReturnBool, Flags: pure, Impl: fnNOT},
		&FunctionDef{Name: "TRUE", MaxArgs: 0, Returns: ReturnBool, Flags: pure, Impl: func(*FunctionContext, []Value) Value { return true }},
		&FunctionDef{Name: "FALSE", MaxArgs: 0, Returns: ReturnBool, Flags: pure, Impl: func(*FunctionContext, []Value) Value { return false }},
	)
}

// branchValue evaluates a selected branch. an empty branch reads as 0 the
// way Excel shows IF(FALSE,1,).
func branchValue(fc *FunctionContext, n Node) Value {
	if _, missing := n.(*MissingNode); missing {
		return 0.0
	}
	return fc.Eval(n)
}

func specialIF(fc *FunctionContext, args []Node) Value {
	cond := fc.Value(args[0])
	if arr, ok := cond.(*Array); ok {
		var t, f Value = true, false
		if len(args) > 1 {
			t = fc.Deref(branchValue(fc, args[1]))
		}
		if len(args) > 2 {
			f = fc.Deref(branchValue(fc, args[2]))
		}
		return ifCombine(arr, t, f)
	}
	b, err := truthy(cond)
	if err != nil {
		return err
	}
	if b {
		if len(args) > 1 {
			return branchValue(fc, args[1])
		}
		return true
	}
	if len(args) > 2 {
		return branchValue(fc, args[2])
	}
	return false
}

// ifCombine picks element-wise between two branch values under an array
// condition
func ifCombine(cond *Array, t, f Value) Value {
	return liftN([]Value{cond, t, f}, func(e []Value) Value {
		b, err := truthy(e[0])
		if err != nil {
			return err
		}
		if b {
			return e[1]
		}
		return e[2]
	})
}

func specialIFS(fc *FunctionContext, args []Node) Value {
	if len(args)%2 != 0 {
		return NewSpreadsheetError(ErrorCodeValue, "IFS needs condition/value pairs")
	}
	for i := 0; i+1 < len(args); i += 2 {
		b, err := truthy(scalarOf(fc.Value(args[i])))
		if err != nil {
			return err
		}
		if b {
			return branchValue(fc, args[i+1])
		}
	}
	return NewSpreadsheetError(ErrorCodeNA, "no IFS condition was met")
}

func specialSWITCH(fc *FunctionContext, args []Node) Value {
	subject := scalarOf(fc.Value(args[0]))
	if e, ok := subject.(*SpreadsheetError); ok {
		return e
	}
	i := 1
	for ; i+1 < len(args); i += 2 {
		candidate := scalarOf(fc.Value(args[i]))
		if e, ok := candidate.(*SpreadsheetError); ok {
			return e
		}
		if switchMatches(subject, candidate) {
			return branchValue(fc, args[i+1])
		}
	}
	if i < len(args) {
		return branchValue(fc, args[i])
	}
	return NewSpreadsheetError(ErrorCodeNA, "no SWITCH value matched")
}

// switchMatches compares SWITCH cases; blank matches 0 and empty text
func switchMatches(subject, candidate Value) bool {
	if subject == nil || candidate == nil {
		return compareValues(subject, candidate) == 0 && typeRank(subject) != 3 && typeRank(candidate) != 3
	}
	return valuesEqual(subject, candidate)
}

func specialCHOOSE(fc *FunctionContext, args []Node) Value {
	index := fc.Value(args[0])
	if arr, ok := index.(*Array); ok {
		// an array of indexes needs every choice
		choices := make([]Value, len(args)-1)
		for i := range choices {
			choices[i] = fc.Deref(branchValue(fc, args[i+1]))
		}
		return liftN([]Value{arr}, func(e []Value) Value {
			return chooseFrom(fc, e[0], choices)
		})
	}
	n, err := chooseIndex(fc, index, len(args)-1)
	if err != nil {
		return err
	}
	return branchValue(fc, args[n])
}

// chooseIndex validates a CHOOSE index against the number of choices
func chooseIndex(fc *FunctionContext, index Value, choices int) (int, *SpreadsheetError) {
	if e, ok := index.(*SpreadsheetError); ok {
		return 0, e
	}
	f, err := fc.Number(index)
	if err != nil {
		return 0, err
	}
	n := toInt(f)
	if n < 1 || n > choices {
		return 0, NewSpreadsheetError(ErrorCodeValue, "CHOOSE index out of range")
	}
	return n, nil
}

func chooseFrom(fc *FunctionContext, index Value, choices []Value) Value {
	n, err := chooseIndex(fc, index, len(choices))
	if err != nil {
		return err
	}
	return scalarOf(choices[n-1])
}

// logicState folds AND/OR arguments
type logicState struct {
	seen   bool
	result bool
	and    bool
}

func newLogicState(and bool) *logicState {
	return &logicState{result: and, and: and}
}

// add folds one evaluated argument. decided is true once the outcome can
// no longer change.
func (s *logicState) add(fc *FunctionContext, v Value) (decided bool, err *SpreadsheetError) {
	fc.forEachValue(v, func(x Value, direct bool) bool {
		var b bool
		switch y := x.(type) {
		case bool:
			b = y
		case float64:
			b = y != 0
		case *SpreadsheetError:
			err = y
			return false
		case string:
			if !direct {
				return true
			}
			parsed, perr := fc.ev.ec.coerce.boolean(y)
			if perr != nil {
				err = perr
				return false
			}
			b = parsed
		case nil:
			if !direct {
				return true
			}
		default:
			return true
		}
		s.seen = true
		if s.and && !b {
			s.result = false
			decided = true
			return false
		}
		if !s.and && b {
			s.result = true
			decided = true
			return false
		}
		return true
	})
	return decided, err
}

func (s *logicState) value() Value {
	if !s.seen {
		return NewSpreadsheetError(ErrorCodeValue, "no logical values")
	}
	return s.result
}

func specialLogic(fc *FunctionContext, args []Node, and bool) Value {
	state := newLogicState(and)
	for _, a := range args {
		if _, missing := a.(*MissingNode); missing {
			continue
		}
		decided, err := state.add(fc, fc.Eval(a))
		if err != nil {
			return err
		}
		if decided {
			return state.result
		}
	}
	return state.value()
}

func specialAND(fc *FunctionContext, args []Node) Value { return specialLogic(fc, args, true) }
func specialOR(fc *FunctionContext, args []Node) Value  { return specialLogic(fc, args, false) }

func specialIFERROR(fc *FunctionContext, args []Node) Value {
	return replaceErrors(fc, args, func(e *SpreadsheetError) bool { return true })
}

func specialIFNA(fc *FunctionContext, args []Node) Value {
	return replaceErrors(fc, args, func(e *SpreadsheetError) bool { return e.ErrorCode == ErrorCodeNA })
}

// replaceErrors evaluates the fallback only when the first argument holds
// a matching error
func replaceErrors(fc *FunctionContext, args []Node, match func(*SpreadsheetError) bool) Value {
	raw := fc.Eval(args[0])
	v := fc.Deref(raw)
	switch x := v.(type) {
	case *SpreadsheetError:
		if match(x) {
			return branchValue(fc, args[1])
		}
		return x
	case *Array:
		var alt Value
		altDone := false
		out := NewArray(x.Rows, x.Cols)
		for i, e := range x.Data {
			if err, ok := e.(*SpreadsheetError); ok && match(err) {
				if !altDone {
					alt = scalarOf(fc.Deref(branchValue(fc, args[1])))
					altDone = true
				}
				out.Data[i] = alt
				continue
			}
			out.Data[i] = e
		}
		return out
	case nil:
		return 0.0
	}
	return raw
}

func specialISOMITTED(fc *FunctionContext, args []Node) Value {
	name, ok := args[0].(*NameNode)
	if !ok {
		return NewSpreadsheetError(ErrorCodeValue, "ISOMITTED expects a LAMBDA parameter")
	}
	omitted, bound := fc.ev.env.IsOmitted(name.Name)
	if !bound {
		return NewSpreadsheetError(ErrorCodeValue, "ISOMITTED expects a LAMBDA parameter")
	}
	return omitted
}

func fnXOR(fc *FunctionContext, args []Value) Value {
	count := 0
	seen := false
	for _, a := range args {
		var failed *SpreadsheetError
		fc.forEachValue(a, func(v Value, direct bool) bool {
			switch x := v.(type) {
			case bool:
				seen = true
				if x {
					count++
				}
			case float64:
				seen = true
				if x != 0 {
					count++
				}
			case *SpreadsheetError:
				failed = x
				return false
			case string:
				if direct {
					b, err := fc.ev.ec.coerce.boolean(x)
					if err != nil {
						failed = err
						return false
					}
					seen = true
					if b {
						count++
					}
				}
			}
			return true
		})
		if failed != nil {
			return failed
		}
	}
	if !seen {
		return errorValue(ErrorCodeValue)
	}
	return count%2 == 1
}

func fnNOT(fc *FunctionContext, args []Value) Value {
	b, err := fc.Bool(args[0])
	if err != nil {
		return err
	}
	return !b
}
