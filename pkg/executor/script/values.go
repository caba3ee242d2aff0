package script

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case *List:
		return len(v.Items) > 0
	case *Tuple:
		return len(v.Items) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func iterate(value any) ([]any, error) {
	switch v := value.(type) {
	case *List:
		return v.Items, nil
	case *Tuple:
		return v.Items, nil
	case string:
		items := make([]any, 0, len(v))
		for _, r := range v {
			items = append(items, string(r))
		}
		return items, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return items, nil
	default:
		return nil, runtimeErrorf("TypeError", 0, "'%s' object is not iterable", TypeName(value))
	}
}

func asIndex(value any, line int) (int, error) {
	switch v := value.(type) {
	case int64:
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, runtimeErrorf("TypeError", line, "indices must be integers, not %s", TypeName(value))
	}
}

func normalizeIndex(index, length int) int {
	if index < 0 {
		return index + length
	}
	return index
}

func getItem(container, index any, line int) (any, error) {
	switch c := container.(type) {
	case *List:
		i, err := asIndex(index, line)
		if err != nil {
			return nil, err
		}
		i = normalizeIndex(i, len(c.Items))
		if i < 0 || i >= len(c.Items) {
			return nil, runtimeErrorf("IndexError", line, "list index out of range")
		}
		return c.Items[i], nil
	case *Tuple:
		i, err := asIndex(index, line)
		if err != nil {
			return nil, err
		}
		i = normalizeIndex(i, len(c.Items))
		if i < 0 || i >= len(c.Items) {
			return nil, runtimeErrorf("IndexError", line, "tuple index out of range")
		}
		return c.Items[i], nil
	case string:
		i, err := asIndex(index, line)
		if err != nil {
			return nil, err
		}
		runes := []rune(c)
		i = normalizeIndex(i, len(runes))
		if i < 0 || i >= len(runes) {
			return nil, runtimeErrorf("IndexError", line, "string index out of range")
		}
		return string(runes[i]), nil
	case map[string]any:
		key := Repr(index, false)
		if value, ok := c[key]; ok {
			return value, nil
		}
		return nil, runtimeErrorf("KeyError", line, "%s", Repr(index, true))
	default:
		return nil, runtimeErrorf("TypeError", line, "'%s' object is not subscriptable", TypeName(container))
	}
}

func setItem(container, index, value any, line int) error {
	switch c := container.(type) {
	case *List:
		i, err := asIndex(index, line)
		if err != nil {
			return err
		}
		i = normalizeIndex(i, len(c.Items))
		if i < 0 || i >= len(c.Items) {
			return runtimeErrorf("IndexError", line, "list assignment index out of range")
		}
		c.Items[i] = value
		return nil
	case map[string]any:
		c[Repr(index, false)] = value
		return nil
	default:
		return runtimeErrorf("TypeError", line, "'%s' object does not support item assignment", TypeName(container))
	}
}

func sliceValue(container any, low, high, line int) (any, error) {
	clamp := func(i, length int) int {
		i = normalizeIndex(i, length)
		if i < 0 {
			return 0
		}
		if i > length {
			return length
		}
		return i
	}

	switch c := container.(type) {
	case *List:
		lo, hi := clamp(low, len(c.Items)), clamp(high, len(c.Items))
		if lo > hi {
			lo = hi
		}
		out := make([]any, hi-lo)
		copy(out, c.Items[lo:hi])
		return &List{Items: out}, nil
	case string:
		runes := []rune(c)
		lo, hi := clamp(low, len(runes)), clamp(high, len(runes))
		if lo > hi {
			lo = hi
		}
		return string(runes[lo:hi]), nil
	default:
		return nil, runtimeErrorf("TypeError", line, "'%s' object is not sliceable", TypeName(container))
	}
}

func unaryOp(op string, operand any) (any, error) {
	switch op {
	case "not":
		return !truthy(operand), nil
	case "-":
		switch v := operand.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, runtimeErrorf("TypeError", 0, "bad operand type for unary -: '%s'", TypeName(operand))
	case "+":
		switch operand.(type) {
		case int64, float64:
			return operand, nil
		}
		return nil, runtimeErrorf("TypeError", 0, "bad operand type for unary +: '%s'", TypeName(operand))
	}
	return nil, runtimeErrorf("RuntimeError", 0, "unknown unary operator %s", op)
}

func binaryOp(op string, left, right any, line int) (any, error) {
	// String and list concatenation, string repetition.
	if op == "+" {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
			return nil, runtimeErrorf("TypeError", line, "can only concatenate str (not \"%s\") to str", TypeName(right))
		}
		if ll, ok := left.(*List); ok {
			if rl, ok := right.(*List); ok {
				out := make([]any, 0, len(ll.Items)+len(rl.Items))
				out = append(out, ll.Items...)
				out = append(out, rl.Items...)
				return &List{Items: out}, nil
			}
			return nil, runtimeErrorf("TypeError", line, "can only concatenate list (not \"%s\") to list", TypeName(right))
		}
	}
	if op == "*" {
		if s, n, ok := stringRepeat(left, right); ok {
			return strings.Repeat(s, n), nil
		}
		if s, n, ok := stringRepeat(right, left); ok {
			return strings.Repeat(s, n), nil
		}
	}

	li, lIsInt := asInt(left)
	ri, rIsInt := asInt(right)
	lf, lIsNum := asFloat(left)
	rf, rIsNum := asFloat(right)
	if !lIsNum || !rIsNum {
		return nil, runtimeErrorf("TypeError", line, "unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(left), TypeName(right))
	}

	bothInt := lIsInt && rIsInt
	switch op {
	case "+":
		if bothInt {
			return li + ri, nil
		}
		return lf + rf, nil
	case "-":
		if bothInt {
			return li - ri, nil
		}
		return lf - rf, nil
	case "*":
		if bothInt {
			return li * ri, nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, runtimeErrorf("ZeroDivisionError", line, "division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, runtimeErrorf("ZeroDivisionError", line, "integer division or modulo by zero")
		}
		if bothInt {
			return int64(math.Floor(float64(li) / float64(ri))), nil
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, runtimeErrorf("ZeroDivisionError", line, "integer division or modulo by zero")
		}
		if bothInt {
			// Python modulo follows the divisor's sign.
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	case "**":
		if bothInt && ri >= 0 {
			result := int64(1)
			for i := int64(0); i < ri; i++ {
				result *= li
			}
			return result, nil
		}
		return math.Pow(lf, rf), nil
	}
	return nil, runtimeErrorf("RuntimeError", line, "unknown operator %s", op)
}

func stringRepeat(a, b any) (string, int, bool) {
	s, ok := a.(string)
	if !ok {
		return "", 0, false
	}
	n, ok := b.(int64)
	if !ok || n < 0 {
		return "", 0, ok && n < 0
	}
	return s, int(n), true
}

func asInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func compareOp(op string, left, right any, line int) (any, error) {
	switch op {
	case "==":
		return equalValues(left, right), nil
	case "!=":
		return !equalValues(left, right), nil
	case "in":
		return containsValue(right, left, line)
	case "not in":
		contained, err := containsValue(right, left, line)
		if err != nil {
			return nil, err
		}
		return !contained.(bool), nil
	}

	// Ordering comparisons.
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return orderResult(op, strings.Compare(ls, rs)), nil
		}
	}
	lf, lOK := asFloat(left)
	rf, rOK := asFloat(right)
	if lOK && rOK {
		switch {
		case lf < rf:
			return orderResult(op, -1), nil
		case lf > rf:
			return orderResult(op, 1), nil
		default:
			return orderResult(op, 0), nil
		}
	}
	return nil, runtimeErrorf("TypeError", line, "'%s' not supported between instances of '%s' and '%s'", op, TypeName(left), TypeName(right))
}

func orderResult(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func equalValues(left, right any) bool {
	lf, lOK := asFloat(left)
	rf, rOK := asFloat(right)
	if lOK && rOK {
		return lf == rf
	}

	switch l := left.(type) {
	case nil:
		return right == nil
	case string:
		r, ok := right.(string)
		return ok && l == r
	case *List:
		r, ok := right.(*List)
		return ok && equalSlices(l.Items, r.Items)
	case *Tuple:
		r, ok := right.(*Tuple)
		return ok && equalSlices(l.Items, r.Items)
	case map[string]any:
		r, ok := right.(map[string]any)
		if !ok || len(l) != len(r) {
			return false
		}
		for k, lv := range l {
			rv, ok := r[k]
			if !ok || !equalValues(lv, rv) {
				return false
			}
		}
		return true
	}
	return false
}

func equalSlices(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalValues(a[i], b[i]) {
			return false
		}
	}
	return true
}

func containsValue(container, needle any, line int) (any, error) {
	switch c := container.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, runtimeErrorf("TypeError", line, "'in <string>' requires string as left operand, not %s", TypeName(needle))
		}
		return strings.Contains(c, s), nil
	case *List:
		for _, item := range c.Items {
			if equalValues(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case *Tuple:
		for _, item := range c.Items {
			if equalValues(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := c[Repr(needle, false)]
		return ok, nil
	default:
		return nil, runtimeErrorf("TypeError", line, "argument of type '%s' is not iterable", TypeName(container))
	}
}

// Repr renders a value as text. quoted controls whether strings get quotes,
// matching the str()/repr() split.
func Repr(value any, quoted bool) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e16 {
			return strconv.FormatFloat(v, 'f', 1, 64)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		if quoted {
			return "'" + v + "'"
		}
		return v
	case *List:
		return reprSeq(v.Items, "[", "]")
	case *Tuple:
		if len(v.Items) == 1 {
			return "(" + Repr(v.Items[0], true) + ",)"
		}
		return reprSeq(v.Items, "(", ")")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "'" + k + "': " + Repr(v[k], true)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Function:
		return fmt.Sprintf("<function %s>", v.Name)
	case GoFunc:
		return "<built-in function>"
	case error:
		// Tool failures travel as error values; render the message, not
		// the Go type.
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

func reprSeq(items []any, open, close string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Repr(item, true)
	}
	return open + strings.Join(parts, ", ") + close
}

// getAttribute resolves methods on the built-in types. Bound methods come
// back as GoFuncs closed over the receiver.
func getAttribute(value any, attr string, line int) (any, error) {
	switch v := value.(type) {
	case string:
		if method, ok := stringMethod(v, attr); ok {
			return method, nil
		}
	case *List:
		if method, ok := listMethod(v, attr); ok {
			return method, nil
		}
	case map[string]any:
		if method, ok := dictMethod(v, attr); ok {
			return method, nil
		}
		// Module tables expose their functions as attributes.
		if entry, ok := v[attr]; ok {
			return entry, nil
		}
	}
	return nil, runtimeErrorf("AttributeError", line, "'%s' object has no attribute '%s'", TypeName(value), attr)
}

func stringMethod(s string, attr string) (GoFunc, bool) {
	switch attr {
	case "upper":
		return noArgMethod(attr, func() any { return strings.ToUpper(s) }), true
	case "lower":
		return noArgMethod(attr, func() any { return strings.ToLower(s) }), true
	case "strip":
		return noArgMethod(attr, func() any { return strings.TrimSpace(s) }), true
	case "split":
		return func(_ context.Context, args []any) (any, error) {
			var parts []string
			if len(args) == 0 {
				parts = strings.Fields(s)
			} else {
				sep, ok := args[0].(string)
				if !ok {
					return nil, runtimeErrorf("TypeError", 0, "split() separator must be str")
				}
				parts = strings.Split(s, sep)
			}
			items := make([]any, len(parts))
			for i, part := range parts {
				items[i] = part
			}
			return &List{Items: items}, nil
		}, true
	case "join":
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "join() takes exactly one argument")
			}
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				str, ok := item.(string)
				if !ok {
					return nil, runtimeErrorf("TypeError", 0, "sequence item %d: expected str instance, %s found", i, TypeName(item))
				}
				parts[i] = str
			}
			return strings.Join(parts, s), nil
		}, true
	case "replace":
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 2 {
				return nil, runtimeErrorf("TypeError", 0, "replace() takes exactly two arguments")
			}
			old, ok1 := args[0].(string)
			new, ok2 := args[1].(string)
			if !ok1 || !ok2 {
				return nil, runtimeErrorf("TypeError", 0, "replace() arguments must be str")
			}
			return strings.ReplaceAll(s, old, new), nil
		}, true
	case "startswith":
		return oneStrMethod(attr, func(prefix string) any { return strings.HasPrefix(s, prefix) }), true
	case "endswith":
		return oneStrMethod(attr, func(suffix string) any { return strings.HasSuffix(s, suffix) }), true
	}
	return nil, false
}

func noArgMethod(name string, fn func() any) GoFunc {
	return func(_ context.Context, args []any) (any, error) {
		if len(args) != 0 {
			return nil, runtimeErrorf("TypeError", 0, "%s() takes no arguments", name)
		}
		return fn(), nil
	}
}

func oneStrMethod(name string, fn func(string) any) GoFunc {
	return func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, runtimeErrorf("TypeError", 0, "%s() takes exactly one argument", name)
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, runtimeErrorf("TypeError", 0, "%s() argument must be str", name)
		}
		return fn(s), nil
	}
}

func listMethod(l *List, attr string) (GoFunc, bool) {
	switch attr {
	case "append":
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "append() takes exactly one argument")
			}
			l.Items = append(l.Items, args[0])
			return nil, nil
		}, true
	case "extend":
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "extend() takes exactly one argument")
			}
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, items...)
			return nil, nil
		}, true
	case "pop":
		return func(_ context.Context, args []any) (any, error) {
			if len(l.Items) == 0 {
				return nil, runtimeErrorf("IndexError", 0, "pop from empty list")
			}
			i := len(l.Items) - 1
			if len(args) == 1 {
				var err error
				i, err = asIndex(args[0], 0)
				if err != nil {
					return nil, err
				}
				i = normalizeIndex(i, len(l.Items))
				if i < 0 || i >= len(l.Items) {
					return nil, runtimeErrorf("IndexError", 0, "pop index out of range")
				}
			}
			item := l.Items[i]
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return item, nil
		}, true
	}
	return nil, false
}

func dictMethod(d map[string]any, attr string) (GoFunc, bool) {
	switch attr {
	case "get":
		return func(_ context.Context, args []any) (any, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, runtimeErrorf("TypeError", 0, "get() takes one or two arguments")
			}
			if value, ok := d[Repr(args[0], false)]; ok {
				return value, nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return nil, nil
		}, true
	case "keys":
		return func(_ context.Context, args []any) (any, error) {
			items, _ := iterate(d)
			return &List{Items: items}, nil
		}, true
	case "values":
		return func(_ context.Context, args []any) (any, error) {
			keys, _ := iterate(d)
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = d[k.(string)]
			}
			return &List{Items: items}, nil
		}, true
	case "items":
		return func(_ context.Context, args []any) (any, error) {
			keys, _ := iterate(d)
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = &Tuple{Items: []any{k, d[k.(string)]}}
			}
			return &List{Items: items}, nil
		}, true
	}
	return nil, false
}
