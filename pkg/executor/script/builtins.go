package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Builtins returns the default global bindings: Python's everyday builtins
// plus the math and json modules. stdout receives print output.
func Builtins(stdout io.Writer) map[string]any {
	return map[string]any{
		"print":     builtinPrint(stdout),
		"len":       GoFunc(builtinLen),
		"range":     GoFunc(builtinRange),
		"int":       GoFunc(builtinInt),
		"float":     GoFunc(builtinFloat),
		"str":       GoFunc(builtinStr),
		"bool":      GoFunc(builtinBool),
		"list":      GoFunc(builtinList),
		"dict":      GoFunc(builtinDict),
		"sum":       GoFunc(builtinSum),
		"min":       GoFunc(builtinMin),
		"max":       GoFunc(builtinMax),
		"abs":       GoFunc(builtinAbs),
		"round":     GoFunc(builtinRound),
		"sorted":    GoFunc(builtinSorted),
		"enumerate": GoFunc(builtinEnumerate),
		"type":      GoFunc(builtinType),
		"math":      mathModule(),
		"json":      jsonModule(),
		"strings":   stringsModule(),
		"base64":    base64Module(),
		"re":        reModule(),
		"datetime":  datetimeModule(),
		"random":    randomModule(),
		"hashlib":   hashlibModule(),
	}
}

func builtinPrint(stdout io.Writer) GoFunc {
	return func(_ context.Context, args []any) (any, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = Repr(arg, false)
		}
		fmt.Fprintln(stdout, strings.Join(parts, " "))
		return nil, nil
	}
}

func builtinLen(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "len() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		return int64(len([]rune(v))), nil
	case *List:
		return int64(len(v.Items)), nil
	case *Tuple:
		return int64(len(v.Items)), nil
	case map[string]any:
		return int64(len(v)), nil
	}
	return nil, runtimeErrorf("TypeError", 0, "object of type '%s' has no len()", TypeName(args[0]))
}

func builtinRange(_ context.Context, args []any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		s, ok := asInt(args[0])
		if !ok {
			return nil, runtimeErrorf("TypeError", 0, "range() argument must be int")
		}
		stop = s
	case 2, 3:
		a, ok1 := asInt(args[0])
		b, ok2 := asInt(args[1])
		if !ok1 || !ok2 {
			return nil, runtimeErrorf("TypeError", 0, "range() arguments must be int")
		}
		start, stop = a, b
		if len(args) == 3 {
			c, ok := asInt(args[2])
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "range() arguments must be int")
			}
			step = c
		}
	default:
		return nil, runtimeErrorf("TypeError", 0, "range() takes one to three arguments")
	}
	if step == 0 {
		return nil, runtimeErrorf("ValueError", 0, "range() arg 3 must not be zero")
	}

	out := &List{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out.Items = append(out.Items, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out.Items = append(out.Items, i)
		}
	}
	return out, nil
}

func builtinInt(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "int() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, runtimeErrorf("ValueError", 0, "invalid literal for int(): %q", v)
		}
		return n, nil
	}
	return nil, runtimeErrorf("TypeError", 0, "int() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func builtinFloat(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "float() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, runtimeErrorf("ValueError", 0, "could not convert string to float: %q", v)
		}
		return f, nil
	}
	return nil, runtimeErrorf("TypeError", 0, "float() argument must be a string or a number, not '%s'", TypeName(args[0]))
}

func builtinStr(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "str() takes at most one argument")
	}
	return Repr(args[0], false), nil
}

func builtinBool(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return false, nil
	}
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "bool() takes at most one argument")
	}
	return truthy(args[0]), nil
}

func builtinList(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "list() takes at most one argument")
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	copy(out, items)
	return &List{Items: out}, nil
}

func builtinDict(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "dict() takes at most one argument")
	}
	src, ok := args[0].(map[string]any)
	if !ok {
		return nil, runtimeErrorf("TypeError", 0, "dict() argument must be a dict")
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func builtinSum(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "sum() takes exactly one argument")
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	var total any = int64(0)
	for _, item := range items {
		total, err = binaryOp("+", total, item, 0)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

func builtinMin(_ context.Context, args []any) (any, error) {
	return extremum("min", "<", args)
}

func builtinMax(_ context.Context, args []any) (any, error) {
	return extremum("max", ">", args)
}

func extremum(name, op string, args []any) (any, error) {
	var items []any
	if len(args) == 1 {
		var err error
		items, err = iterate(args[0])
		if err != nil {
			return nil, err
		}
	} else {
		items = args
	}
	if len(items) == 0 {
		return nil, runtimeErrorf("ValueError", 0, "%s() arg is an empty sequence", name)
	}

	best := items[0]
	for _, item := range items[1:] {
		better, err := compareOp(op, item, best, 0)
		if err != nil {
			return nil, err
		}
		if better.(bool) {
			best = item
		}
	}
	return best, nil
}

func builtinAbs(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "abs() takes exactly one argument")
	}
	switch v := args[0].(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	}
	return nil, runtimeErrorf("TypeError", 0, "bad operand type for abs(): '%s'", TypeName(args[0]))
}

func builtinRound(_ context.Context, args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, runtimeErrorf("TypeError", 0, "round() takes one or two arguments")
	}
	f, ok := asFloat(args[0])
	if !ok {
		return nil, runtimeErrorf("TypeError", 0, "round() argument must be a number, not '%s'", TypeName(args[0]))
	}
	if len(args) == 1 {
		if n, isInt := args[0].(int64); isInt {
			return n, nil
		}
		return int64(math.Round(f)), nil
	}
	digits, ok := asInt(args[1])
	if !ok {
		return nil, runtimeErrorf("TypeError", 0, "round() second argument must be int")
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(f*scale) / scale, nil
}

func builtinSorted(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "sorted() takes exactly one argument")
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	copy(out, items)

	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := compareOp("<", out[i], out[j], 0)
		if err != nil {
			sortErr = err
			return false
		}
		return less.(bool)
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return &List{Items: out}, nil
}

func builtinEnumerate(_ context.Context, args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, runtimeErrorf("TypeError", 0, "enumerate() takes one or two arguments")
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if len(args) == 2 {
		s, ok := asInt(args[1])
		if !ok {
			return nil, runtimeErrorf("TypeError", 0, "enumerate() start must be int")
		}
		start = s
	}
	out := &List{Items: make([]any, len(items))}
	for i, item := range items {
		out.Items[i] = &Tuple{Items: []any{start + int64(i), item}}
	}
	return out, nil
}

func builtinType(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, runtimeErrorf("TypeError", 0, "type() takes exactly one argument")
	}
	return fmt.Sprintf("<class '%s'>", TypeName(args[0])), nil
}

func mathModule() map[string]any {
	oneFloat := func(name string, fn func(float64) float64) GoFunc {
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "math.%s() takes exactly one argument", name)
			}
			f, ok := asFloat(args[0])
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "math.%s() argument must be a number", name)
			}
			return fn(f), nil
		}
	}
	return map[string]any{
		"pi":    math.Pi,
		"e":     math.E,
		"sqrt":  oneFloat("sqrt", math.Sqrt),
		"floor": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "math.floor() takes exactly one argument")
			}
			f, ok := asFloat(args[0])
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "math.floor() argument must be a number")
			}
			return int64(math.Floor(f)), nil
		}),
		"ceil": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "math.ceil() takes exactly one argument")
			}
			f, ok := asFloat(args[0])
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "math.ceil() argument must be a number")
			}
			return int64(math.Ceil(f)), nil
		}),
		"log":   oneFloat("log", math.Log),
		"log10": oneFloat("log10", math.Log10),
		"exp":   oneFloat("exp", math.Exp),
		"sin":   oneFloat("sin", math.Sin),
		"cos":   oneFloat("cos", math.Cos),
		"tan":   oneFloat("tan", math.Tan),
		"pow": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 2 {
				return nil, runtimeErrorf("TypeError", 0, "math.pow() takes exactly two arguments")
			}
			a, ok1 := asFloat(args[0])
			b, ok2 := asFloat(args[1])
			if !ok1 || !ok2 {
				return nil, runtimeErrorf("TypeError", 0, "math.pow() arguments must be numbers")
			}
			return math.Pow(a, b), nil
		}),
	}
}

func jsonModule() map[string]any {
	return map[string]any{
		"dumps": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "json.dumps() takes exactly one argument")
			}
			data, err := json.Marshal(toJSONValue(args[0]))
			if err != nil {
				return nil, runtimeErrorf("TypeError", 0, "object is not JSON serializable: %v", err)
			}
			return string(data), nil
		}),
		"loads": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "json.loads() takes exactly one argument")
			}
			text, ok := args[0].(string)
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "json.loads() argument must be str")
			}
			var decoded any
			if err := json.Unmarshal([]byte(text), &decoded); err != nil {
				return nil, runtimeErrorf("ValueError", 0, "invalid JSON: %v", err)
			}
			return FromJSONValue(decoded), nil
		}),
	}
}

// toJSONValue converts interpreter values into plain Go values json.Marshal
// understands.
func toJSONValue(value any) any {
	switch v := value.(type) {
	case *List:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = toJSONValue(item)
		}
		return out
	case *Tuple:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = toJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = toJSONValue(item)
		}
		return out
	default:
		return v
	}
}

// FromJSONValue converts decoded JSON into interpreter values: arrays become
// lists, numbers collapse to int when integral.
func FromJSONValue(value any) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = FromJSONValue(item)
		}
		return &List{Items: out}
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = FromJSONValue(item)
		}
		return out
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return int64(v)
		}
		return v
	default:
		return v
	}
}
