package script

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string, extra map[string]any) (any, string) {
	t.Helper()
	value, out, err := tryRun(src, extra)
	require.NoError(t, err)
	return value, out
}

func tryRun(src string, extra map[string]any) (any, string, error) {
	module, err := Parse(src)
	if err != nil {
		return nil, "", err
	}
	StripKeywords(module)
	EnsureResultReturn(module)

	var stdout bytes.Buffer
	globals := Builtins(&stdout)
	for name, value := range extra {
		globals[name] = value
	}
	interp := NewInterp(context.Background(), globals, &stdout)
	value, err := interp.Run(module)
	return value, stdout.String(), err
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unclosed paren", "x = (1 + 2"},
		{"bad indent", "if True:\nx = 1"},
		{"unterminated string", `x = "abc`},
		{"assign to literal", "3 = x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "SyntaxError")
		})
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"precedence", "return 2 + 3 * 4", int64(14)},
		{"parens", "return (2 + 3) * 4", int64(20)},
		{"true division", "return 7 / 2", 3.5},
		{"floor division", "return 7 // 2", int64(3)},
		{"negative floor division", "return -7 // 2", int64(-4)},
		{"modulo", "return -7 % 3", int64(2)},
		{"power", "return 2 ** 10", int64(1024)},
		{"unary minus", "return -(3 + 4)", int64(-7)},
		{"float promotion", "return 1 + 2.5", 3.5},
		{"string concat", `return "foo" + "bar"`, "foobar"},
		{"string repeat", `return "ab" * 3`, "ababab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, _ := run(t, tt.src, nil)
			assert.Equal(t, tt.want, value)
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	_, _, err := tryRun("return 1 / 0", nil)
	require.Error(t, err)
	assert.Equal(t, "ZeroDivisionError: division by zero", err.Error())
}

func TestControlFlow(t *testing.T) {
	t.Run("if elif else", func(t *testing.T) {
		src := `
x = 7
if x > 10:
    return "big"
elif x > 5:
    return "medium"
else:
    return "small"
`
		value, _ := run(t, src, nil)
		assert.Equal(t, "medium", value)
	})

	t.Run("for with break and continue", func(t *testing.T) {
		src := `
total = 0
for i in range(10):
    if i == 3:
        continue
    if i == 6:
        break
    total += i
return total
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(0+1+2+4+5), value)
	})

	t.Run("while", func(t *testing.T) {
		src := `
n = 1
while n < 100:
    n = n * 2
return n
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(128), value)
	})

	t.Run("tuple unpacking in for", func(t *testing.T) {
		src := `
pairs = [(1, "a"), (2, "b")]
out = []
for num, letter in pairs:
    out.append(f"{num}{letter}")
return out
`
		value, _ := run(t, src, nil)
		list := value.(*List)
		assert.Equal(t, []any{"1a", "2b"}, list.Items)
	})
}

func TestFunctions(t *testing.T) {
	t.Run("def and call", func(t *testing.T) {
		src := `
def add(a, b):
    return a + b
return add(2, 3)
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(5), value)
	})

	t.Run("closure", func(t *testing.T) {
		src := `
base = 10
def offset(x):
    return base + x
return offset(5)
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(15), value)
	})

	t.Run("recursion", func(t *testing.T) {
		src := `
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)
return fib(10)
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(55), value)
	})

	t.Run("arity mismatch", func(t *testing.T) {
		src := `
def f(a, b):
    return a
return f(1)
`
		_, _, err := tryRun(src, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TypeError")
	})
}

func TestDataStructures(t *testing.T) {
	t.Run("list ops", func(t *testing.T) {
		src := `
xs = [3, 1, 2]
xs.append(4)
ys = sorted(xs)
return ys[0] + ys[-1]
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(5), value)
	})

	t.Run("dict ops", func(t *testing.T) {
		src := `
d = {"a": 1, "b": 2}
d["c"] = 3
return d.get("c") + d.get("missing", 10)
`
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(13), value)
	})

	t.Run("list comprehension", func(t *testing.T) {
		src := `return [x * x for x in range(5) if x % 2 == 0]`
		value, _ := run(t, src, nil)
		list := value.(*List)
		assert.Equal(t, []any{int64(0), int64(4), int64(16)}, list.Items)
	})

	t.Run("slicing", func(t *testing.T) {
		src := `
s = "hello world"
return s[:5] + s[-5:]
`
		value, _ := run(t, src, nil)
		assert.Equal(t, "helloworld", value)
	})

	t.Run("in operator", func(t *testing.T) {
		value, _ := run(t, `return "err" in "error" and 2 in [1, 2, 3] and "x" not in {"y": 1}`, nil)
		assert.Equal(t, true, value)
	})
}

func TestFStrings(t *testing.T) {
	src := `
name = "world"
count = 3
return f"hello {name}, {count + 1} times"
`
	value, _ := run(t, src, nil)
	assert.Equal(t, "hello world, 4 times", value)
}

func TestPrintGoesToStdout(t *testing.T) {
	src := `
print("a", 1, [2, 3])
print("b")
`
	value, out := run(t, src, nil)
	assert.Nil(t, value)
	assert.Equal(t, "a 1 [2, 3]\nb\n", out)
}

func TestStringMethods(t *testing.T) {
	src := `
s = "  Hello, World  "
parts = s.strip().lower().split(", ")
return "-".join(parts)
`
	value, _ := run(t, src, nil)
	assert.Equal(t, "hello-world", value)
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"len string", `return len("abc")`, int64(3)},
		{"sum", "return sum([1, 2, 3])", int64(6)},
		{"min max varargs", "return min(3, 1, 2) + max(3, 1, 2)", int64(4)},
		{"abs", "return abs(-4)", int64(4)},
		{"round digits", "return round(3.14159, 2)", 3.14},
		{"int from string", `return int("42")`, int64(42)},
		{"str of float", "return str(2.5)", "2.5"},
		{"enumerate", `return [f"{i}:{v}" for i, v in enumerate(["a", "b"])]`, nil},
		{"math module", "return math.floor(math.sqrt(10))", int64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, _ := run(t, tt.src, nil)
			if tt.want != nil {
				assert.Equal(t, tt.want, value)
			}
		})
	}
}

func TestJSONModule(t *testing.T) {
	src := `
data = json.loads('{"items": [1, 2], "name": "x"}')
data["items"].append(3)
return json.dumps(data)
`
	value, _ := run(t, src, nil)
	assert.JSONEq(t, `{"items": [1, 2, 3], "name": "x"}`, value.(string))
}

func TestHashlibDigests(t *testing.T) {
	value, _ := run(t, "import hashlib\nresult = hashlib.sha256(\"abc\")", nil)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", value)

	value, _ = run(t, "result = hashlib.md5(\"abc\")", nil)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", value)

	value, _ = run(t, "result = hashlib.sha1(\"abc\")", nil)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", value)
}

func TestImportStatements(t *testing.T) {
	t.Run("allowed module", func(t *testing.T) {
		value, _ := run(t, "import math\nresult = math.sqrt(16)", nil)
		assert.Equal(t, 4.0, value)
	})

	t.Run("alias binds the module", func(t *testing.T) {
		value, _ := run(t, "import json as j\nreturn j.dumps([1, 2])", nil)
		assert.Equal(t, "[1,2]", value)
	})

	t.Run("multiple modules on one line", func(t *testing.T) {
		value, _ := run(t, "import math, json\nresult = json.dumps(int(math.pow(2, 3)))", nil)
		assert.Equal(t, "8", value)
	})

	t.Run("unknown module fails", func(t *testing.T) {
		_, _, err := tryRun("import os", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ImportError")
		assert.Contains(t, err.Error(), "No module named 'os'")
	})

	t.Run("a bound function is not a module", func(t *testing.T) {
		search := GoFunc(func(_ context.Context, args []any) (any, error) {
			return "hit", nil
		})
		_, _, err := tryRun("import search", map[string]any{"search": search})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No module named 'search'")
	})
}

func TestPrintRendersErrorValues(t *testing.T) {
	fail := GoFunc(func(_ context.Context, args []any) (any, error) {
		return errors.New("Search failed: quota exceeded"), nil
	})
	_, out := run(t, "print(fail())", map[string]any{"fail": fail})
	assert.Equal(t, "Search failed: quota exceeded\n", out)
}

func TestAwaitIsTransparent(t *testing.T) {
	fetch := GoFunc(func(_ context.Context, args []any) (any, error) {
		return "data", nil
	})
	value, _ := run(t, "return await fetch()", map[string]any{"fetch": fetch})
	assert.Equal(t, "data", value)
}

func TestKeywordArgsBecomePositional(t *testing.T) {
	var got []any
	tool := GoFunc(func(_ context.Context, args []any) (any, error) {
		got = append([]any{}, args...)
		return nil, nil
	})
	run(t, `tool("a", limit=5, deep=True)`, map[string]any{"tool": tool})
	assert.Equal(t, []any{"a", int64(5), true}, got)
}

func TestEnsureResultReturn(t *testing.T) {
	t.Run("appends return for result assignment", func(t *testing.T) {
		value, _ := run(t, "result = 1 + 2", nil)
		assert.Equal(t, int64(3), value)
	})

	t.Run("no result variable means no implicit return", func(t *testing.T) {
		value, _ := run(t, "x = 1 + 2", nil)
		assert.Nil(t, value)
	})

	t.Run("explicit return wins", func(t *testing.T) {
		src := "result = 1\nreturn 99"
		value, _ := run(t, src, nil)
		assert.Equal(t, int64(99), value)
	})
}

func TestCountCalls(t *testing.T) {
	src := `
def helper(x):
    return f(x) + g(x)
a = helper(1)
b = h(a)
`
	module, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, 4, CountCalls(module))
}

func TestLocalDefs(t *testing.T) {
	src := `
def outer():
    def inner():
        pass
    return inner
x = outer()
`
	module, err := Parse(src)
	require.NoError(t, err)
	defs := LocalDefs(module)
	assert.True(t, defs["outer"])
	assert.True(t, defs["inner"])
	assert.Len(t, defs, 2)
}

func TestLocalDefShadowsGlobal(t *testing.T) {
	hostCalled := false
	host := GoFunc(func(_ context.Context, args []any) (any, error) {
		hostCalled = true
		return "host", nil
	})
	src := `
def search(q):
    return "local " + q
return search("x")
`
	value, _ := run(t, src, map[string]any{"search": host})
	assert.Equal(t, "local x", value)
	assert.False(t, hostCalled)
}

func TestNameError(t *testing.T) {
	_, _, err := tryRun("return undefined_name", nil)
	require.Error(t, err)
	assert.Equal(t, "NameError: name 'undefined_name' is not defined", err.Error())
}

func TestIndexErrors(t *testing.T) {
	t.Run("list out of range", func(t *testing.T) {
		_, _, err := tryRun("return [1, 2][5]", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IndexError")
	})

	t.Run("missing dict key", func(t *testing.T) {
		_, _, err := tryRun(`return {"a": 1}["b"]`, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KeyError")
	})
}

func TestContextCancellationStopsLoops(t *testing.T) {
	module, err := Parse("while True:\n    pass")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var stdout bytes.Buffer
	interp := NewInterp(ctx, Builtins(&stdout), &stdout)

	done := make(chan error, 1)
	go func() {
		_, err := interp.Run(module)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("interpreter did not stop on context deadline")
	}
}

func TestBoolOpReturnsOperand(t *testing.T) {
	value, _ := run(t, `return "" or "fallback"`, nil)
	assert.Equal(t, "fallback", value)

	value, _ = run(t, `return "first" and "second"`, nil)
	assert.Equal(t, "second", value)
}

func TestSingleLineSuite(t *testing.T) {
	src := `
x = 5
if x > 3: return "yes"
return "no"
`
	value, _ := run(t, src, nil)
	assert.Equal(t, "yes", value)
}

func TestAugmentedAssignOnSubscript(t *testing.T) {
	src := `
d = {"count": 1}
d["count"] += 4
return d["count"]
`
	value, _ := run(t, src, nil)
	assert.Equal(t, int64(5), value)
}
