package script

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

func stringsModule() map[string]any {
	oneStr := func(name string, fn func(string) any) GoFunc {
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "strings.%s() takes exactly one argument", name)
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "strings.%s() argument must be str", name)
			}
			return fn(s), nil
		}
	}
	return map[string]any{
		"upper":      oneStr("upper", func(s string) any { return strings.ToUpper(s) }),
		"lower":      oneStr("lower", func(s string) any { return strings.ToLower(s) }),
		"title":      oneStr("title", func(s string) any { return strings.Title(s) }), //nolint:staticcheck
		"strip":      oneStr("strip", func(s string) any { return strings.TrimSpace(s) }),
		"capitalize": oneStr("capitalize", func(s string) any {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
		}),
	}
}

func base64Module() map[string]any {
	return map[string]any{
		"b64encode": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "base64.b64encode() takes exactly one argument")
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "base64.b64encode() argument must be str")
			}
			return base64.StdEncoding.EncodeToString([]byte(s)), nil
		}),
		"b64decode": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "base64.b64decode() takes exactly one argument")
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "base64.b64decode() argument must be str")
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, runtimeErrorf("ValueError", 0, "invalid base64: %v", err)
			}
			return string(decoded), nil
		}),
	}
}

func reModule() map[string]any {
	compile := func(name, pattern string) (*regexp.Regexp, error) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, runtimeErrorf("ValueError", 0, "re.%s(): bad pattern: %v", name, err)
		}
		return re, nil
	}
	twoStr := func(name string, args []any) (string, string, error) {
		if len(args) != 2 {
			return "", "", runtimeErrorf("TypeError", 0, "re.%s() takes exactly two arguments", name)
		}
		pattern, ok1 := args[0].(string)
		text, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return "", "", runtimeErrorf("TypeError", 0, "re.%s() arguments must be str", name)
		}
		return pattern, text, nil
	}
	return map[string]any{
		// search returns the matched text or None; match groups are not modelled.
		"search": GoFunc(func(_ context.Context, args []any) (any, error) {
			pattern, text, err := twoStr("search", args)
			if err != nil {
				return nil, err
			}
			re, err := compile("search", pattern)
			if err != nil {
				return nil, err
			}
			if m := re.FindString(text); m != "" || re.MatchString(text) {
				return m, nil
			}
			return nil, nil
		}),
		"findall": GoFunc(func(_ context.Context, args []any) (any, error) {
			pattern, text, err := twoStr("findall", args)
			if err != nil {
				return nil, err
			}
			re, err := compile("findall", pattern)
			if err != nil {
				return nil, err
			}
			matches := re.FindAllString(text, -1)
			items := make([]any, len(matches))
			for i, m := range matches {
				items[i] = m
			}
			return &List{Items: items}, nil
		}),
		"sub": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 3 {
				return nil, runtimeErrorf("TypeError", 0, "re.sub() takes exactly three arguments")
			}
			pattern, ok1 := args[0].(string)
			repl, ok2 := args[1].(string)
			text, ok3 := args[2].(string)
			if !ok1 || !ok2 || !ok3 {
				return nil, runtimeErrorf("TypeError", 0, "re.sub() arguments must be str")
			}
			re, err := compile("sub", pattern)
			if err != nil {
				return nil, err
			}
			return re.ReplaceAllString(text, repl), nil
		}),
	}
}

func datetimeModule() map[string]any {
	return map[string]any{
		"now": GoFunc(func(_ context.Context, args []any) (any, error) {
			return time.Now().Format("2006-01-02 15:04:05"), nil
		}),
		"today": GoFunc(func(_ context.Context, args []any) (any, error) {
			return time.Now().Format("2006-01-02"), nil
		}),
		"timestamp": GoFunc(func(_ context.Context, args []any) (any, error) {
			return time.Now().Unix(), nil
		}),
	}
}

func randomModule() map[string]any {
	return map[string]any{
		"random": GoFunc(func(_ context.Context, args []any) (any, error) {
			return rand.Float64(), nil
		}),
		"randint": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 2 {
				return nil, runtimeErrorf("TypeError", 0, "random.randint() takes exactly two arguments")
			}
			a, ok1 := asInt(args[0])
			b, ok2 := asInt(args[1])
			if !ok1 || !ok2 {
				return nil, runtimeErrorf("TypeError", 0, "random.randint() arguments must be int")
			}
			if b < a {
				return nil, runtimeErrorf("ValueError", 0, "empty range for randint (%d, %d)", a, b)
			}
			return a + rand.Int63n(b-a+1), nil
		}),
		"uniform": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 2 {
				return nil, runtimeErrorf("TypeError", 0, "random.uniform() takes exactly two arguments")
			}
			a, ok1 := asFloat(args[0])
			b, ok2 := asFloat(args[1])
			if !ok1 || !ok2 {
				return nil, runtimeErrorf("TypeError", 0, "random.uniform() arguments must be numbers")
			}
			return a + rand.Float64()*(b-a), nil
		}),
		"choice": GoFunc(func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "random.choice() takes exactly one argument")
			}
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, runtimeErrorf("IndexError", 0, "cannot choose from an empty sequence")
			}
			return items[rand.Intn(len(items))], nil
		}),
	}
}

func hashlibModule() map[string]any {
	digest := func(name string, fn func([]byte) string) GoFunc {
		return func(_ context.Context, args []any) (any, error) {
			if len(args) != 1 {
				return nil, runtimeErrorf("TypeError", 0, "hashlib.%s() takes exactly one argument", name)
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, runtimeErrorf("TypeError", 0, "hashlib.%s() argument must be str", name)
			}
			return fn([]byte(s)), nil
		}
	}
	return map[string]any{
		// Each returns the hex digest directly.
		"md5": digest("md5", func(b []byte) string {
			sum := md5.Sum(b)
			return hex.EncodeToString(sum[:])
		}),
		"sha1": digest("sha1", func(b []byte) string {
			sum := sha1.Sum(b)
			return hex.EncodeToString(sum[:])
		}),
		"sha256": digest("sha256", func(b []byte) string {
			sum := sha256.Sum256(b)
			return hex.EncodeToString(sum[:])
		}),
	}
}
