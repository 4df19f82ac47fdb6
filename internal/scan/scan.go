// Package scan extracts structural flakiness signals from test source.
//
// Go sources are parsed and walked as an AST, scoped to the named test
// function, which keeps false positives down compared to raw pattern
// matching. Non-Go or unparseable sources fall back to a line-oriented
// regex scan over the whole text.
package scan

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/flakeseer/flakeseer/internal/model"
)

// Signal is one structural evidence hit for a cause.
type Signal struct {
	Cause   model.Cause
	Line    int
	Snippet string
}

// Profile holds all signals found for one test.
type Profile struct {
	Signals map[model.Cause][]Signal
}

// Hits returns the number of signals recorded for a cause.
func (p *Profile) Hits(c model.Cause) int {
	if p == nil {
		return 0
	}
	return len(p.Signals[c])
}

// Evidence renders a cause's signals as human-readable strings.
func (p *Profile) Evidence(c model.Cause) []string {
	if p == nil {
		return nil
	}
	var out []string
	for _, s := range p.Signals[c] {
		out = append(out, fmt.Sprintf("line %d: %s", s.Line, s.Snippet))
	}
	return out
}

func (p *Profile) add(c model.Cause, line int, snippet string) {
	if p.Signals == nil {
		p.Signals = make(map[model.Cause][]Signal)
	}
	p.Signals[c] = append(p.Signals[c], Signal{Cause: c, Line: line, Snippet: snippet})
}

// Scan analyzes the source of one test. filename selects the parse
// mode: .go files use the AST scanner scoped to testName, anything else
// uses the generic fallback. src may be nil/empty, yielding an empty
// profile (classification then degrades to unknown).
func Scan(filename string, src []byte, testName string) *Profile {
	p := &Profile{}
	if len(src) == 0 {
		return p
	}

	if strings.HasSuffix(filename, ".go") {
		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
		if err == nil {
			scanGoFile(p, fset, file, src, testName)
			return p
		}
		// fall through to the generic scanner on parse failure
	}

	scanGeneric(p, string(src))
	return p
}

// timeCalls and friends enumerate selector calls treated as signals.
var (
	timeCalls   = set("time.Now", "time.Since", "time.Until", "time.Sleep", "time.After")
	randCalls   = set("rand.Int", "rand.Intn", "rand.Int31", "rand.Int63", "rand.Float32", "rand.Float64", "rand.Perm", "rand.Shuffle", "rand.ExpFloat64", "rand.NormFloat64", "uuid.New", "uuid.NewString", "uuid.NewRandom")
	syncTypes   = set("sync.WaitGroup", "sync.Mutex", "sync.RWMutex", "sync.Once", "atomic.Value", "errgroup.Group")
	globalCalls = set("os.Setenv", "os.Unsetenv")
	ioCalls     = set("http.Get", "http.Post", "http.Head", "http.PostForm", "net.Dial", "net.DialTimeout", "os.Open", "os.Create", "os.ReadFile", "os.WriteFile", "os.Remove", "http.NewRequest")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func scanGoFile(p *Profile, fset *token.FileSet, file *ast.File, src []byte, testName string) {
	fn := findFunc(file, testName)
	if fn == nil || fn.Body == nil {
		return
	}

	// Package-level vars are targets for global-state writes.
	pkgVars := packageVars(file)
	// Map-typed locals are targets for order-dependent iteration.
	mapVars := mapTypedVars(fn)
	seeded := hasFixedSeed(fn)

	snippet := func(n ast.Node) string {
		start := fset.Position(n.Pos()).Offset
		end := fset.Position(n.End()).Offset
		if start < 0 || end > len(src) || start >= end {
			return ""
		}
		s := strings.Join(strings.Fields(string(src[start:end])), " ")
		if len(s) > 120 {
			s = s[:117] + "..."
		}
		return s
	}
	line := func(n ast.Node) int { return fset.Position(n.Pos()).Line }

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			name := selectorName(node.Fun)
			switch {
			case timeCalls[name]:
				p.add(model.CauseTimeDependent, line(node), snippet(node))
			case randCalls[name] && !seeded:
				p.add(model.CauseRandomDependent, line(node), snippet(node))
			case globalCalls[name]:
				p.add(model.CauseGlobalState, line(node), snippet(node))
			case ioCalls[name]:
				p.add(model.CauseExternalDependency, line(node), snippet(node))
			case name == "maps.Keys" || name == "maps.Values":
				p.add(model.CauseOrderDependent, line(node), snippet(node))
			}
			// exact float equality through assertion helpers
			if (name == "assert.Equal" || name == "require.Equal") && hasFloatArg(node) {
				p.add(model.CauseFloatingPoint, line(node), snippet(node))
			}
		case *ast.GoStmt:
			p.add(model.CauseConcurrency, line(node), snippet(node))
			return true
		case *ast.SendStmt:
			p.add(model.CauseConcurrency, line(node), snippet(node))
		case *ast.UnaryExpr:
			if node.Op == token.ARROW {
				p.add(model.CauseConcurrency, line(node), snippet(node))
			}
		case *ast.CompositeLit:
			if name := typeName(node.Type); syncTypes[name] {
				p.add(model.CauseConcurrency, line(node), snippet(node))
			}
		case *ast.ValueSpec:
			if name := typeName(node.Type); syncTypes[name] {
				p.add(model.CauseConcurrency, line(node), snippet(node))
			}
		case *ast.RangeStmt:
			switch x := node.X.(type) {
			case *ast.Ident:
				if mapVars[x.Name] {
					p.add(model.CauseOrderDependent, line(node), snippet(node))
				}
			case *ast.CompositeLit:
				if isMapType(x.Type) {
					p.add(model.CauseOrderDependent, line(node), snippet(node))
				}
			}
		case *ast.BinaryExpr:
			if (node.Op == token.EQL || node.Op == token.NEQ) && (isFloatExpr(node.X) || isFloatExpr(node.Y)) {
				p.add(model.CauseFloatingPoint, line(node), snippet(node))
			}
		case *ast.AssignStmt:
			if node.Tok == token.ASSIGN {
				for _, lhs := range node.Lhs {
					if ident, ok := lhs.(*ast.Ident); ok && pkgVars[ident.Name] {
						p.add(model.CauseGlobalState, line(node), snippet(node))
					}
				}
			}
		}
		return true
	})
}

func findFunc(file *ast.File, name string) *ast.FuncDecl {
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name {
			return fn
		}
	}
	return nil
}

func packageVars(file *ast.File) map[string]bool {
	vars := make(map[string]bool)
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			if vs, ok := spec.(*ast.ValueSpec); ok {
				for _, name := range vs.Names {
					vars[name.Name] = true
				}
			}
		}
	}
	return vars
}

// mapTypedVars collects names declared with a map type inside fn, from
// var declarations and make(map[...]...) assignments.
func mapTypedVars(fn *ast.FuncDecl) map[string]bool {
	vars := make(map[string]bool)
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.ValueSpec:
			if isMapType(node.Type) {
				for _, name := range node.Names {
					vars[name.Name] = true
				}
			}
		case *ast.AssignStmt:
			for i, rhs := range node.Rhs {
				if i >= len(node.Lhs) {
					break
				}
				ident, ok := node.Lhs[i].(*ast.Ident)
				if !ok {
					continue
				}
				switch r := rhs.(type) {
				case *ast.CallExpr:
					if fun, ok := r.Fun.(*ast.Ident); ok && fun.Name == "make" && len(r.Args) > 0 && isMapType(r.Args[0]) {
						vars[ident.Name] = true
					}
				case *ast.CompositeLit:
					if isMapType(r.Type) {
						vars[ident.Name] = true
					}
				}
			}
		}
		return true
	})
	return vars
}

// hasFixedSeed reports whether fn seeds math/rand with a constant,
// which suppresses the random_dependent signal.
func hasFixedSeed(fn *ast.FuncDecl) bool {
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		name := selectorName(call.Fun)
		if (name == "rand.Seed" || name == "rand.NewSource" || name == "rand.New") && len(call.Args) > 0 {
			if isConstExpr(call.Args[0]) {
				found = true
			}
		}
		return true
	})
	return found
}

func isConstExpr(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.BasicLit:
		return true
	case *ast.CallExpr:
		// rand.New(rand.NewSource(42))
		if name := selectorName(v.Fun); name == "rand.NewSource" && len(v.Args) > 0 {
			return isConstExpr(v.Args[0])
		}
	}
	return false
}

func selectorName(e ast.Expr) string {
	sel, ok := e.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	ident, ok := sel.X.(*ast.Ident)
	if !ok {
		return ""
	}
	return ident.Name + "." + sel.Sel.Name
}

func typeName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.SelectorExpr:
		return selectorName(t)
	case *ast.StarExpr:
		return typeName(t.X)
	}
	return ""
}

func isMapType(e ast.Expr) bool {
	_, ok := e.(*ast.MapType)
	return ok
}

func isFloatExpr(e ast.Expr) bool {
	switch v := e.(type) {
	case *ast.BasicLit:
		return v.Kind == token.FLOAT
	case *ast.BinaryExpr:
		return isFloatExpr(v.X) || isFloatExpr(v.Y)
	case *ast.ParenExpr:
		return isFloatExpr(v.X)
	}
	return false
}

func hasFloatArg(call *ast.CallExpr) bool {
	for _, arg := range call.Args {
		if isFloatExpr(arg) {
			return true
		}
	}
	return false
}

// genericPatterns drives the fallback scanner for non-Go sources, one
// regex table per cause. Patterns cover the Python idioms of pytest
// suites alongside generic terms.
var genericPatterns = []struct {
	cause    model.Cause
	patterns []*regexp.Regexp
}{
	{model.CauseTimeDependent, compile(
		`\bdatetime\.now\(`, `\btime\.time\(`, `\btime\.sleep\(`, `\butcnow\(`, `\btoday\(`, `\btime\.Now\(`,
	)},
	{model.CauseRandomDependent, compile(
		`\brandom\.`, `\buuid4\(`, `\buuid\.uuid4\(`, `\brandint\(`, `\bshuffle\(`, `\bchoice\(`, `\brandrange\(`,
	)},
	{model.CauseConcurrency, compile(
		`\bthreading\.`, `\bThread\(`, `\basyncio\.`, `\basync def\b`, `\bawait\b`, `\bmultiprocessing\.`,
	)},
	{model.CauseOrderDependent, compile(
		`\bset\(`, `\.keys\(\)`, `\.values\(\)`, `\.items\(\)`,
	)},
	{model.CauseFloatingPoint, compile(
		`assert.*==.*\d+\.\d+`, `assertEqual.*\d+\.\d+`,
	)},
	{model.CauseGlobalState, compile(
		`\bglobal\b`, `\bos\.environ`, `\b__class__\.`,
	)},
	{model.CauseExternalDependency, compile(
		`\brequests\.`, `\bhttp`, `\bsocket\.`, `\bopen\(`, `\burl`,
	)},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func scanGeneric(p *Profile, src string) {
	for i, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		for _, gp := range genericPatterns {
			for _, re := range gp.patterns {
				if re.MatchString(line) {
					p.add(gp.cause, i+1, trimmed)
					break
				}
			}
		}
	}
}
