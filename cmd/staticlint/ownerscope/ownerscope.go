// Package ownerscope defines an analyzer that reports SQL statements on
// owned-record tables that do not mention the owner column.
//
// Every row of the expenses and invoices tables belongs to one user, and all
// reads and writes must be keyed by (id, user_id). The analyzer looks at the
// query argument of database/sql Exec, Query, QueryRow and Prepare calls
// (and their Context variants). Query text is taken from constant strings,
// from the format of fmt.Sprintf and through single-argument wrappers such as
// a placeholder rebinder. A "%s" table slot counts as an owned table.
//
// A statement that is deliberately unscoped, such as a global count, is
// marked with a //ownerscope:allow comment on the line of the call or of its
// query argument, or on the line above either.
package ownerscope

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"regexp"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const allowDirective = "ownerscope:allow"

var Analyzer = &analysis.Analyzer{
	Name:     "ownerscope",
	Doc:      "reports SQL on owned-record tables without a user_id predicate",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var (
	ownedTables string
	ownerColumn string
)

func init() {
	Analyzer.Flags.StringVar(&ownedTables, "tables", "expenses,invoices", "comma-separated owned-record tables")
	Analyzer.Flags.StringVar(&ownerColumn, "column", "user_id", "owner column that must appear in every statement")
}

var sqlMethods = map[string]int{
	"Exec":            0,
	"ExecContext":     1,
	"Query":           0,
	"QueryContext":    1,
	"QueryRow":        0,
	"QueryRowContext": 1,
	"Prepare":         0,
	"PrepareContext":  1,
}

func tablePattern() *regexp.Regexp {
	var names []string
	for _, table := range strings.Split(ownedTables, ",") {
		if table = strings.TrimSpace(table); table != "" {
			names = append(names, regexp.QuoteMeta(table))
		}
	}
	names = append(names, "%s")

	return regexp.MustCompile(`(?i)\b(?:from|update|into|join)\s+"?(` + strings.Join(names, "|") + `)"?(?:[\s(),;]|$)`)
}

func run(pass *analysis.Pass) (interface{}, error) {
	tables := tablePattern()
	owner := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(ownerColumn) + `\b`)
	allowed := allowedLines(pass)

	ins := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	ins.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)

		fn, ok := typeutil.Callee(pass.TypesInfo, call).(*types.Func)
		if !ok || fn.Pkg() == nil || fn.Pkg().Path() != "database/sql" {
			return
		}
		queryIndex, ok := sqlMethods[fn.Name()]
		if !ok || len(call.Args) <= queryIndex {
			return
		}

		query, ok := queryText(pass, call.Args[queryIndex])
		if !ok {
			return
		}

		match := tables.FindStringSubmatch(query)
		if match == nil || owner.MatchString(query) {
			return
		}

		if isAllowed(pass, allowed, call.Pos()) || isAllowed(pass, allowed, call.Args[queryIndex].Pos()) {
			return
		}

		pass.Reportf(call.Pos(), "query on owned table %q has no %s predicate", match[1], ownerColumn)
	})

	return nil, nil
}

// queryText resolves expr to SQL text when it can be known statically.
func queryText(pass *analysis.Pass, expr ast.Expr) (string, bool) {
	if tv, ok := pass.TypesInfo.Types[expr]; ok && tv.Value != nil && tv.Value.Kind() == constant.String {
		return constant.StringVal(tv.Value), true
	}

	switch e := expr.(type) {
	case *ast.ParenExpr:
		return queryText(pass, e.X)

	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return "", false
		}
		left, okLeft := queryText(pass, e.X)
		right, okRight := queryText(pass, e.Y)
		return left + right, okLeft && okRight

	case *ast.CallExpr:
		if fn, ok := typeutil.Callee(pass.TypesInfo, e).(*types.Func); ok && fn.FullName() == "fmt.Sprintf" {
			if len(e.Args) == 0 {
				return "", false
			}
			return queryText(pass, e.Args[0])
		}
		if len(e.Args) == 1 {
			return queryText(pass, e.Args[0])
		}
	}

	return "", false
}

// isAllowed reports whether the directive is on the line of pos or the line above.
func isAllowed(pass *analysis.Pass, allowed map[string]map[int]bool, pos token.Pos) bool {
	position := pass.Fset.Position(pos)
	return allowed[position.Filename][position.Line] || allowed[position.Filename][position.Line-1]
}

func allowedLines(pass *analysis.Pass) map[string]map[int]bool {
	result := map[string]map[int]bool{}
	for _, file := range pass.Files {
		for _, group := range file.Comments {
			for _, comment := range group.List {
				if !strings.Contains(comment.Text, allowDirective) {
					continue
				}
				position := pass.Fset.Position(comment.Slash)
				if result[position.Filename] == nil {
					result[position.Filename] = map[int]bool{}
				}
				result[position.Filename][position.Line] = true
			}
		}
	}
	return result
}
