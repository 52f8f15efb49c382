// Package query holds the boolean predicate tree used to select packages.
//
// A Predicate can be evaluated two ways: in-process against a loaded
// models.Package (Match), or pushed down to the relational store as a gorm
// clause (Expression). Both renderings of one tree select the same packages.
package query

import (
	"strings"

	"gorm.io/gorm/clause"

	"github.com/xelth-com/wingetpro/internal/models"
)

// Predicate selects packages.
type Predicate interface {
	Match(p *models.Package) bool
	Expression() clause.Expression
}

// Column is a package attribute a keyword can be matched against.
type Column string

const (
	ColumnName       Column = "name"
	ColumnIdentifier Column = "identifier"
)

func (c Column) value(p *models.Package) string {
	switch c {
	case ColumnName:
		return p.Name
	case ColumnIdentifier:
		return p.Identifier
	}
	return ""
}

type containsPredicate struct {
	column  Column
	keyword string
}

// Contains matches packages whose column contains keyword, ignoring case.
func Contains(column Column, keyword string) Predicate {
	return containsPredicate{column: column, keyword: keyword}
}

func (c containsPredicate) Match(p *models.Package) bool {
	return strings.Contains(strings.ToLower(c.column.value(p)), strings.ToLower(c.keyword))
}

func (c containsPredicate) Expression() clause.Expression {
	return clause.Expr{
		SQL:  "LOWER(packages." + string(c.column) + `) LIKE ? ESCAPE '\'`,
		Vars: []interface{}{"%" + escapeLike(strings.ToLower(c.keyword)) + "%"},
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type constPredicate bool

// All matches every package.
func All() Predicate { return constPredicate(true) }

// None matches no package.
func None() Predicate { return constPredicate(false) }

func (c constPredicate) Match(*models.Package) bool { return bool(c) }

func (c constPredicate) Expression() clause.Expression {
	if c {
		return clause.Expr{SQL: "1 = 1"}
	}
	return clause.Expr{SQL: "1 = 0"}
}

type hasVersions struct{}

// HasVersions matches packages with at least one version. In-process
// evaluation requires Versions to be loaded.
func HasVersions() Predicate { return hasVersions{} }

func (hasVersions) Match(p *models.Package) bool { return len(p.Versions) > 0 }

func (hasVersions) Expression() clause.Expression {
	return clause.Expr{SQL: "EXISTS (SELECT 1 FROM versions WHERE versions.package_id = packages.id)"}
}

type andPredicate []Predicate

// And matches when every operand matches. With no operands it matches
// everything.
func And(preds ...Predicate) Predicate {
	switch len(preds) {
	case 0:
		return All()
	case 1:
		return preds[0]
	}
	return andPredicate(preds)
}

func (a andPredicate) Match(p *models.Package) bool {
	for _, pred := range a {
		if !pred.Match(p) {
			return false
		}
	}
	return true
}

func (a andPredicate) Expression() clause.Expression {
	exprs := make([]clause.Expression, 0, len(a))
	for _, pred := range a {
		exprs = append(exprs, pred.Expression())
	}
	return clause.And(exprs...)
}

type orPredicate []Predicate

// Or matches when any operand matches. With no operands it matches
// nothing; callers wanting a vacuous "no alternatives given" should skip
// the Or entirely.
func Or(preds ...Predicate) Predicate {
	switch len(preds) {
	case 0:
		return None()
	case 1:
		return preds[0]
	}
	return orPredicate(preds)
}

func (o orPredicate) Match(p *models.Package) bool {
	for _, pred := range o {
		if pred.Match(p) {
			return true
		}
	}
	return false
}

func (o orPredicate) Expression() clause.Expression {
	exprs := make([]clause.Expression, 0, len(o))
	for _, pred := range o {
		exprs = append(exprs, pred.Expression())
	}
	return clause.Or(exprs...)
}

// Filter applies pred in-process.
func Filter(pkgs []models.Package, pred Predicate) []models.Package {
	var out []models.Package
	for i := range pkgs {
		if pred.Match(&pkgs[i]) {
			out = append(out, pkgs[i])
		}
	}
	return out
}
