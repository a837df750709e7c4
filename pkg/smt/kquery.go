package smt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
)

// Env maps a symbolic array name already declared by an earlier field of
// the input descriptor to the bit-vector expression reading it, exactly
// the binding FromString needs to resolve identifiers in a predicate.
type Env map[string]*bitvector.Expr

// FromString parses a small, fully-parenthesized predicate language (one
// S-expression per call) referencing symbolic arrays already bound in env,
// returning the resulting expression. It is deliberately not a full KQuery
// grammar (only the operator set bitvector exposes), since the engine
// only needs to round-trip the constraint strings the input-descriptor
// format embeds (see protocol/descriptor), not host an independent query
// language.
//
// Grammar:
//
//	expr    := ident | literal | '(' op expr* ')'
//	literal := decimal ':' width          e.g. "66:8"
//	op      := eq|ne|ult|ule|uge|slt|sge|add|sub|mul|udiv|sdiv|urem|srem|
//	           lshl|lshr|ashr|and|or|xor|not|concat|extract|sext|zext|select
//
// extract takes (extract offset width expr); sext/zext take (sext width expr).
func FromString(env Env, text string) (*bitvector.Expr, error) {
	p := &kqueryParser{tokens: tokenize(text)}
	e, err := p.parseExpr(env)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("smt: trailing tokens after expression: %v", p.tokens[p.pos:])
	}
	return e, nil
}

func tokenize(text string) []string {
	text = strings.ReplaceAll(text, "(", " ( ")
	text = strings.ReplaceAll(text, ")", " ) ")
	return strings.Fields(text)
}

type kqueryParser struct {
	tokens []string
	pos    int
}

func (p *kqueryParser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *kqueryParser) next() (string, error) {
	tok, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("smt: unexpected end of expression")
	}
	p.pos++
	return tok, nil
}

func (p *kqueryParser) parseExpr(env Env) (*bitvector.Expr, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}

	if tok == "(" {
		return p.parseForm(env)
	}
	if tok == ")" {
		return nil, fmt.Errorf("smt: unexpected ')'")
	}
	if e, ok := env[tok]; ok {
		return e, nil
	}
	return parseLiteral(tok)
}

func parseLiteral(tok string) (*bitvector.Expr, error) {
	parts := strings.SplitN(tok, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("smt: unbound identifier or malformed literal %q", tok)
	}
	value, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("smt: invalid literal value %q: %w", tok, err)
	}
	width, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("smt: invalid literal width %q: %w", tok, err)
	}
	return bitvector.ConstU64(uint(width), uint64(value)), nil
}

var binaryOps = map[string]func(a, b *bitvector.Expr) *bitvector.Expr{
	"eq": bitvector.Eq, "ne": bitvector.Ne,
	"ult": bitvector.Ult, "ule": bitvector.Ule, "uge": bitvector.Uge,
	"slt": bitvector.Slt, "sge": bitvector.Sge,
	"add": bitvector.Add, "sub": bitvector.Sub, "mul": bitvector.Mul,
	"udiv": bitvector.Udiv, "sdiv": bitvector.Sdiv,
	"urem": bitvector.Urem, "srem": bitvector.Srem,
	"lshl": bitvector.Lshl, "lshr": bitvector.Lshr, "ashr": bitvector.Ashr,
	"and": bitvector.And, "or": bitvector.Or, "xor": bitvector.Xor,
	"concat": bitvector.Concat,
}

func (p *kqueryParser) parseForm(env Env) (*bitvector.Expr, error) {
	op, err := p.next()
	if err != nil {
		return nil, err
	}

	switch op {
	case "not":
		a, err := p.parseExpr(env)
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(); err != nil {
			return nil, err
		}
		return bitvector.Not(a), nil
	case "extract":
		offset, err := p.parseUint()
		if err != nil {
			return nil, err
		}
		width, err := p.parseUint()
		if err != nil {
			return nil, err
		}
		a, err := p.parseExpr(env)
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(); err != nil {
			return nil, err
		}
		return bitvector.Extract(a, offset, width), nil
	case "sext", "zext":
		width, err := p.parseUint()
		if err != nil {
			return nil, err
		}
		a, err := p.parseExpr(env)
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(); err != nil {
			return nil, err
		}
		if op == "sext" {
			return bitvector.Sext(a, width), nil
		}
		return bitvector.Zext(a, width), nil
	case "select":
		cond, err := p.parseExpr(env)
		if err != nil {
			return nil, err
		}
		t, err := p.parseExpr(env)
		if err != nil {
			return nil, err
		}
		f, err := p.parseExpr(env)
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(); err != nil {
			return nil, err
		}
		return bitvector.Select(cond, t, f), nil
	}

	build, ok := binaryOps[op]
	if !ok {
		return nil, fmt.Errorf("smt: unknown operator %q", op)
	}
	a, err := p.parseExpr(env)
	if err != nil {
		return nil, err
	}
	b, err := p.parseExpr(env)
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	return build(a, b), nil
}

func (p *kqueryParser) parseUint() (uint, error) {
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("smt: expected integer, got %q: %w", tok, err)
	}
	return uint(v), nil
}

func (p *kqueryParser) expectClose() error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok != ")" {
		return fmt.Errorf("smt: expected ')', got %q", tok)
	}
	return nil
}
