package bitvector

import "math/big"

// Env supplies concrete byte vectors for named symbolic arrays so that an
// expression built on top of KindSymbolicRead leaves can be evaluated to a
// concrete value. Bytes are ordered MSB-first, matching how SymbolicRead
// is documented to assemble its bit-vector.
type Env map[string][]byte

// Eval computes the concrete value of e under env. It panics if e
// references a name absent from env; callers (the solver facade, the
// enumeration backend) are expected to have already validated that every
// free name in e has a binding.
func Eval(e *Expr, env Env) *big.Int {
	switch e.Kind {
	case KindConst:
		return new(big.Int).Set(e.Value)
	case KindSymbolicRead:
		bytes, ok := env[e.Name]
		if !ok {
			panic("bitvector: eval: unbound symbolic array " + e.Name)
		}
		v := new(big.Int)
		for _, b := range bytes {
			v.Lsh(v, 8)
			v.Or(v, big.NewInt(int64(b)))
		}
		return mask(v, e.Width)
	case KindNot:
		a := Eval(e.Children[0], env)
		return mask(new(big.Int).Not(a), e.Width)
	case KindExtract:
		a := Eval(e.Children[0], env)
		shifted := new(big.Int).Rsh(a, e.Offset)
		return mask(shifted, e.Width)
	case KindSext:
		a := e.Children[0]
		av := Eval(a, env)
		if av.Bit(int(a.Width)-1) == 1 {
			ext := new(big.Int).Lsh(big.NewInt(1), e.Width)
			ext.Sub(ext, new(big.Int).Lsh(big.NewInt(1), a.Width))
			av = new(big.Int).Or(av, ext)
		}
		return mask(av, e.Width)
	case KindZext:
		return mask(Eval(e.Children[0], env), e.Width)
	case KindSelect:
		cond := Eval(e.Children[0], env)
		if cond.Sign() != 0 {
			return Eval(e.Children[1], env)
		}
		return Eval(e.Children[2], env)
	case KindConcat:
		hi := Eval(e.Children[0], env)
		lo := Eval(e.Children[1], env)
		r := new(big.Int).Lsh(hi, e.Children[1].Width)
		r.Or(r, lo)
		return mask(r, e.Width)
	}

	a := Eval(e.Children[0], env)
	b := Eval(e.Children[1], env)
	opWidth := e.Children[0].Width

	switch e.Kind {
	case KindEq:
		return boolInt(a.Cmp(b) == 0)
	case KindNe:
		return boolInt(a.Cmp(b) != 0)
	case KindUlt:
		return boolInt(a.Cmp(b) < 0)
	case KindUle:
		return boolInt(a.Cmp(b) <= 0)
	case KindUge:
		return boolInt(a.Cmp(b) >= 0)
	case KindSlt:
		return boolInt(toSigned(a, opWidth).Cmp(toSigned(b, opWidth)) < 0)
	case KindSge:
		return boolInt(toSigned(a, opWidth).Cmp(toSigned(b, opWidth)) >= 0)
	case KindAdd:
		return mask(new(big.Int).Add(a, b), e.Width)
	case KindSub:
		return mask(new(big.Int).Sub(a, b), e.Width)
	case KindMul:
		return mask(new(big.Int).Mul(a, b), e.Width)
	case KindUdiv:
		if b.Sign() == 0 {
			return new(big.Int)
		}
		return mask(new(big.Int).Div(a, b), e.Width)
	case KindUrem:
		if b.Sign() == 0 {
			return new(big.Int).Set(a)
		}
		return mask(new(big.Int).Mod(a, b), e.Width)
	case KindSdiv:
		if b.Sign() == 0 {
			return new(big.Int)
		}
		sa, sb := toSigned(a, opWidth), toSigned(b, opWidth)
		q := new(big.Int).Quo(sa, sb)
		return mask(q, e.Width)
	case KindSrem:
		if b.Sign() == 0 {
			return new(big.Int).Set(a)
		}
		sa, sb := toSigned(a, opWidth), toSigned(b, opWidth)
		r := new(big.Int).Rem(sa, sb)
		return mask(r, e.Width)
	case KindLshl:
		return mask(new(big.Int).Lsh(a, uint(b.Uint64())), e.Width)
	case KindLshr:
		return mask(new(big.Int).Rsh(a, uint(b.Uint64())), e.Width)
	case KindAshr:
		sa := toSigned(a, opWidth)
		return mask(new(big.Int).Rsh(sa, uint(b.Uint64())), e.Width)
	case KindAnd:
		return mask(new(big.Int).And(a, b), e.Width)
	case KindOr:
		return mask(new(big.Int).Or(a, b), e.Width)
	case KindXor:
		return mask(new(big.Int).Xor(a, b), e.Width)
	}

	panic("bitvector: eval: unhandled kind " + e.Kind.String())
}

func boolInt(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// toSigned reinterprets an unsigned width-bit value as two's complement.
func toSigned(v *big.Int, width uint) *big.Int {
	if width == 0 || v.Bit(int(width)-1) == 0 {
		return new(big.Int).Set(v)
	}
	full := new(big.Int).Lsh(big.NewInt(1), width)
	return new(big.Int).Sub(v, full)
}
