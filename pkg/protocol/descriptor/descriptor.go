// Package descriptor decodes the bencoded symbolic-input-descriptor format
// the SPS sidecar emits in response to a packet: a list of field records,
// each naming a symbolic array and describing it as a concrete byte
// vector, a set of KQuery constraints, or an unconstrained symbolic
// value. Fields are concatenated MSB-first into one run's symbolic input.
package descriptor

import (
	"errors"
	"fmt"
	"io"

	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/protocol/bencode"
	"github.com/gitrdm/symconcolic/pkg/smt"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// toByteSize rounds bitsize up to the next byte boundary.
func toByteSize(bitsize uint64) int {
	if bitsize%8 == 0 {
		return int(bitsize / 8)
	}
	return int(bitsize/8) + 1
}

// hasPadding reports whether bitsize is not byte-aligned.
func hasPadding(bitsize uint64) bool { return bitsize%8 != 0 }

// Decode reads one descriptor message from r, installs every KQuery
// constraint it carries into tr's assumption set, pulls symbolic/concrete
// bytes via ctx, and returns the concatenated input value plus the
// cursor used by NextByte/RemainingBytes.
func Decode(r io.Reader, ctx *execctx.Context, tr *trace.Trace) (*Input, error) {
	data, err := bencode.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("descriptor: read bencode: %w", err)
	}

	list, ok := bencode.AsList(data)
	if !ok {
		return nil, fmt.Errorf("descriptor: top-level value is not a list")
	}

	d := &decoder{ctx: ctx, tr: tr, env: make(smt.Env)}
	value, err := d.decodeFields(list)
	if err != nil {
		return nil, err
	}

	return &Input{value: value, offset: value.Width()}, nil
}

type decoder struct {
	ctx *execctx.Context
	tr  *trace.Trace
	env smt.Env
}

func (d *decoder) decodeFields(list []bencode.Value) (concolic.Value, error) {
	var result concolic.Value
	first := true

	for _, elem := range list {
		field, ok := bencode.AsList(elem)
		if !ok || len(field) != 3 {
			return concolic.Value{}, fmt.Errorf("descriptor: invalid field record %v", elem)
		}

		nameBytes, ok := bencode.AsBytes(field[0])
		if !ok {
			return concolic.Value{}, fmt.Errorf("descriptor: field name is not a string")
		}
		bitsize, ok := bencode.AsInt(field[1])
		if !ok || bitsize < 0 {
			return concolic.Value{}, fmt.Errorf("descriptor: field bitsize is not a non-negative integer")
		}
		spec, ok := bencode.AsList(field[2])
		if !ok {
			return concolic.Value{}, fmt.Errorf("descriptor: field spec is not a list")
		}

		v, err := d.decodeField(string(nameBytes), uint64(bitsize), spec)
		if err != nil {
			return concolic.Value{}, err
		}

		if first {
			result = v
			first = false
		} else {
			result = concolic.Concat(result, v)
		}
	}

	if first {
		return concolic.Value{}, fmt.Errorf("descriptor: empty field list")
	}
	if result.Width()%8 != 0 {
		return concolic.Value{}, fmt.Errorf("descriptor: concatenated width %d is not byte-aligned", result.Width())
	}
	return result, nil
}

func (d *decoder) decodeField(name string, bitsize uint64, spec []bencode.Value) (concolic.Value, error) {
	byteSize := toByteSize(bitsize)

	if len(spec) == 0 {
		return d.makeSymbolic(name, bitsize, byteSize), nil
	}

	// A field's spec is homogeneous: every element is a KQuery constraint
	// string, or every element is a concrete byte 0..255. The first
	// element's kind decides which.
	if _, isString := bencode.AsBytes(spec[0]); isString {
		return d.decodeSymbolicField(name, bitsize, byteSize, spec)
	}
	return d.decodeConcreteField(bitsize, byteSize, spec)
}

func (d *decoder) makeSymbolic(name string, bitsize uint64, byteSize int) concolic.Value {
	v := d.ctx.GetSymbolicBytes(name, byteSize)
	if hasPadding(bitsize) {
		v = concolic.Extract(v, 0, uint(bitsize))
	}
	d.env[name] = v.Symbolic
	return v
}

func (d *decoder) decodeSymbolicField(name string, bitsize uint64, byteSize int, spec []bencode.Value) (concolic.Value, error) {
	v := d.makeSymbolic(name, bitsize, byteSize)

	for _, elem := range spec {
		constraint, ok := bencode.AsBytes(elem)
		if !ok {
			return concolic.Value{}, fmt.Errorf("descriptor: field %q mixes concrete and symbolic spec elements", name)
		}
		expr, err := smt.FromString(d.env, string(constraint))
		if err != nil {
			return concolic.Value{}, fmt.Errorf("descriptor: field %q: %w", name, err)
		}
		if err := d.tr.Assume(expr); err != nil && !errors.Is(err, trace.ErrAssumptionAdded) {
			return concolic.Value{}, fmt.Errorf("descriptor: field %q: %w", name, err)
		}
	}

	return v, nil
}

func (d *decoder) decodeConcreteField(bitsize uint64, byteSize int, spec []bencode.Value) (concolic.Value, error) {
	bytes := make([]byte, 0, len(spec))
	for _, elem := range spec {
		n, ok := bencode.AsInt(elem)
		if !ok {
			return concolic.Value{}, fmt.Errorf("descriptor: spec mixes concrete and symbolic elements")
		}
		if n < 0 || n > 255 {
			return concolic.Value{}, fmt.Errorf("descriptor: concrete byte %d out of range [0,255]", n)
		}
		bytes = append(bytes, byte(n))
	}
	if len(bytes) != byteSize {
		return concolic.Value{}, fmt.Errorf("descriptor: concrete spec length %d does not match bitsize %d (%d bytes)", len(bytes), bitsize, byteSize)
	}

	v := concolic.FromBytes(bytes, false)
	if hasPadding(bitsize) {
		v = concolic.Extract(v, 0, uint(bitsize))
	}
	return v, nil
}

// Input is the decoded, concatenated symbolic input for one message,
// consumed byte-by-byte MSB-first by NextByte.
type Input struct {
	value  concolic.Value
	offset uint
}

// NextByte pops the next most-significant unread byte, or ok=false once
// the input is exhausted.
func (in *Input) NextByte() (concolic.Value, bool) {
	if in.offset == 0 {
		return concolic.Value{}, false
	}
	in.offset -= 8
	return concolic.Extract(in.value, in.offset, 8), true
}

// RemainingBytes reports how many bytes NextByte can still return.
func (in *Input) RemainingBytes() int {
	return int(in.offset / 8)
}

// Empty reports whether the input has been fully consumed.
func (in *Input) Empty() bool { return in.RemainingBytes() == 0 }
