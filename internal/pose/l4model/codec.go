package l4model

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const weightsFormat = 1

type weightsEnvelope struct {
	Format       int            `json:"format"`
	Architecture Architecture   `json:"architecture"`
	Params       []encodedParam `json:"params"`
}

type encodedParam struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "matrix" or "vector"
	Data []byte `json:"data"` // gonum binary encoding
}

// EncodeWeights serializes every tensor of n with gonum's binary format
// inside a JSON envelope that also records the architecture.
func EncodeWeights(n *Network) ([]byte, error) {
	env := weightsEnvelope{Format: weightsFormat, Architecture: n.Arch}
	for _, p := range n.params() {
		var (
			b    []byte
			err  error
			kind string
		)
		if p.m != nil {
			kind = "matrix"
			b, err = p.m.MarshalBinary()
		} else {
			kind = "vector"
			b, err = p.v.MarshalBinary()
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.name, err)
		}
		env.Params = append(env.Params, encodedParam{Name: p.name, Kind: kind, Data: b})
	}
	return json.Marshal(env)
}

// DecodeWeights rebuilds a network for arch from EncodeWeights output.
// Dropout is a training-time setting and does not need to match.
func DecodeWeights(arch Architecture, data []byte) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	var env weightsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode weights envelope: %w", err)
	}
	if env.Format != weightsFormat {
		return nil, fmt.Errorf("unsupported weights format %d", env.Format)
	}
	stored, want := env.Architecture, arch
	stored.Dropout, want.Dropout = 0, 0
	if stored != want {
		return nil, fmt.Errorf("%w: stored %+v, configured %+v", ErrArchitectureMismatch, env.Architecture, arch)
	}

	byName := make(map[string]encodedParam, len(env.Params))
	for _, ep := range env.Params {
		byName[ep.Name] = ep
	}
	n := zeroNetwork(arch)
	for _, p := range n.params() {
		ep, ok := byName[p.name]
		if !ok {
			return nil, fmt.Errorf("weights missing tensor %s", p.name)
		}
		if p.m != nil {
			var m mat.Dense
			if err := m.UnmarshalBinary(ep.Data); err != nil {
				return nil, fmt.Errorf("decode %s: %w", p.name, err)
			}
			wr, wc := p.m.Dims()
			if r, c := m.Dims(); r != wr || c != wc {
				return nil, fmt.Errorf("tensor %s is %dx%d, want %dx%d", p.name, r, c, wr, wc)
			}
			p.m.Copy(&m)
		} else {
			var v mat.VecDense
			if err := v.UnmarshalBinary(ep.Data); err != nil {
				return nil, fmt.Errorf("decode %s: %w", p.name, err)
			}
			if v.Len() != p.v.Len() {
				return nil, fmt.Errorf("tensor %s has length %d, want %d", p.name, v.Len(), p.v.Len())
			}
			p.v.CopyVec(&v)
		}
		if !allFinite(p.data()) {
			return nil, fmt.Errorf("tensor %s contains non-finite values", p.name)
		}
	}
	return n, nil
}
