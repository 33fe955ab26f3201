package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/go-multierror"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
)

// Payload is one flattened instance inside a Bundle.
// References inside Fields hold iids local to the bundle.
type Payload struct {
	Type   string           `json:"__type"`
	UUID   string           `json:"uuid"`
	Fields map[string]Value `json:"fields,omitempty"`
}

// Bundle is an immutable flattened snapshot of a graph at one version
type Bundle struct {
	Root    string              `json:"root"`
	Version string              `json:"version"`
	Map     map[string]*Payload `json:"map"`
}

// MarshalBundle encodes a bundle as JSON
func MarshalBundle(b *Bundle) ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBundle decodes a bundle from JSON
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", sitevcerrors.ErrCorruptBundle, err)
	}
	if b.Map == nil {
		b.Map = make(map[string]*Payload)
	}
	return &b, nil
}

// Materialize resolves every iid reference of b into a uuid link.
// All corruption found is reported at once; a dangling reference is never dropped.
func Materialize(b *Bundle, s *Schema) (*Graph, error) {
	var result *multierror.Error

	rootPayload, ok := b.Map[b.Root]
	if !ok {
		return nil, fmt.Errorf("%w: root iid %q is not in the bundle", sitevcerrors.ErrCorruptBundle, b.Root)
	}

	iids := make([]string, 0, len(b.Map))
	for iid := range b.Map {
		iids = append(iids, iid)
	}
	sort.Strings(iids)

	uuidOf := make(map[string]string, len(b.Map))
	owner := make(map[string]string, len(b.Map))
	for _, iid := range iids {
		p := b.Map[iid]
		if p == nil || p.UUID == "" {
			result = multierror.Append(result, fmt.Errorf("%w: iid %s has no uuid", sitevcerrors.ErrCorruptBundle, iid))
			continue
		}
		if _, known := s.Type(p.Type); !known {
			result = multierror.Append(result, fmt.Errorf("%w: iid %s has unknown type %q", sitevcerrors.ErrCorruptBundle, iid, p.Type))
		}
		if prev, dup := owner[p.UUID]; dup {
			result = multierror.Append(result, fmt.Errorf("%w: uuid %s appears at iids %s and %s",
				sitevcerrors.ErrCorruptBundle, p.UUID, prev, iid))
			continue
		}
		owner[p.UUID] = iid
		uuidOf[iid] = p.UUID
	}

	g := NewGraph(b.Version)
	g.Root = rootPayload.UUID
	for _, iid := range iids {
		p := b.Map[iid]
		if p == nil || uuidOf[iid] == "" {
			continue
		}
		inst := NewInstance(p.UUID, p.Type)
		for field, v := range p.Fields {
			resolved := v.Rewrite(func(ref string) (string, bool) {
				id, ok := uuidOf[ref]
				if !ok {
					result = multierror.Append(result, sitevcerrors.NewDanglingReferenceError(iid, field, ref))
					return "", false
				}
				return id, true
			})
			inst.Set(field, resolved)
		}
		g.Add(inst)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return g, nil
}

// Flatten re-stamps g into a bundle. Instances reachable from the root receive
// fresh sequential iids in depth-first order; unreachable instances are dropped.
// A reference to a uuid missing from g is an error.
func Flatten(g *Graph, s *Schema) (*Bundle, error) {
	if _, ok := g.Get(g.Root); !ok {
		return nil, fmt.Errorf("%w: root %q is not in the graph", sitevcerrors.ErrCorruptBundle, g.Root)
	}

	iidOf := make(map[string]string, len(g.Insts))
	var order []*Instance
	g.Walk(s, func(inst *Instance) {
		iidOf[inst.UUID] = strconv.Itoa(len(order))
		order = append(order, inst)
	})

	var result *multierror.Error
	b := &Bundle{
		Root:    iidOf[g.Root],
		Version: g.Stamp,
		Map:     make(map[string]*Payload, len(order)),
	}
	for _, inst := range order {
		iid := iidOf[inst.UUID]
		p := &Payload{Type: inst.Type, UUID: inst.UUID, Fields: make(map[string]Value, len(inst.Fields))}
		for field, v := range inst.Fields {
			p.Fields[field] = v.Rewrite(func(ref string) (string, bool) {
				id, ok := iidOf[ref]
				if !ok {
					result = multierror.Append(result, sitevcerrors.NewDanglingReferenceError(iid, field, ref))
					return "", false
				}
				return id, true
			})
		}
		b.Map[iid] = p
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return b, nil
}
