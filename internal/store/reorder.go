package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidReorder = errors.New("invalid reorder command")

type ReorderKind string

const (
	ReorderClassifications ReorderKind = "classifications"
	ReorderCriteria        ReorderKind = "criteria"
	ReorderFactors         ReorderKind = "factors"
)

// ReorderCommand replaces the display order of one sibling list. ParentID is the
// template version for classifications, the classification for criteria and the
// criterion for factors. OrderedIDs must list every sibling exactly once.
type ReorderCommand struct {
	Kind       ReorderKind `json:"kind" validate:"required,oneof=classifications criteria factors"`
	ParentID   uuid.UUID   `json:"parent_id"`
	OrderedIDs []uuid.UUID `json:"ordered_ids" validate:"required,min=1"`
}

func (c *ReorderCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReorder, err)
	}
	return nil
}

// Apply returns a copy of tree with the command applied and Order fields
// renumbered from 1. The input tree is left untouched so callers can keep it as
// a rollback snapshot.
func (c ReorderCommand) Apply(tree *TemplateTree) (*TemplateTree, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrInvalidReorder)
	}
	out := tree.clone()

	switch c.Kind {
	case ReorderClassifications:
		if c.ParentID != out.Version.ID {
			return nil, fmt.Errorf("%w: parent %s is not version %s", ErrInvalidReorder, c.ParentID, out.Version.ID)
		}
		ordered, err := permute(out.Classifications, c.OrderedIDs, func(x Classification) uuid.UUID { return x.ID })
		if err != nil {
			return nil, err
		}
		for i := range ordered {
			ordered[i].Order = i + 1
		}
		out.Classifications = ordered
		return out, nil

	case ReorderCriteria:
		for i := range out.Classifications {
			cl := &out.Classifications[i]
			if cl.ID != c.ParentID {
				continue
			}
			ordered, err := permute(cl.Criteria, c.OrderedIDs, func(x Criterion) uuid.UUID { return x.ID })
			if err != nil {
				return nil, err
			}
			for j := range ordered {
				ordered[j].Order = j + 1
			}
			cl.Criteria = ordered
			return out, nil
		}

	case ReorderFactors:
		for i := range out.Classifications {
			for j := range out.Classifications[i].Criteria {
				cr := &out.Classifications[i].Criteria[j]
				if cr.ID != c.ParentID {
					continue
				}
				ordered, err := permute(cr.Factors, c.OrderedIDs, func(x Factor) uuid.UUID { return x.ID })
				if err != nil {
					return nil, err
				}
				for k := range ordered {
					ordered[k].Order = k + 1
				}
				cr.Factors = ordered
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: parent %s not found", ErrInvalidReorder, c.ParentID)
}

// permute reorders items to follow ids, which must name every item exactly once.
func permute[T any](items []T, ids []uuid.UUID, id func(T) uuid.UUID) ([]T, error) {
	if len(ids) != len(items) {
		return nil, fmt.Errorf("%w: got %d ids for %d items", ErrInvalidReorder, len(ids), len(items))
	}
	byID := make(map[uuid.UUID]T, len(items))
	for _, it := range items {
		byID[id(it)] = it
	}
	out := make([]T, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, want := range ids {
		it, ok := byID[want]
		if !ok {
			return nil, fmt.Errorf("%w: unknown id %s", ErrInvalidReorder, want)
		}
		if seen[want] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidReorder, want)
		}
		seen[want] = true
		out = append(out, it)
	}
	return out, nil
}

func (t *TemplateTree) clone() *TemplateTree {
	out := &TemplateTree{Version: t.Version}
	out.Classifications = make([]Classification, len(t.Classifications))
	for i, c := range t.Classifications {
		c.Criteria = make([]Criterion, len(t.Classifications[i].Criteria))
		for j, cr := range t.Classifications[i].Criteria {
			cr.Factors = append([]Factor(nil), cr.Factors...)
			c.Criteria[j] = cr
		}
		out.Classifications[i] = c
	}
	return out
}
