package mdpa

import (
	"fmt"

	"github.com/san-kum/femstage/internal/kernel"
)

// Populate copies the document into mp. Nodal data may only name variables
// already added to mp.
func (d *Document) Populate(mp *kernel.ModelPart) error {
	return d.PopulateNodes(mp, nil)
}

// PopulateNodes copies the entities of the document whose nodes are all in
// keep. A nil keep copies everything.
func (d *Document) PopulateNodes(mp *kernel.ModelPart, keep map[int]bool) error {
	for v := range d.NodalData {
		if !mp.HasNodalSolutionStepVariable(v) {
			return kernel.Fail("ImportModelPart", fmt.Errorf("%w: %s", kernel.ErrUnknownVariable, v))
		}
	}

	for _, pd := range d.Properties {
		props := mp.Properties(pd.ID)
		for k, v := range pd.Values {
			props.SetValue(k, v)
		}
	}

	for _, n := range d.Nodes {
		if keep != nil && !keep[n.ID] {
			continue
		}
		if _, err := mp.CreateNode(n.ID, n.X, n.Y, n.Z); err != nil {
			return err
		}
	}

	keptElements := make(map[int]bool)
	for _, e := range d.Elements {
		if !covered(e.Nodes, keep) {
			continue
		}
		if _, err := mp.CreateElement(e.ID, e.Name, e.PropertiesID, e.Nodes); err != nil {
			return err
		}
		keptElements[e.ID] = true
	}

	keptConditions := make(map[int]bool)
	for _, c := range d.Conditions {
		if !covered(c.Nodes, keep) {
			continue
		}
		if _, err := mp.CreateCondition(c.ID, c.Name, c.PropertiesID, c.Nodes); err != nil {
			return err
		}
		keptConditions[c.ID] = true
	}

	for v, values := range d.NodalData {
		for _, nv := range values {
			node, ok := mp.Node(nv.NodeID)
			if !ok {
				if keep != nil {
					continue
				}
				return kernel.Fail("ImportModelPart", fmt.Errorf("nodal data for missing node %d", nv.NodeID))
			}
			node.SetValue(v, nv.Value)
			if nv.Fixed {
				node.Fix(v)
			}
		}
	}

	for _, sub := range d.Subs {
		if err := populateSub(mp, sub, keep, keptElements, keptConditions); err != nil {
			return err
		}
	}
	return nil
}

func populateSub(parent *kernel.ModelPart, sp *SubPart, keepNodes, keepElements, keepConditions map[int]bool) error {
	sub, err := parent.CreateSubModelPart(sp.Name)
	if err != nil {
		return err
	}
	if err := sub.AddNodes(filter(sp.Nodes, keepNodes)); err != nil {
		return err
	}
	if err := sub.AddElements(filter(sp.Elements, keepElements)); err != nil {
		return err
	}
	if err := sub.AddConditions(filter(sp.Conditions, keepConditions)); err != nil {
		return err
	}
	for _, nested := range sp.Subs {
		if err := populateSub(sub, nested, keepNodes, keepElements, keepConditions); err != nil {
			return err
		}
	}
	return nil
}

func covered(nodes []int, keep map[int]bool) bool {
	if keep == nil {
		return true
	}
	for _, id := range nodes {
		if !keep[id] {
			return false
		}
	}
	return true
}

func filter(ids []int, keep map[int]bool) []int {
	if keep == nil {
		return ids
	}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}
