/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"fmt"

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
)

/*
RelationSpec declares a relation slot of a node kind.
*/
type RelationSpec struct {
	Direction       data.Direction // Direction seen from the owner
	Group           data.Match     // Group of the slot
	RelationType    data.Match     // Relation type of the slot
	Kinds           []string       // Allowed kinds of related nodes
	IncludeSubtypes bool           // Flag if subtypes of the allowed kinds are allowed
}

/*
ChildRelation declares a slot of child nodes with a fixed group and relation
type. Subtypes of the given kinds are allowed.
*/
func ChildRelation(group data.Match, relType data.Match, kinds ...string) RelationSpec {
	return RelationSpec{data.Child, group, relType, kinds, true}
}

/*
ParentRelation declares a slot of parent nodes with a fixed group and
relation type. Subtypes of the given kinds are allowed.
*/
func ParentRelation(group data.Match, relType data.Match, kinds ...string) RelationSpec {
	return RelationSpec{data.Parent, group, relType, kinds, true}
}

/*
RelationView exposes the relation slot of a node as an ordered list of nodes.
*/
type RelationView struct {
	gm     *Manager         // Graph manager of the view
	owner  string           // Owner node id
	spec   RelationSpec     // Declaration of the slot
	filter *data.EdgeFilter // Resolved filter of the slot
}

/*
Relation returns a view on a relation slot of a given node.
*/
func (gm *Manager) Relation(owner string, spec RelationSpec) *RelationView {
	return &RelationView{gm, owner, spec, NewRelationFilter(gm.types, owner,
		spec.Direction, spec.Group, spec.RelationType, spec.Kinds, spec.IncludeSubtypes)}
}

/*
Filter returns the resolved filter of this view.
*/
func (rv *RelationView) Filter() *data.EdgeFilter {
	f := *rv.filter
	return &f
}

/*
Edges returns the ordered edges of this view.
*/
func (rv *RelationView) Edges(r graphstorage.Reader) ([]*data.Edge, error) {
	return r.FetchEdges(rv.filter)
}

/*
Nodes returns the ordered related nodes of this view.
*/
func (rv *RelationView) Nodes(r graphstorage.Reader) ([]*data.Node, error) {
	edges, err := rv.Edges(r)
	if err != nil {
		return nil, err
	}

	ret := make([]*data.Node, 0, len(edges))

	for _, e := range edges {
		n, err := r.FetchNode(rv.filter.OtherEnd(e))
		if err != nil {
			return nil, err
		}

		if n != nil && rv.filter.MatchesKind(n.Kind()) {
			ret = append(ret, n)
		}
	}

	return ret, nil
}

/*
Set replaces the related nodes of this view. Every target must exist and
must have an allowed kind.
*/
func (rv *RelationView) Set(trans Trans, targets []Target) ([]*data.Edge, error) {
	for _, t := range targets {
		n, err := trans.FetchNode(t.NodeID)
		if err != nil {
			return nil, err
		} else if n == nil {
			return nil, &util.GraphError{Type: util.ErrUnknownNode, Detail: t.NodeID}
		}

		if !rv.filter.MatchesKind(n.Kind()) {
			return nil, &util.GraphError{Type: util.ErrTypeMismatch,
				Detail: fmt.Sprintf("Node %v of kind %v is not one of %v", n.ID(), n.Kind(), rv.filter.Kinds)}
		}
	}

	return rv.gm.Reconcile(trans, rv.owner, rv.spec.Direction, rv.spec.Group,
		rv.spec.RelationType, targets)
}

/*
SetNodes replaces the related nodes of this view without edge metadata.
*/
func (rv *RelationView) SetNodes(trans Trans, nodes ...*data.Node) ([]*data.Edge, error) {
	targets := make([]Target, 0, len(nodes))

	for _, n := range nodes {
		targets = append(targets, Target{NodeID: n.ID()})
	}

	return rv.Set(trans, targets)
}
