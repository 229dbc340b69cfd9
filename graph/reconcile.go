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
	"context"
	"fmt"

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

/*
Target is an entry of the desired node list of a relation slot. A nil
metadata value leaves the metadata of an existing edge untouched.
*/
type Target struct {
	NodeID   string        // Id of the related node
	Metadata data.Metadata // Metadata of the edge (optional)
}

/*
reconcilePlan holds all changes of a reconciliation.
*/
type reconcilePlan struct {
	deletes []*data.Edge // Edges to delete
	updates []*data.Edge // Kept edges with changed index or metadata
	inserts []*data.Edge // New edges
	result  []*data.Edge // All edges of the slot in desired order
}

/*
Reconcile changes the edges of a relation slot so that the slot contains
exactly the desired nodes in the desired order. Edges of nodes which stay in
the slot are kept and only get a new index and the given metadata. The
whole plan is validated before the first change is written. The ordered
edges of the slot are returned.
*/
func (gm *Manager) Reconcile(trans Trans, owner string, direction data.Direction,
	group data.Match, relType data.Match, desired []Target) ([]*data.Edge, error) {

	plan, err := gm.planReconcile(trans, owner, direction, group, relType, desired)
	if err != nil {
		return nil, err
	}

	if err := applyReconcile(trans, plan); err != nil {
		trans.fail()
		return nil, err
	}

	logger.Debug(fmt.Sprintf("Reconciled %v slot of %v (group:%v rel:%v) with %v targets - D:%v U:%v I:%v",
		direction, owner, group, relType, len(plan.result),
		len(plan.deletes), len(plan.updates), len(plan.inserts)))

	return plan.result, nil
}

/*
ReconcileNow runs Reconcile in its own unit of work.
*/
func (gm *Manager) ReconcileNow(ctx context.Context, owner string, direction data.Direction,
	group data.Match, relType data.Match, desired []Target) ([]*data.Edge, error) {

	var res []*data.Edge

	err := gm.Update(ctx, func(trans Trans) error {
		var err error
		res, err = gm.Reconcile(trans, owner, direction, group, relType, desired)
		return err
	})

	if err != nil {
		return nil, err
	}

	return res, nil
}

/*
planReconcile computes all changes of a reconciliation without writing.
*/
func (gm *Manager) planReconcile(trans Trans, owner string, direction data.Direction,
	group data.Match, relType data.Match, desired []Target) (*reconcilePlan, error) {

	if err := checkDirection(direction); err != nil {
		return nil, err
	}

	positions := make(map[string]int, len(desired))

	for i, t := range desired {
		if _, ok := positions[t.NodeID]; ok {
			return nil, &util.GraphError{Type: util.ErrDuplicateTarget, Detail: t.NodeID}
		}
		positions[t.NodeID] = i
	}

	if n, err := trans.FetchNode(owner); err != nil {
		return nil, err
	} else if n == nil {
		return nil, &util.GraphError{Type: util.ErrUnknownNode, Detail: owner}
	}

	filter := slotFilter(owner, direction, group, relType)

	current, err := trans.FetchEdges(filter)
	if err != nil {
		return nil, err
	}

	plan := &reconcilePlan{result: make([]*data.Edge, len(desired))}

	// Match existing edges by the id of their other end

	for _, e := range current {
		other := filter.OtherEnd(e)

		i, ok := positions[other]
		if !ok || plan.result[i] != nil {
			plan.deletes = append(plan.deletes, e)
			continue
		}

		changed := e.Index() != i
		e.SetIndex(i)

		if desired[i].Metadata != nil && e.SetMetadata(desired[i].Metadata) {
			changed = true
		}

		if changed {
			plan.updates = append(plan.updates, e)
		}

		plan.result[i] = e
	}

	// Unmatched targets become new edges

	for i, t := range desired {
		if plan.result[i] != nil {
			continue
		}

		if n, err := trans.FetchNode(t.NodeID); err != nil {
			return nil, err
		} else if n == nil {
			return nil, &util.GraphError{Type: util.ErrUnknownNode, Detail: t.NodeID}
		}

		parent, child := owner, t.NodeID
		if direction == data.Parent {
			parent, child = child, parent
		}

		if cycle, err := WouldCycle(trans, parent, child); err != nil {
			return nil, err
		} else if cycle {
			return nil, &util.GraphError{Type: util.ErrCircularReference,
				Detail: fmt.Sprintf("%v -> %v", parent, child)}
		}

		e := data.NewEdge(parent, child)
		e.SetGroup(group.Value())
		e.SetRelationType(relType.Value())
		e.SetIndex(i)

		if t.Metadata != nil {
			e.SetMetadata(t.Metadata)
		}

		plan.inserts = append(plan.inserts, e)
		plan.result[i] = e
	}

	return plan, nil
}

/*
applyReconcile writes all changes of a reconciliation plan.
*/
func applyReconcile(trans Trans, plan *reconcilePlan) error {
	for _, e := range plan.deletes {
		if err := trans.RemoveEdge(e.ID()); err != nil {
			return err
		}
	}

	for _, e := range plan.updates {
		if _, err := trans.StoreEdge(e); err != nil {
			return err
		}
	}

	for _, e := range plan.inserts {
		if _, err := trans.StoreEdge(e); err != nil {
			return err
		}
	}

	return nil
}
