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

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
)

/*
FetchEdge fetches a single edge. Returns nil if the edge does not exist.
*/
func (gm *Manager) FetchEdge(ctx context.Context, id string) (*data.Edge, error) {
	var edge *data.Edge

	err := gm.Read(ctx, func(r graphstorage.Reader) error {
		var err error
		edge, err = r.FetchEdge(id)
		return err
	})

	return edge, err
}

/*
RemoveEdge removes a single edge in its own unit of work.
*/
func (gm *Manager) RemoveEdge(ctx context.Context, id string) error {
	return gm.Update(ctx, func(trans Trans) error {
		return trans.RemoveEdge(id)
	})
}

/*
Traverse follows the edges of a relation slot from a given node. Returns the
related nodes and the connecting edges in the order of the edges.
*/
func (gm *Manager) Traverse(ctx context.Context, id string, direction data.Direction,
	group data.Match, relType data.Match) ([]*data.Node, []*data.Edge, error) {

	var nodes []*data.Node
	var edges []*data.Edge

	if err := checkDirection(direction); err != nil {
		return nil, nil, err
	}

	err := gm.Read(ctx, func(r graphstorage.Reader) error {
		return traverse(r, slotFilter(id, direction, group, relType), &nodes, &edges)
	})

	return nodes, edges, err
}

/*
traverse collects the nodes and edges of a given filter.
*/
func traverse(r graphstorage.Reader, filter *data.EdgeFilter,
	nodes *[]*data.Node, edges *[]*data.Edge) error {

	res, err := r.FetchEdges(filter)
	if err != nil {
		return err
	}

	for _, e := range res {
		n, err := r.FetchNode(filter.OtherEnd(e))
		if err != nil {
			return err
		} else if n == nil {
			continue
		}

		*nodes = append(*nodes, n)
		*edges = append(*edges, e)
	}

	return nil
}
