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
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
)

/*
WouldCycle checks if an edge from a parent to a child would make a node its
own descendant. The descendants of the child are searched for the parent
over all child edges regardless of their group or relation type.
*/
func WouldCycle(r graphstorage.Reader, parentID string, childID string) (bool, error) {
	if parentID == childID {
		return true, nil
	}

	visited := map[string]bool{childID: true}
	stack := []string{childID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		edges, err := r.FetchEdges(slotFilter(current, data.Child, data.MatchAny(), data.MatchAny()))
		if err != nil {
			return false, err
		}

		for _, e := range edges {
			next := e.ChildID()

			if next == parentID {
				return true, nil
			}

			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}

	return false, nil
}
