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

	"devt.de/krotik/common/stringutil"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

// Helper functions for GraphManager
// =================================

/*
checkNode checks if a given node can be written to the record store.
*/
func (gm *Manager) checkNode(node *data.Node) error {
	if node.ID() == "" {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Node is missing an id value"}
	}

	if node.Kind() == "" {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Node is missing a kind value"}
	}

	if !stringutil.IsAlphaNumeric(node.Kind()) {
		return &util.GraphError{
			Type:   util.ErrInvalidData,
			Detail: fmt.Sprintf("Node kind %v is not alphanumeric - can only contain [a-zA-Z0-9_]", node.Kind()),
		}
	}

	if !gm.types.IsRegistered(node.Kind()) {
		return &util.GraphError{
			Type:   util.ErrInvalidData,
			Detail: fmt.Sprintf("Node kind %v is not registered", node.Kind()),
		}
	}

	for attr := range node.Data() {
		if attr == "" {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Node contains empty string attribute name"}
		}
	}

	return nil
}

/*
checkEdge checks if a given edge can be written to the record store.
*/
func (gm *Manager) checkEdge(edge *data.Edge) error {
	if edge.ParentID() == "" {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Edge is missing a parent"}
	}

	if edge.ChildID() == "" {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Edge is missing a child"}
	}

	for _, label := range []string{edge.Group(), edge.RelationType()} {
		if !stringutil.IsAlphaNumeric(label) {
			return &util.GraphError{
				Type:   util.ErrInvalidData,
				Detail: fmt.Sprintf("Edge label %v is not alphanumeric - can only contain [a-zA-Z0-9_]", label),
			}
		}
	}

	return nil
}

/*
checkDirection checks if a given direction is known.
*/
func checkDirection(direction data.Direction) error {
	if direction != data.Child && direction != data.Parent {
		return &util.GraphError{Type: util.ErrInvalidData,
			Detail: fmt.Sprintf("Unknown direction: %v", direction)}
	}

	return nil
}
