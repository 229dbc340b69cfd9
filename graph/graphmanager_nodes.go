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
FetchNode fetches a single node. Returns nil if the node does not exist.
*/
func (gm *Manager) FetchNode(ctx context.Context, id string) (*data.Node, error) {
	var node *data.Node

	err := gm.Read(ctx, func(r graphstorage.Reader) error {
		var err error
		node, err = r.FetchNode(id)
		return err
	})

	return node, err
}

/*
FetchNodeByKey fetches a single node by its unique key. Returns nil if the
node does not exist.
*/
func (gm *Manager) FetchNodeByKey(ctx context.Context, key string) (*data.Node, error) {
	var node *data.Node

	err := gm.Read(ctx, func(r graphstorage.Reader) error {
		var err error
		node, err = r.FetchNodeByKey(key)
		return err
	})

	return node, err
}

/*
StoreNode stores a single node in its own unit of work.
*/
func (gm *Manager) StoreNode(ctx context.Context, node *data.Node) error {
	return gm.Update(ctx, func(trans Trans) error {
		return trans.StoreNode(node)
	})
}

/*
RemoveNode removes a single node and all its edges in its own unit of work.
*/
func (gm *Manager) RemoveNode(ctx context.Context, id string) error {
	return gm.Update(ctx, func(trans Trans) error {
		return trans.RemoveNode(id)
	})
}
