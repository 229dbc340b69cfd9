/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package graphstorage contains the record store contract of the graph and its
backends.

A Storage hands out transactions. All reads and writes of a graph operation
run inside one transaction which commits atomically. Missing records are
reported as nil results without an error. Backend failures are returned as
GraphError with the type ErrStoreFailure.

MemoryGraphStorage

Keeps all records in memory. Only one writable transaction can be active at a
time; changes of a transaction are kept in an overlay which is applied at
commit. Used for tests and for embedded use.

SQLGraphStorage

Stores records in SQLite or PostgreSQL. The driver is selected from the DSN.

Neo4jGraphStorage

Stores nodes and edges as Neo4j nodes and relationships.
*/
package graphstorage

import (
	"context"
	"sort"

	"github.com/krotik/nodegraph/graph/data"
)

/*
Storage interface models the storage backend for a graph manager.
*/
type Storage interface {

	/*
	   Name returns the name of the storage instance.
	*/
	Name() string

	/*
		Begin starts a new transaction. Writes are only allowed if the writable
		flag is set. The given context is used for all operations of the
		transaction.
	*/
	Begin(ctx context.Context, writable bool) (Tx, error)

	/*
		Close closes the storage.
	*/
	Close() error
}

/*
SchemaStorage is a storage which needs a schema before it can be used.
*/
type SchemaStorage interface {
	Storage

	/*
		CreateSchema creates the schema if it does not exist.
	*/
	CreateSchema(ctx context.Context) error

	/*
		DropSchema removes the schema and all stored records.
	*/
	DropSchema(ctx context.Context) error
}

/*
Reader models read access to the records of a graph.
*/
type Reader interface {

	/*
		FetchNode fetches a node by its id. Returns nil if the node does not exist.
	*/
	FetchNode(id string) (*data.Node, error)

	/*
		FetchNodeByKey fetches a node by its unique key. Returns nil if the node
		does not exist.
	*/
	FetchNodeByKey(key string) (*data.Node, error)

	/*
		FetchEdge fetches an edge by its id. Returns nil if the edge does not exist.
	*/
	FetchEdge(id string) (*data.Edge, error)

	/*
		FetchEdges fetches all edges which match a given filter ordered by
		their index.
	*/
	FetchEdges(filter *data.EdgeFilter) ([]*data.Edge, error)
}

/*
Tx models a transaction of a storage.
*/
type Tx interface {
	Reader

	/*
		Writable returns if this transaction allows writes.
	*/
	Writable() bool

	/*
		InsertNode inserts a new node.
	*/
	InsertNode(node *data.Node) error

	/*
		UpdateNode updates an existing node.
	*/
	UpdateNode(node *data.Node) error

	/*
		DeleteNode deletes a node.
	*/
	DeleteNode(id string) error

	/*
		InsertEdge inserts a new edge and returns its id. A new id is generated
		if the edge has none.
	*/
	InsertEdge(edge *data.Edge) (string, error)

	/*
		UpdateEdge updates the index of an existing edge. The metadata is only
		written if it was changed.
	*/
	UpdateEdge(edge *data.Edge) error

	/*
		DeleteEdge deletes an edge.
	*/
	DeleteEdge(id string) error

	/*
		Commit makes all changes of this transaction permanent.
	*/
	Commit() error

	/*
		Rollback discards all changes of this transaction.
	*/
	Rollback() error
}

/*
SortEdges sorts edges by their index. Edges with the same index are sorted
by their id.
*/
func SortEdges(edges []*data.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Index() != edges[j].Index() {
			return edges[i].Index() < edges[j].Index()
		}
		return edges[i].ID() < edges[j].ID()
	})
}
