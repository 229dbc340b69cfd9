/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

/*
Return values for memory storage operations (used for testing)
*/
var MgsRetClose, MgsRetCommit, MgsRetInsertNode, MgsRetInsertEdge,
	MgsRetUpdateEdge, MgsRetDeleteEdge error

/*
MemoryGraphStorage data structure
*/
type MemoryGraphStorage struct {
	name      string                     // Name of the storage
	nodes     map[string]*data.Node      // Committed nodes
	nodeKeys  map[string]string          // Node key to node id
	edges     map[string]*data.Edge      // Committed edges
	edgeKeys  map[string]string          // Edge key to edge id
	adjacency map[string]map[string]bool // Node id to ids of connected edges
	closed    bool                       // Flag if the storage was closed
	lock      *sync.RWMutex              // Lock for committed data
	writer    chan struct{}              // Slot of the single writer
}

/*
NewMemoryGraphStorage creates a new MemoryGraphStorage instance.
*/
func NewMemoryGraphStorage(name string) *MemoryGraphStorage {
	return &MemoryGraphStorage{
		name:      name,
		nodes:     make(map[string]*data.Node),
		nodeKeys:  make(map[string]string),
		edges:     make(map[string]*data.Edge),
		edgeKeys:  make(map[string]string),
		adjacency: make(map[string]map[string]bool),
		lock:      &sync.RWMutex{},
		writer:    make(chan struct{}, 1),
	}
}

/*
Name returns the name of the MemoryGraphStorage instance.
*/
func (mgs *MemoryGraphStorage) Name() string {
	return mgs.name
}

/*
Begin starts a new transaction. Only one writable transaction can be active
at a time; Begin blocks until the current writer has finished or the given
context is done.
*/
func (mgs *MemoryGraphStorage) Begin(ctx context.Context, writable bool) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, util.NewStoreError("Could not begin transaction", err)
	}

	if writable {
		select {
		case mgs.writer <- struct{}{}:
		case <-ctx.Done():
			return nil, util.NewStoreError("Could not begin transaction", ctx.Err())
		}
	}

	mgs.lock.RLock()
	closed := mgs.closed
	mgs.lock.RUnlock()

	if closed {
		if writable {
			<-mgs.writer
		}
		return nil, &util.GraphError{Type: util.ErrStoreFailure, Detail: mgs.name, Cause: util.ErrClosed}
	}

	return &memoryTx{mgs, writable, make(map[string]*data.Node),
		make(map[string]*data.Edge), false}, nil
}

/*
Close closes the storage.
*/
func (mgs *MemoryGraphStorage) Close() error {
	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	mgs.closed = true

	return MgsRetClose
}

/*
NodeCount returns the number of committed nodes.
*/
func (mgs *MemoryGraphStorage) NodeCount() int {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	return len(mgs.nodes)
}

/*
EdgeCount returns the number of committed edges.
*/
func (mgs *MemoryGraphStorage) EdgeCount() int {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	return len(mgs.edges)
}

/*
String returns a string representation of this storage.
*/
func (mgs *MemoryGraphStorage) String() string {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	return fmt.Sprintf("MemoryGraphStorage %v: %v nodes, %v edges",
		mgs.name, len(mgs.nodes), len(mgs.edges))
}

/*
memoryTx data structure. Changed records are kept in overlay maps; a nil
value marks a deleted record.
*/
type memoryTx struct {
	mgs      *MemoryGraphStorage   // Storage of this transaction
	writable bool                  // Flag if writes are allowed
	nodes    map[string]*data.Node // Changed nodes
	edges    map[string]*data.Edge // Changed edges
	done     bool                  // Flag if the transaction has finished
}

/*
Writable returns if this transaction allows writes.
*/
func (tx *memoryTx) Writable() bool {
	return tx.writable
}

/*
FetchNode fetches a node by its id.
*/
func (tx *memoryTx) FetchNode(id string) (*data.Node, error) {
	if n := tx.node(id); n != nil {
		return n.Copy(), nil
	}
	return nil, nil
}

/*
node returns the current version of a node without copying it.
*/
func (tx *memoryTx) node(id string) *data.Node {
	if n, ok := tx.nodes[id]; ok {
		return n
	}

	tx.mgs.lock.RLock()
	defer tx.mgs.lock.RUnlock()

	return tx.mgs.nodes[id]
}

/*
FetchNodeByKey fetches a node by its unique key.
*/
func (tx *memoryTx) FetchNodeByKey(key string) (*data.Node, error) {
	if key == "" {
		return nil, nil
	}

	for _, n := range tx.nodes {
		if n != nil && n.Key() == key {
			return n.Copy(), nil
		}
	}

	tx.mgs.lock.RLock()
	id, ok := tx.mgs.nodeKeys[key]
	tx.mgs.lock.RUnlock()

	if _, changed := tx.nodes[id]; !ok || changed {
		return nil, nil
	}

	return tx.FetchNode(id)
}

/*
FetchEdge fetches an edge by its id.
*/
func (tx *memoryTx) FetchEdge(id string) (*data.Edge, error) {
	if e := tx.edge(id); e != nil {
		return e.Copy(), nil
	}
	return nil, nil
}

/*
edge returns the current version of an edge without copying it.
*/
func (tx *memoryTx) edge(id string) *data.Edge {
	if e, ok := tx.edges[id]; ok {
		return e
	}

	tx.mgs.lock.RLock()
	defer tx.mgs.lock.RUnlock()

	return tx.mgs.edges[id]
}

/*
edgeKeyOwner returns the id of the edge which has a given key.
*/
func (tx *memoryTx) edgeKeyOwner(key string) string {
	for id, e := range tx.edges {
		if e != nil && e.Key() == key {
			return id
		}
	}

	tx.mgs.lock.RLock()
	id, ok := tx.mgs.edgeKeys[key]
	tx.mgs.lock.RUnlock()

	if _, changed := tx.edges[id]; !ok || changed {
		return ""
	}

	return id
}

/*
connectedEdges returns all current edges which are connected to a node.
*/
func (tx *memoryTx) connectedEdges(id string) []*data.Edge {
	var ret []*data.Edge

	tx.mgs.lock.RLock()
	for eid := range tx.mgs.adjacency[id] {
		if _, changed := tx.edges[eid]; !changed {
			ret = append(ret, tx.mgs.edges[eid])
		}
	}
	tx.mgs.lock.RUnlock()

	for _, e := range tx.edges {
		if e != nil && (e.ParentID() == id || e.ChildID() == id) {
			ret = append(ret, e)
		}
	}

	return ret
}

/*
FetchEdges fetches all edges which match a given filter.
*/
func (tx *memoryTx) FetchEdges(filter *data.EdgeFilter) ([]*data.Edge, error) {
	var ret []*data.Edge

	for _, e := range tx.connectedEdges(filter.Owner) {

		if !filter.MatchesEdge(e) {
			continue
		}

		if len(filter.Kinds) > 0 && !filter.Matches(e, tx.node(filter.OtherEnd(e))) {
			continue
		}

		ret = append(ret, e.Copy())
	}

	SortEdges(ret)

	return ret, nil
}

/*
checkWrite checks if a write operation is allowed.
*/
func (tx *memoryTx) checkWrite() error {
	if !tx.writable || tx.done {
		return &util.GraphError{Type: util.ErrReadOnly, Detail: tx.mgs.name}
	}
	return nil
}

/*
checkNodeKey checks that a node key is not used by another node.
*/
func (tx *memoryTx) checkNodeKey(node *data.Node) error {
	if node.Key() == "" {
		return nil
	}

	if other, _ := tx.FetchNodeByKey(node.Key()); other != nil && other.ID() != node.ID() {
		return &util.GraphError{Type: util.ErrStoreFailure,
			Detail: fmt.Sprintf("Node key %v is already in use", node.Key())}
	}

	return nil
}

/*
InsertNode inserts a new node.
*/
func (tx *memoryTx) InsertNode(node *data.Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}

	if MgsRetInsertNode != nil {
		return util.NewStoreError("Could not insert node", MgsRetInsertNode)
	}

	if tx.node(node.ID()) != nil {
		return &util.GraphError{Type: util.ErrStoreFailure,
			Detail: fmt.Sprintf("Node %v already exists", node.ID())}
	}

	if err := tx.checkNodeKey(node); err != nil {
		return err
	}

	tx.nodes[node.ID()] = node.Copy()

	return nil
}

/*
UpdateNode updates an existing node.
*/
func (tx *memoryTx) UpdateNode(node *data.Node) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}

	old := tx.node(node.ID())

	if old == nil {
		return &util.GraphError{Type: util.ErrStoreFailure,
			Detail: fmt.Sprintf("Node %v does not exist", node.ID())}
	}

	if err := tx.checkNodeKey(node); err != nil {
		return err
	}

	// Creation time and creator cannot change

	n := node.Copy()

	tx.nodes[node.ID()] = data.RestoreNode(n.ID(), n.Kind(), n.Key(), n.Data(),
		old.Created(), n.Modified(), old.CreatedBy(), n.ModifiedBy())

	return nil
}

/*
DeleteNode deletes a node and all its edges.
*/
func (tx *memoryTx) DeleteNode(id string) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}

	for _, e := range tx.connectedEdges(id) {
		tx.edges[e.ID()] = nil
	}

	tx.nodes[id] = nil

	return nil
}

/*
InsertEdge inserts a new edge and returns its id.
*/
func (tx *memoryTx) InsertEdge(edge *data.Edge) (string, error) {
	if err := tx.checkWrite(); err != nil {
		return "", err
	}

	if MgsRetInsertEdge != nil {
		return "", util.NewStoreError("Could not insert edge", MgsRetInsertEdge)
	}

	id := edge.ID()
	if id == "" {
		id = uuid.New().String()
	}

	if tx.edge(id) != nil {
		return "", &util.GraphError{Type: util.ErrStoreFailure,
			Detail: fmt.Sprintf("Edge %v already exists", id)}
	}

	if edge.Key() != "" && tx.edgeKeyOwner(edge.Key()) != "" {
		return "", &util.GraphError{Type: util.ErrStoreFailure,
			Detail: fmt.Sprintf("Edge key %v is already in use", edge.Key())}
	}

	for _, end := range []string{edge.ParentID(), edge.ChildID()} {
		if tx.node(end) == nil {
			return "", &util.GraphError{Type: util.ErrStoreFailure,
				Detail: fmt.Sprintf("Edge end %v does not exist", end)}
		}
	}

	stored := edge.Copy()
	stored.SetID(id)
	stored.ClearChanged()

	tx.edges[id] = stored

	return id, nil
}

/*
UpdateEdge updates the index and the changed metadata of an existing edge.
*/
func (tx *memoryTx) UpdateEdge(edge *data.Edge) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}

	if MgsRetUpdateEdge != nil {
		return util.NewStoreError("Could not update edge", MgsRetUpdateEdge)
	}

	old := tx.edge(edge.ID())
	if old == nil {
		return &util.GraphError{Type: util.ErrStoreFailure,
			Detail: fmt.Sprintf("Edge %v does not exist", edge.ID())}
	}

	meta := old.Metadata()
	if edge.MetadataChanged() {
		meta = edge.Metadata()
	}

	tx.edges[edge.ID()] = data.RestoreEdge(old.ID(), old.Key(), old.ParentID(),
		old.ChildID(), old.Group(), old.RelationType(), edge.Index(), meta,
		old.Created(), edge.Modified())

	return nil
}

/*
DeleteEdge deletes an edge.
*/
func (tx *memoryTx) DeleteEdge(id string) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}

	if MgsRetDeleteEdge != nil {
		return util.NewStoreError("Could not delete edge", MgsRetDeleteEdge)
	}

	tx.edges[id] = nil

	return nil
}

/*
Commit applies all changes of this transaction.
*/
func (tx *memoryTx) Commit() error {
	if tx.done {
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Transaction has already finished"}
	}

	if !tx.writable {
		tx.done = true
		return nil
	}

	defer tx.finish()

	if MgsRetCommit != nil {
		return util.NewStoreError("Could not commit", MgsRetCommit)
	}

	mgs := tx.mgs

	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	// Remove old keys and adjacency entries before adding new ones

	for id := range tx.nodes {
		if old, ok := mgs.nodes[id]; ok && old.Key() != "" {
			delete(mgs.nodeKeys, old.Key())
		}
	}

	for id := range tx.edges {
		if old, ok := mgs.edges[id]; ok {
			if old.Key() != "" {
				delete(mgs.edgeKeys, old.Key())
			}
			delete(mgs.adjacency[old.ParentID()], id)
			delete(mgs.adjacency[old.ChildID()], id)
		}
	}

	for id, n := range tx.nodes {
		if n == nil {
			delete(mgs.nodes, id)
			delete(mgs.adjacency, id)
			continue
		}

		mgs.nodes[id] = n

		if n.Key() != "" {
			mgs.nodeKeys[n.Key()] = id
		}
	}

	for id, e := range tx.edges {
		if e == nil {
			delete(mgs.edges, id)
			continue
		}

		mgs.edges[id] = e

		if e.Key() != "" {
			mgs.edgeKeys[e.Key()] = id
		}

		for _, end := range []string{e.ParentID(), e.ChildID()} {
			adj, ok := mgs.adjacency[end]
			if !ok {
				adj = make(map[string]bool)
				mgs.adjacency[end] = adj
			}
			adj[id] = true
		}
	}

	return nil
}

/*
Rollback discards all changes of this transaction.
*/
func (tx *memoryTx) Rollback() error {
	if !tx.done && tx.writable {
		tx.finish()
	}

	tx.done = true

	return nil
}

/*
finish releases the writer lock.
*/
func (tx *memoryTx) finish() {
	tx.done = true
	tx.nodes = nil
	tx.edges = nil
	<-tx.mgs.writer
}
