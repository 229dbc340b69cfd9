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
	"sync"
	"time"

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
)

/*
Trans is a unit of work which groups node and edge operations. All changes
are written to the record store immediately and become visible to others
after Commit.
*/
type Trans interface {
	graphstorage.Reader

	/*
	   ID returns a unique transaction ID.
	*/
	ID() string

	/*
	   String returns a string representation of this transaction.
	*/
	String() string

	/*
	   Counts returns the transaction size in terms of objects. Returned values
	   are stored nodes, stored edges, removed nodes and removed edges.
	*/
	Counts() (int, int, int, int)

	/*
	   IsEmpty returns if this transaction is empty.
	*/
	IsEmpty() bool

	/*
	   Failed returns if this transaction has failed. A failed transaction
	   can only be rolled back.
	*/
	Failed() bool

	/*
	   Commit makes all changes permanent and throws the after events.
	   Failed transactions are rolled back and cannot be committed.
	*/
	Commit() error

	/*
	   Rollback discards all changes.
	*/
	Rollback() error

	/*
	   User returns the id of the acting user or an empty string.
	*/
	User() string

	/*
	   SetUser sets the id of the acting user. Stored nodes record the acting
	   user as creator and last modifier.
	*/
	SetUser(id string)

	/*
	   StoreNode inserts a new node or updates an existing one.
	*/
	StoreNode(node *data.Node) error

	/*
	   RemoveNode removes a node and all its edges. Removing a node which does
	   not exist is not an error.
	*/
	RemoveNode(id string) error

	/*
	   StoreEdge inserts a new edge or updates the index and metadata of an
	   existing one. Returns the id of the edge.
	*/
	StoreEdge(edge *data.Edge) (string, error)

	/*
	   RemoveEdge removes an edge. Removing an edge which does not exist is
	   not an error.
	*/
	RemoveEdge(id string) error

	/*
	   fail marks this transaction as failed.
	*/
	fail()
}

/*
userKey is the context key of the acting user.
*/
type userKey struct{}

/*
WithUser returns a copy of a context which carries the id of the acting
user. Units of work which are started with this context record the user on
stored nodes.
*/
func WithUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

/*
UserFromContext returns the id of the acting user of a context or an empty
string.
*/
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

/*
idCounter is a simple counter for ids
*/
var idCounter uint64
var idCounterLock = &sync.Mutex{}

/*
pendingEvent is an event which is thrown after commit.
*/
type pendingEvent struct {
	event int
	data  []interface{}
}

/*
baseTrans is the main data structure for a graph transaction
*/
type baseTrans struct {
	tx      graphstorage.Tx // Store transaction
	id      string          // Unique transaction ID
	gm      *Manager        // Graph manager which created this transaction
	user    string          // Id of the acting user
	failed  bool            // Flag if the transaction has failed
	done    bool            // Flag if the transaction has finished
	pending []*pendingEvent // Events which are thrown after commit

	storedNodes  int // Number of stored nodes
	storedEdges  int // Number of stored edges
	removedNodes int // Number of removed nodes
	removedEdges int // Number of removed edges
}

/*
newBaseTrans creates a new transaction for a given store transaction.
*/
func newBaseTrans(gm *Manager, tx graphstorage.Tx) *baseTrans {
	idCounterLock.Lock()
	defer idCounterLock.Unlock()

	idCounter++

	return &baseTrans{tx: tx, id: fmt.Sprint(idCounter), gm: gm}
}

/*
FetchNode fetches a node by its id.
*/
func (gt *baseTrans) FetchNode(id string) (*data.Node, error) {
	return gt.tx.FetchNode(id)
}

/*
FetchNodeByKey fetches a node by its unique key.
*/
func (gt *baseTrans) FetchNodeByKey(key string) (*data.Node, error) {
	return gt.tx.FetchNodeByKey(key)
}

/*
FetchEdge fetches an edge by its id.
*/
func (gt *baseTrans) FetchEdge(id string) (*data.Edge, error) {
	return gt.tx.FetchEdge(id)
}

/*
FetchEdges fetches all edges which match a given filter.
*/
func (gt *baseTrans) FetchEdges(filter *data.EdgeFilter) ([]*data.Edge, error) {
	return gt.tx.FetchEdges(filter)
}

/*
ID returns a unique transaction ID.
*/
func (gt *baseTrans) ID() string {
	return gt.id
}

/*
IsEmpty returns if this transaction is empty.
*/
func (gt *baseTrans) IsEmpty() bool {
	sn, se, rn, re := gt.Counts()

	return sn == 0 && se == 0 && rn == 0 && re == 0
}

/*
Counts returns the transaction size in terms of objects.
*/
func (gt *baseTrans) Counts() (int, int, int, int) {
	return gt.storedNodes, gt.storedEdges, gt.removedNodes, gt.removedEdges
}

/*
String returns a string representation of this transaction.
*/
func (gt *baseTrans) String() string {
	sn, se, rn, re := gt.Counts()

	return fmt.Sprintf("Transaction %v - Nodes: I:%v R:%v - Edges: I:%v R:%v",
		gt.id, sn, rn, se, re)
}

/*
Failed returns if this transaction has failed.
*/
func (gt *baseTrans) Failed() bool {
	return gt.failed
}

func (gt *baseTrans) fail() {
	gt.failed = true
}

/*
Commit makes all changes permanent and throws the after events.
*/
func (gt *baseTrans) Commit() error {
	if gt.done {
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Transaction has already finished"}
	}

	if gt.failed {
		gt.Rollback()
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Cannot commit a failed transaction"}
	}

	gt.done = true

	if err := gt.tx.Commit(); err != nil {
		gt.failed = true
		gt.tx.Rollback()
		return err
	}

	logger.Debug("Committed ", gt)

	for _, pe := range gt.pending {
		if err := gt.gm.gr.graphEvent(nil, pe.event, pe.data...); err != nil {
			logger.Error("Error after commit of transaction ", gt.id, ": ", err)
		}
	}

	gt.pending = nil

	return nil
}

/*
Rollback discards all changes.
*/
func (gt *baseTrans) Rollback() error {
	gt.done = true
	gt.pending = nil

	return gt.tx.Rollback()
}

/*
checkWrite checks that this transaction still accepts writes.
*/
func (gt *baseTrans) checkWrite() error {
	if gt.failed {
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Transaction has failed"}
	} else if gt.done {
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Transaction has already finished"}
	}
	return nil
}

/*
storeErr marks this transaction as failed if an error occurred after the
record store was changed.
*/
func (gt *baseTrans) storeErr(err error) error {
	if err != nil {
		gt.failed = true
	}
	return err
}

/*
beforeEvent throws a before event. The transaction is marked as failed if a rule changed the graph before the
event was rejected.
*/
func (gt *baseTrans) beforeEvent(event int, ed ...interface{}) error {
	sn, se, rn, re := gt.Counts()

	if err := gt.gm.gr.graphEvent(gt, event, ed...); err != nil {
		if sn2, se2, rn2, re2 := gt.Counts(); sn != sn2 || se != se2 || rn != rn2 || re != re2 {
			gt.failed = true
		}
		return err
	}

	return nil
}

/*
afterEvent registers an event which is thrown after commit.
*/
func (gt *baseTrans) afterEvent(event int, ed ...interface{}) {
	gt.pending = append(gt.pending, &pendingEvent{afterEvents[event], ed})
}

/*
User returns the id of the acting user.
*/
func (gt *baseTrans) User() string {
	return gt.user
}

/*
SetUser sets the id of the acting user.
*/
func (gt *baseTrans) SetUser(id string) {
	gt.user = id
}

/*
StoreNode inserts a new node or updates an existing one.
*/
func (gt *baseTrans) StoreNode(node *data.Node) error {
	if err := gt.checkWrite(); err != nil {
		return err
	} else if err := gt.gm.checkNode(node); err != nil {
		return err
	}

	old, err := gt.FetchNode(node.ID())
	if err != nil {
		return err
	}

	node.Touch(time.Now())

	if old == nil {
		node.SetAuthors(gt.user, gt.user)
	} else if gt.user != "" {
		node.SetAuthors(old.CreatedBy(), gt.user)
	} else {
		node.SetAuthors(old.CreatedBy(), old.ModifiedBy())
	}

	if old == nil {

		if err := gt.beforeEvent(EventNodeInserting, node); err != nil {
			return err
		}

		if err := gt.storeErr(gt.tx.InsertNode(node)); err != nil {
			return err
		}

		gt.afterEvent(EventNodeInserting, node.Copy())

	} else {

		if err := gt.beforeEvent(EventNodeUpdating, node, old); err != nil {
			return err
		}

		if err := gt.storeErr(gt.tx.UpdateNode(node)); err != nil {
			return err
		}

		gt.afterEvent(EventNodeUpdating, node.Copy(), old)
	}

	gt.storedNodes++

	return nil
}

/*
RemoveNode removes a node and all its edges.
*/
func (gt *baseTrans) RemoveNode(id string) error {
	if err := gt.checkWrite(); err != nil {
		return err
	}

	node, err := gt.FetchNode(id)
	if err != nil || node == nil {
		return err
	}

	if err := gt.beforeEvent(EventNodeDeleting, node); err != nil {
		return err
	}

	if err := gt.storeErr(gt.tx.DeleteNode(id)); err != nil {
		return err
	}

	gt.afterEvent(EventNodeDeleting, node)
	gt.removedNodes++

	return nil
}

/*
StoreEdge inserts a new edge or updates an existing one. New edges must
connect existing nodes and must not create a cycle. Only the index and the
metadata of an existing edge can be changed.
*/
func (gt *baseTrans) StoreEdge(edge *data.Edge) (string, error) {
	if err := gt.checkWrite(); err != nil {
		return "", err
	} else if err := gt.gm.checkEdge(edge); err != nil {
		return "", err
	}

	var old *data.Edge
	var err error

	if edge.ID() != "" {
		if old, err = gt.FetchEdge(edge.ID()); err != nil {
			return "", err
		}
	}

	if old != nil {
		return edge.ID(), gt.updateEdge(edge, old)
	}

	for _, end := range []string{edge.ParentID(), edge.ChildID()} {
		if n, err := gt.FetchNode(end); err != nil {
			return "", err
		} else if n == nil {
			return "", &util.GraphError{Type: util.ErrUnknownNode, Detail: end}
		}
	}

	if cycle, err := WouldCycle(gt, edge.ParentID(), edge.ChildID()); err != nil {
		return "", err
	} else if cycle {
		return "", &util.GraphError{Type: util.ErrCircularReference,
			Detail: fmt.Sprintf("%v -> %v", edge.ParentID(), edge.ChildID())}
	}

	edge.Touch(time.Now())

	if err := gt.beforeEvent(EventEdgeInserting, edge); err != nil {
		return "", err
	}

	id, err := gt.tx.InsertEdge(edge)
	if err := gt.storeErr(err); err != nil {
		return "", err
	}

	edge.SetID(id)
	edge.ClearChanged()

	gt.afterEvent(EventEdgeInserting, edge.Copy())
	gt.storedEdges++

	return id, nil
}

/*
updateEdge updates the index and the metadata of an existing edge.
*/
func (gt *baseTrans) updateEdge(edge *data.Edge, old *data.Edge) error {
	if edge.ParentID() != old.ParentID() || edge.ChildID() != old.ChildID() ||
		edge.Group() != old.Group() || edge.RelationType() != old.RelationType() ||
		edge.Key() != old.Key() {

		return &util.GraphError{Type: util.ErrInvalidData,
			Detail: fmt.Sprintf("Only index and metadata of edge %v can be changed", edge.ID())}
	}

	edge.Touch(time.Now())

	if err := gt.beforeEvent(EventEdgeUpdating, edge, old); err != nil {
		return err
	}

	if err := gt.storeErr(gt.tx.UpdateEdge(edge)); err != nil {
		return err
	}

	edge.ClearChanged()

	gt.afterEvent(EventEdgeUpdating, edge.Copy(), old)
	gt.storedEdges++

	return nil
}

/*
RemoveEdge removes an edge.
*/
func (gt *baseTrans) RemoveEdge(id string) error {
	if err := gt.checkWrite(); err != nil {
		return err
	}

	edge, err := gt.FetchEdge(id)
	if err != nil || edge == nil {
		return err
	}

	if err := gt.beforeEvent(EventEdgeDeleting, edge); err != nil {
		return err
	}

	if err := gt.storeErr(gt.tx.DeleteEdge(id)); err != nil {
		return err
	}

	gt.afterEvent(EventEdgeDeleting, edge)
	gt.removedEdges++

	return nil
}
