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
Package graph contains the main API to the typed graph.

Manager API

The main API is provided by a Manager object which can be created with the
NewGraphManager() constructor function. A manager combines a record store
with a type registry. All changes are done through a unit of work (Trans)
which can be created with NewTrans() or used through Update().

Relations

Edges connect a parent node with a child node. Edges between the same nodes
are partitioned into slots by a group and a relation type label. A slot is
described by an EdgeFilter which can be built with NewRelationFilter(). The
set of related nodes of a slot can be replaced in one step with Reconcile().
Reconcile keeps edges of nodes which stay in the slot, deletes stale edges,
creates new edges and assigns the index of every edge from the desired order.
No edge may make a node its own descendant; see WouldCycle().

Relation views

A RelationView exposes a slot as an ordered list of nodes. A view validates
the kinds of new nodes before it reconciles the slot. Views are created with
Manager.Relation().

Fulltext search

Nodes are indexed if an index manager was set with EnableIndex(). The index
can be queried using an IndexQuery object.

Rules

Graph rules are typed observers of graph events. Rules which handle one of
the Event*ing events run inside the unit of work before the change is
written. An error of such a rule rejects the change. Rules which handle one
of the Event*d events run after a successful commit. The rule
SystemRuleDeleteNodeEdges is automatically loaded when a new Manager is
created.
*/
package graph

// Graph events
//=============

/*
EventNodeCreated is thrown after a node was created.

Parameters: created node
*/
const EventNodeCreated = 0x01

/*
EventNodeUpdated is thrown after a node was updated.

Parameters: updated node, old node
*/
const EventNodeUpdated = 0x02

/*
EventNodeDeleted is thrown after a node was deleted.

Parameters: deleted node
*/
const EventNodeDeleted = 0x03

/*
EventEdgeCreated is thrown after an edge was created.

Parameters: created edge
*/
const EventEdgeCreated = 0x04

/*
EventEdgeUpdated is thrown after an edge was updated.

Parameters: updated edge, old edge
*/
const EventEdgeUpdated = 0x05

/*
EventEdgeDeleted is thrown after an edge was deleted.

Parameters: deleted edge
*/
const EventEdgeDeleted = 0x06

/*
EventNodeInserting is thrown before a node is inserted.

Parameters: node to insert
*/
const EventNodeInserting = 0x11

/*
EventNodeUpdating is thrown before a node is updated.

Parameters: node to update, old node
*/
const EventNodeUpdating = 0x12

/*
EventNodeDeleting is thrown before a node is deleted.

Parameters: node to delete
*/
const EventNodeDeleting = 0x13

/*
EventEdgeInserting is thrown before an edge is inserted.

Parameters: edge to insert
*/
const EventEdgeInserting = 0x14

/*
EventEdgeUpdating is thrown before an edge is updated.

Parameters: edge to update, old edge
*/
const EventEdgeUpdating = 0x15

/*
EventEdgeDeleting is thrown before an edge is deleted.

Parameters: edge to delete
*/
const EventEdgeDeleting = 0x16

/*
afterEvents maps before events to the events which are thrown after commit.
*/
var afterEvents = map[int]int{
	EventNodeInserting: EventNodeCreated,
	EventNodeUpdating:  EventNodeUpdated,
	EventNodeDeleting:  EventNodeDeleted,
	EventEdgeInserting: EventEdgeCreated,
	EventEdgeUpdating:  EventEdgeUpdated,
	EventEdgeDeleting:  EventEdgeDeleted,
}

/*
EventName returns a readable name of an event.
*/
func EventName(event int) string {
	switch event {
	case EventNodeCreated:
		return "node.created"
	case EventNodeUpdated:
		return "node.updated"
	case EventNodeDeleted:
		return "node.deleted"
	case EventEdgeCreated:
		return "edge.created"
	case EventEdgeUpdated:
		return "edge.updated"
	case EventEdgeDeleted:
		return "edge.deleted"
	case EventNodeInserting:
		return "node.inserting"
	case EventNodeUpdating:
		return "node.updating"
	case EventNodeDeleting:
		return "node.deleting"
	case EventEdgeInserting:
		return "edge.inserting"
	case EventEdgeUpdating:
		return "edge.updating"
	case EventEdgeDeleting:
		return "edge.deleting"
	}
	return "unknown"
}
