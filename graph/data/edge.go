/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import (
	"fmt"
	"time"
)

/*
Edge models a directed relation from a parent node to a child node.
*/
type Edge struct {
	id           string    // Unique edge id (assigned by the store)
	key          string    // Optional unique edge key
	parentID     string    // Parent end
	childID      string    // Child end
	group        string    // Optional group ("" means unset)
	relationType string    // Optional relation type ("" means unset)
	index        int       // Ordinal position within the relation slot
	metadata     Metadata  // Opaque edge metadata (nil means absent)
	metaChanged  bool      // Flag if the metadata needs to be persisted
	created      time.Time // Creation time
	modified     time.Time // Last modification time
}

/*
NewEdge creates a new edge between a parent and a child node. The edge id is
assigned when the edge is inserted.
*/
func NewEdge(parentID string, childID string) *Edge {
	return &Edge{parentID: parentID, childID: childID}
}

/*
RestoreEdge recreates an edge from stored values. Used by storage backends.
*/
func RestoreEdge(id, key, parentID, childID, group, relationType string,
	index int, metadata Metadata, created, modified time.Time) *Edge {

	return &Edge{
		id:           id,
		key:          key,
		parentID:     parentID,
		childID:      childID,
		group:        group,
		relationType: relationType,
		index:        index,
		metadata:     metadata.Copy(),
		created:      created,
		modified:     modified,
	}
}

/*
ID returns the identity of this edge.
*/
func (e *Edge) ID() string {
	return e.id
}

/*
SetID assigns the identity of this edge.
*/
func (e *Edge) SetID(id string) {
	e.id = id
}

/*
Key returns the optional unique key of this edge.
*/
func (e *Edge) Key() string {
	return e.key
}

/*
SetKey sets the unique key of this edge.
*/
func (e *Edge) SetKey(key string) {
	e.key = key
}

/*
ParentID returns the id of the parent end.
*/
func (e *Edge) ParentID() string {
	return e.parentID
}

/*
ChildID returns the id of the child end.
*/
func (e *Edge) ChildID() string {
	return e.childID
}

/*
Group returns the group of this edge or an empty string.
*/
func (e *Edge) Group() string {
	return e.group
}

/*
SetGroup sets the group of this edge.
*/
func (e *Edge) SetGroup(group string) {
	e.group = group
}

/*
RelationType returns the relation type of this edge or an empty string.
*/
func (e *Edge) RelationType() string {
	return e.relationType
}

/*
SetRelationType sets the relation type of this edge.
*/
func (e *Edge) SetRelationType(relationType string) {
	e.relationType = relationType
}

/*
Index returns the ordinal position of this edge.
*/
func (e *Edge) Index() int {
	return e.index
}

/*
SetIndex sets the ordinal position of this edge.
*/
func (e *Edge) SetIndex(index int) {
	e.index = index
}

/*
Metadata returns a copy of the metadata of this edge.
*/
func (e *Edge) Metadata() Metadata {
	return e.metadata.Copy()
}

/*
SetMetadata assigns new metadata. The value is copied and the changed flag
is only raised if the new value differs from the current one. Returns if the
metadata was changed.
*/
func (e *Edge) SetMetadata(m Metadata) bool {
	if e.metadata.Equal(m) {
		return false
	}

	e.metadata = m.Copy()
	e.metaChanged = true

	return true
}

/*
MetadataChanged returns if the metadata was changed since the edge was
loaded or last stored.
*/
func (e *Edge) MetadataChanged() bool {
	return e.metaChanged
}

/*
ClearChanged resets the metadata changed flag.
*/
func (e *Edge) ClearChanged() {
	e.metaChanged = false
}

/*
Created returns the creation time of this edge.
*/
func (e *Edge) Created() time.Time {
	return e.created
}

/*
Modified returns the time of the last modification of this edge.
*/
func (e *Edge) Modified() time.Time {
	return e.modified
}

/*
Touch sets the modification time. The creation time is set as well if it
was not set before.
*/
func (e *Edge) Touch(now time.Time) {
	if e.created.IsZero() {
		e.created = now
	}
	e.modified = now
}

/*
OtherEnd returns the id of the end which is opposite of a given node id.
*/
func (e *Edge) OtherEnd(id string) string {
	if e.parentID == id {
		return e.childID
	}
	return e.parentID
}

/*
Copy returns a copy of this edge.
*/
func (e *Edge) Copy() *Edge {
	ret := *e
	ret.metadata = e.metadata.Copy()
	return &ret
}

/*
String returns a string representation of this edge.
*/
func (e *Edge) String() string {
	return fmt.Sprintf("Edge: %v %v -> %v (group:%q rel:%q index:%v meta:%v)",
		e.id, e.parentID, e.childID, e.group, e.relationType, e.index, e.metadata)
}
