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
Package data contains the data model of the graph: nodes, edges, edge metadata
and the filter which describes a relation slot.

Nodes are typed vertices with a stable identity. The kind of a node is a
discriminator string which is used for polymorphic filtering. Application data
is held in an attribute map. Attributes with a name starting with an
underscore are private; they are stored but never published to the search
index.

Edges are directed, labeled relations between a parent and a child node. An
edge belongs to a relation slot which is given by the owner node, the
direction, an optional group and an optional relation type.
*/
package data

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

/*
PrivateAttrPrefix marks attributes which are not indexed.
*/
const PrivateAttrPrefix = "_"

/*
Index map entries which are always present
*/
const (
	IndexKind = "kind"
	IndexKey  = "key"
)

/*
Node models a typed graph vertex.
*/
type Node struct {
	id         string                 // Unique node id
	kind       string                 // Type tag of the node
	key        string                 // Optional unique human-readable key
	data       map[string]interface{} // Application attributes
	created    time.Time              // Creation time
	modified   time.Time              // Last modification time
	createdBy  string                 // Id of the user who created the node
	modifiedBy string                 // Id of the user who last modified the node
}

/*
NewNode creates a new node of a given kind with a fresh id.
*/
func NewNode(kind string) *Node {
	return NewNodeWithID(uuid.New().String(), kind)
}

/*
NewNodeWithID creates a new node with a given id.
*/
func NewNodeWithID(id string, kind string) *Node {
	return &Node{id: id, kind: kind, data: make(map[string]interface{})}
}

/*
RestoreNode recreates a node from stored values. Used by storage backends.
*/
func RestoreNode(id, kind, key string, attrs map[string]interface{},
	created, modified time.Time, createdBy, modifiedBy string) *Node {

	if attrs == nil {
		attrs = make(map[string]interface{})
	}

	return &Node{id, kind, key, attrs, created, modified, createdBy, modifiedBy}
}

/*
ID returns the identity of this node.
*/
func (n *Node) ID() string {
	return n.id
}

/*
Kind returns the type tag of this node.
*/
func (n *Node) Kind() string {
	return n.kind
}

/*
Key returns the optional unique key of this node.
*/
func (n *Node) Key() string {
	return n.key
}

/*
SetKey sets the unique key of this node. An empty string unsets the key.
*/
func (n *Node) SetKey(key string) {
	n.key = key
}

/*
Created returns the creation time of this node.
*/
func (n *Node) Created() time.Time {
	return n.created
}

/*
Modified returns the time of the last modification of this node.
*/
func (n *Node) Modified() time.Time {
	return n.modified
}

/*
Touch sets the modification time. The creation time is set as well if it
was not set before.
*/
func (n *Node) Touch(now time.Time) {
	if n.created.IsZero() {
		n.created = now
	}
	n.modified = now
}

/*
CreatedBy returns the id of the user who created this node or an empty
string if the creator is not known.
*/
func (n *Node) CreatedBy() string {
	return n.createdBy
}

/*
ModifiedBy returns the id of the user who last modified this node or an
empty string if the modifier is not known.
*/
func (n *Node) ModifiedBy() string {
	return n.modifiedBy
}

/*
SetAuthors sets the ids of the creating and the last modifying user.
*/
func (n *Node) SetAuthors(createdBy string, modifiedBy string) {
	n.createdBy = createdBy
	n.modifiedBy = modifiedBy
}

/*
Attr returns an attribute of this node.
*/
func (n *Node) Attr(attr string) interface{} {
	return n.data[attr]
}

/*
SetAttr sets an attribute of this node. Setting a nil value removes the
attribute.
*/
func (n *Node) SetAttr(attr string, val interface{}) {
	if val != nil {
		n.data[attr] = val
	} else {
		delete(n.data, attr)
	}
}

/*
StringAttr returns the value of an attribute as a string or an empty string
if it cannot be represented as a string.
*/
func (n *Node) StringAttr(attr string) string {
	val, found := n.data[attr]

	if st, ok := val.(string); found && ok {
		return st
	} else if st, ok := val.(fmt.Stringer); found && ok {
		return st.String()
	}

	return ""
}

/*
Data returns the attributes of this node.
*/
func (n *Node) Data() map[string]interface{} {
	return n.data
}

/*
Copy returns a copy of this node. Attribute values are copied deeply if they
are maps or slices.
*/
func (n *Node) Copy() *Node {
	return &Node{n.id, n.kind, n.key, copyMap(n.data), n.created, n.modified,
		n.createdBy, n.modifiedBy}
}

/*
IndexMap returns a representation of this node as a string map which can be
used to provide a full-text search. Private attributes and byte slices are
not included.
*/
func (n *Node) IndexMap() map[string]string {
	ret := map[string]string{IndexKind: n.kind}

	if n.key != "" {
		ret[IndexKey] = n.key
	}

	for attr, val := range n.data {

		if strings.HasPrefix(attr, PrivateAttrPrefix) {
			continue
		}

		if st, ok := val.(string); ok {
			ret[attr] = st

		} else if st, ok := val.(fmt.Stringer); ok {
			ret[attr] = st.String()

		} else if _, ok := val.([]byte); !ok {
			ret[attr] = fmt.Sprintf("%v", val)
		}
	}

	return ret
}

/*
String returns a string representation of this node.
*/
func (n *Node) String() string {
	var buf bytes.Buffer

	attrlist := make([]string, 0, len(n.data))
	maxlen := 4

	for attr := range n.data {
		attrlist = append(attrlist, attr)
		if alen := len(attr); alen > maxlen {
			maxlen = alen
		}
	}

	sort.Strings(attrlist)

	format := "    %" + strconv.Itoa(maxlen) + "v : %v\n"

	buf.WriteString("Node:\n")
	buf.WriteString(fmt.Sprintf(format, "id", n.id))
	buf.WriteString(fmt.Sprintf(format, "kind", n.kind))
	buf.WriteString(fmt.Sprintf(format, "key", n.key))

	for _, attr := range attrlist {
		buf.WriteString(fmt.Sprintf(format, attr, n.data[attr]))
	}

	return buf.String()
}
