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
	"strings"
)

/*
Direction of a relation seen from the owner node.
*/
type Direction string

/*
Known directions
*/
const (
	Child  Direction = "child"  // Owner is the parent, related nodes are children
	Parent Direction = "parent" // Owner is the child, related nodes are parents
)

/*
ParseDirection parses a direction string.
*/
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case Child:
		return Child, nil
	case Parent:
		return Parent, nil
	}

	return "", fmt.Errorf("Unknown direction: %v", s)
}

/*
matchMode is the mode of a tri-state match.
*/
type matchMode int

const (
	matchAny matchMode = iota
	matchUnset
	matchExactly
)

/*
Match is a tri-state condition on an optional edge field. The zero value
matches any value.
*/
type Match struct {
	mode  matchMode
	value string
}

/*
MatchAny returns a match which skips filtering on a field.
*/
func MatchAny() Match {
	return Match{}
}

/*
MatchUnset returns a match which only accepts an unset field.
*/
func MatchUnset() Match {
	return Match{mode: matchUnset}
}

/*
MatchExactly returns a match which only accepts a given value. An empty value
is the same as MatchUnset.
*/
func MatchExactly(value string) Match {
	if value == "" {
		return MatchUnset()
	}
	return Match{matchExactly, value}
}

/*
IsAny returns if this match accepts every value.
*/
func (m Match) IsAny() bool {
	return m.mode == matchAny
}

/*
IsUnset returns if this match only accepts unset fields.
*/
func (m Match) IsUnset() bool {
	return m.mode == matchUnset
}

/*
IsExactly returns if this match only accepts a specific value.
*/
func (m Match) IsExactly() bool {
	return m.mode == matchExactly
}

/*
Value returns the value which is written into new edges. Any and Unset both
produce an unset field.
*/
func (m Match) Value() string {
	return m.value
}

/*
Matches checks if a field value is accepted by this match.
*/
func (m Match) Matches(value string) bool {
	switch m.mode {
	case matchUnset:
		return value == ""
	case matchExactly:
		return value == m.value
	}
	return true
}

/*
String returns a string representation of this match.
*/
func (m Match) String() string {
	switch m.mode {
	case matchUnset:
		return "<unset>"
	case matchExactly:
		return fmt.Sprintf("%q", m.value)
	}
	return "<any>"
}

/*
EdgeFilter describes a relation slot. It selects edges of an owner node in a
given direction with a tri-state group and relation type condition. If Kinds
is not empty then the node at the other end must have one of the given kinds.
*/
type EdgeFilter struct {
	Owner        string    // Owner node id
	Direction    Direction // Direction seen from the owner
	Group        Match     // Condition on the edge group
	RelationType Match     // Condition on the edge relation type
	Kinds        []string  // Allowed kinds of the other end
}

/*
OwnerEnd returns the id of the end of an edge which must be the owner.
*/
func (f *EdgeFilter) OwnerEnd(e *Edge) string {
	if f.Direction == Parent {
		return e.childID
	}
	return e.parentID
}

/*
OtherEnd returns the id of the end of an edge which is not the owner.
*/
func (f *EdgeFilter) OtherEnd(e *Edge) string {
	if f.Direction == Parent {
		return e.parentID
	}
	return e.childID
}

/*
MatchesEdge checks the owner, group and relation type conditions. The kind
condition needs the node at the other end and is checked by Matches.
*/
func (f *EdgeFilter) MatchesEdge(e *Edge) bool {
	return f.OwnerEnd(e) == f.Owner &&
		f.Group.Matches(e.group) &&
		f.RelationType.Matches(e.relationType)
}

/*
MatchesKind checks if a kind is allowed at the other end.
*/
func (f *EdgeFilter) MatchesKind(kind string) bool {
	if len(f.Kinds) == 0 {
		return true
	}

	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}

	return false
}

/*
Matches checks if an edge and the node at its other end belong to the slot
which is described by this filter. The other node may be nil if no kinds
are required.
*/
func (f *EdgeFilter) Matches(e *Edge, other *Node) bool {
	if !f.MatchesEdge(e) {
		return false
	}

	if len(f.Kinds) == 0 {
		return true
	}

	return other != nil && f.OtherEnd(e) == other.id && f.MatchesKind(other.kind)
}

/*
Slot returns a copy of this filter without the kind restriction.
*/
func (f *EdgeFilter) Slot() *EdgeFilter {
	return &EdgeFilter{f.Owner, f.Direction, f.Group, f.RelationType, nil}
}

/*
String returns a string representation of this filter.
*/
func (f *EdgeFilter) String() string {
	return fmt.Sprintf("EdgeFilter: %v %v group:%v rel:%v kinds:%v",
		f.Owner, f.Direction, f.Group, f.RelationType, f.Kinds)
}
