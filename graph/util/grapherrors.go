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
Package util contains utility classes for the graph.

GraphError

Models a graph related error. Low-level errors should be wrapped in a GraphError
before they are returned to a client. The Type of a GraphError can be tested
with errors.Is.

TypeRegistry

Explicit registration table of node kinds and their subtype relations. The
registry is built at startup (in code or from a YAML declaration file) and is
frozen before the graph is used. It produces the discriminator sets which are
used for polymorphic filtering.

IndexManager

Manages the full text search index. The index supports simple word searches as
well as phrase searches.

The index is a basically a key-value lookup which manages 2 types of entries:

Each node attribute value is split up into words. Each word gets an entry:

PrefixAttrWord + attr + 0x00 + word (string) -> ids + pos
(provides word and phrase lookup)

Each node attribute value is also converted into a MD5 sum which makes attribute
value lookups very efficient:

PrefixAttrHash + attr + 0x00 + hash (md5) -> ids
(provides exact match lookup)

The entries are kept in a badger key-value store.
*/
package util

import (
	"errors"
	"fmt"
)

/*
GraphError is a graph related error
*/
type GraphError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
	Cause  error  // Underlying error (optional)
}

/*
Error returns a human-readable string representation of this error.
*/
func (ge *GraphError) Error() string {
	if ge.Detail != "" {
		return fmt.Sprintf("GraphError: %v (%v)", ge.Type, ge.Detail)
	}

	return fmt.Sprintf("GraphError: %v", ge.Type)
}

/*
Is checks if this error is of a given type.
*/
func (ge *GraphError) Is(target error) bool {
	return ge.Type == target
}

/*
Unwrap returns the underlying error.
*/
func (ge *GraphError) Unwrap() error {
	return ge.Cause
}

/*
NewStoreError wraps an error of a record store. Errors which are already
graph errors are returned unchanged.
*/
func NewStoreError(detail string, cause error) error {
	var ge *GraphError

	if errors.As(cause, &ge) {
		return cause
	}

	return &GraphError{ErrStoreFailure, fmt.Sprintf("%v: %v", detail, cause), cause}
}

/*
Relation consistency error types
*/
var (
	ErrDuplicateTarget   = errors.New("Duplicate target")
	ErrTypeMismatch      = errors.New("Type mismatch")
	ErrCircularReference = errors.New("Circular reference")
	ErrUnknownNode       = errors.New("Unknown node")
	ErrStoreFailure      = errors.New("Record store failure")
)

/*
Graph related error types
*/
var (
	ErrTypeDeclaration = errors.New("Invalid type declaration")
	ErrInvalidData     = errors.New("Invalid data")
	ErrIndexError      = errors.New("Index error")
	ErrRule            = errors.New("Graph rule error")
	ErrTransFailed     = errors.New("Transaction failed")
	ErrReadOnly        = errors.New("Failed write to readonly transaction")
	ErrClosed          = errors.New("Record store is closed")
)
