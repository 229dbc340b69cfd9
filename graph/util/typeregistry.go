/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package util

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/stringutil"
	"gopkg.in/yaml.v3"
)

/*
TypeRegistry data structure
*/
type TypeRegistry struct {
	parents  map[string]string          // Kind to parent kind ("" for root kinds)
	children map[string]map[string]bool // Kind to direct subtypes
	frozen   bool                       // Flag if the registry is immutable
	lock     *sync.RWMutex              // Lock for concurrent access
}

/*
NewTypeRegistry creates a new empty type registry.
*/
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{make(map[string]string),
		make(map[string]map[string]bool), false, &sync.RWMutex{}}
}

/*
Register declares a kind as subtype of a parent kind. An empty parent declares
a root kind. The parent does not need to be registered yet. Registering a kind
twice with the same parent has no effect.
*/
func (tr *TypeRegistry) Register(kind string, parent string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tr.frozen {
		return &GraphError{ErrTypeDeclaration, "Registry is frozen", nil}
	}

	if kind == "" || !stringutil.IsAlphaNumeric(kind) || !stringutil.IsAlphaNumeric(parent) {
		return &GraphError{ErrTypeDeclaration,
			fmt.Sprintf("Kind names must be alphanumeric: %q %q", kind, parent), nil}
	}

	if existing, ok := tr.parents[kind]; ok && existing != "" {
		if existing == parent {
			return nil
		}

		return &GraphError{ErrTypeDeclaration,
			fmt.Sprintf("Kind %v is already declared as subtype of %v", kind, existing), nil}
	}

	// Walk up the chain of the new parent and make sure we do not reach the kind

	for p := parent; p != ""; p = tr.parents[p] {
		if p == kind {
			return &GraphError{ErrTypeDeclaration,
				fmt.Sprintf("Kind %v cannot be a subtype of its own descendant %v", kind, parent), nil}
		}
	}

	tr.parents[kind] = parent

	if parent != "" {
		if _, ok := tr.parents[parent]; !ok {
			tr.parents[parent] = ""
		}

		subtypes, ok := tr.children[parent]
		if !ok {
			subtypes = make(map[string]bool)
			tr.children[parent] = subtypes
		}

		subtypes[kind] = true
	}

	return nil
}

/*
MustRegister registers a kind and panics on error.
*/
func (tr *TypeRegistry) MustRegister(kind string, parent string) {
	errorutil.AssertOk(tr.Register(kind, parent))
}

/*
Freeze makes the registry immutable.
*/
func (tr *TypeRegistry) Freeze() {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.frozen = true
}

/*
IsFrozen returns if the registry is immutable.
*/
func (tr *TypeRegistry) IsFrozen() bool {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	return tr.frozen
}

/*
IsRegistered returns if a kind is known to the registry.
*/
func (tr *TypeRegistry) IsRegistered(kind string) bool {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	_, ok := tr.parents[kind]

	return ok
}

/*
Parent returns the parent kind of a given kind.
*/
func (tr *TypeRegistry) Parent(kind string) string {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	return tr.parents[kind]
}

/*
Kinds returns all known kinds in alphabetical order.
*/
func (tr *TypeRegistry) Kinds() []string {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	ret := make([]string, 0, len(tr.parents))
	for k := range tr.parents {
		ret = append(ret, k)
	}

	sort.Strings(ret)

	return ret
}

/*
IsA checks if a kind is a given ancestor kind or one of its subtypes.
*/
func (tr *TypeRegistry) IsA(kind string, ancestor string) bool {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	for k := kind; k != ""; k = tr.parents[k] {
		if k == ancestor {
			return true
		}
	}

	return false
}

/*
DescendantsOf returns all transitive subtypes of a given kind in alphabetical
order. The kind itself is not included.
*/
func (tr *TypeRegistry) DescendantsOf(kind string) []string {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	res := make(map[string]bool)

	tr.collectDescendants(kind, res)

	return sortedKeys(res)
}

/*
collectDescendants collects all subtypes of a kind into a given set.
*/
func (tr *TypeRegistry) collectDescendants(kind string, res map[string]bool) {
	queue := []string{kind}

	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]

		for sub := range tr.children[k] {
			if !res[sub] {
				res[sub] = true
				queue = append(queue, sub)
			}
		}
	}
}

/*
Discriminators returns the given kinds and optionally all their transitive
subtypes in alphabetical order.
*/
func (tr *TypeRegistry) Discriminators(kinds []string, includeSubtypes bool) []string {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	res := make(map[string]bool)

	for _, k := range kinds {
		res[k] = true

		if includeSubtypes {
			tr.collectDescendants(k, res)
		}
	}

	return sortedKeys(res)
}

/*
sortedKeys returns the keys of a set in alphabetical order.
*/
func sortedKeys(set map[string]bool) []string {
	ret := make([]string, 0, len(set))

	for k := range set {
		ret = append(ret, k)
	}

	sort.Strings(ret)

	return ret
}

// Type declaration files
// ======================

/*
typeDeclarations is the structure of a type declaration file:

	types:
	  content: ""
	  article: content
	  image: content
*/
type typeDeclarations struct {
	Types map[string]string `yaml:"types"`
}

/*
LoadTypeRegistry reads type declarations from a YAML document. The returned
registry is not frozen.
*/
func LoadTypeRegistry(r io.Reader) (*TypeRegistry, error) {
	var decl typeDeclarations

	if err := yaml.NewDecoder(r).Decode(&decl); err != nil && err != io.EOF {
		return nil, &GraphError{ErrTypeDeclaration, "Could not parse type declarations", err}
	}

	tr := NewTypeRegistry()

	kinds := make([]string, 0, len(decl.Types))
	for k := range decl.Types {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	for _, k := range kinds {
		if err := tr.Register(k, decl.Types[k]); err != nil {
			return nil, err
		}
	}

	return tr, nil
}

/*
LoadTypeRegistryFile reads type declarations from a YAML file.
*/
func LoadTypeRegistryFile(filename string) (*TypeRegistry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &GraphError{ErrTypeDeclaration, "Could not open type declarations", err}
	}
	defer f.Close()

	return LoadTypeRegistry(f)
}
