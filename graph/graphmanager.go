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

	"devt.de/krotik/common/logutil"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
)

/*
logger is the logger of the graph package.
*/
var logger = logutil.GetLogger("nodegraph.graph")

/*
Manager data structure
*/
type Manager struct {
	gs    graphstorage.Storage // Record store of this graph manager
	gr    *graphRulesManager   // Manager for graph rules
	types *util.TypeRegistry   // Registry of node kinds
	im    *util.IndexManager   // Optional fulltext index
}

/*
NewGraphManager returns a new Manager instance. A new empty type registry is
used if no registry is given.
*/
func NewGraphManager(gs graphstorage.Storage, types *util.TypeRegistry) *Manager {
	if types == nil {
		types = util.NewTypeRegistry()
	}

	gm := &Manager{gs, &graphRulesManager{nil, make(map[string]Rule),
		make(map[int]map[string]Rule)}, types, nil}

	gm.gr.gm = gm

	gm.SetGraphRule(&SystemRuleDeleteNodeEdges{})

	return gm
}

/*
Name returns the name of this graph manager.
*/
func (gm *Manager) Name() string {
	return fmt.Sprint("Graph ", gm.gs.Name())
}

/*
Storage returns the record store of this graph manager.
*/
func (gm *Manager) Storage() graphstorage.Storage {
	return gm.gs
}

/*
Types returns the type registry of this graph manager.
*/
func (gm *Manager) Types() *util.TypeRegistry {
	return gm.types
}

/*
SetGraphRule sets a GraphRule.
*/
func (gm *Manager) SetGraphRule(rule Rule) {
	gm.gr.SetGraphRule(rule)
}

/*
GraphRules returns a list of all available graph rules.
*/
func (gm *Manager) GraphRules() []string {
	return gm.gr.GraphRules()
}

/*
EnableIndex sets the fulltext index of this graph manager. Committed node
changes are written to the index from now on.
*/
func (gm *Manager) EnableIndex(im *util.IndexManager) {
	gm.im = im
	gm.SetGraphRule(&SystemRuleUpdateIndex{im})
}

/*
NewTrans starts a new unit of work. The given context is used for all store
operations of the unit. The acting user is taken from the context (see
WithUser).
*/
func (gm *Manager) NewTrans(ctx context.Context) (Trans, error) {
	tx, err := gm.gs.Begin(ctx, true)
	if err != nil {
		return nil, err
	}

	gt := newBaseTrans(gm, tx)
	gt.user = UserFromContext(ctx)

	return gt, nil
}

/*
Update runs a given function in a new unit of work. The unit is committed if
the function returns without an error and rolled back otherwise.
*/
func (gm *Manager) Update(ctx context.Context, fn func(trans Trans) error) error {
	trans, err := gm.NewTrans(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			trans.Rollback()
			panic(r)
		}
	}()

	if err := fn(trans); err != nil {
		trans.Rollback()
		return err
	}

	return trans.Commit()
}

/*
Read runs a given function with read access to the graph.
*/
func (gm *Manager) Read(ctx context.Context, fn func(r graphstorage.Reader) error) error {
	tx, err := gm.gs.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	return fn(tx)
}
