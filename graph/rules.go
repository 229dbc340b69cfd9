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
	"sort"

	"devt.de/krotik/common/errorutil"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

/*
GraphRulesManager data structure
*/
type graphRulesManager struct {
	gm       *Manager                // GraphManager which provides events
	rules    map[string]Rule         // Map of graph rules
	eventMap map[int]map[string]Rule // Map of events to graph rules
}

/*
Rule models a graph rule.
*/
type Rule interface {

	/*
	   Name returns the name of the rule.
	*/
	Name() string

	/*
		Handles returns a list of events which are handled by this rule.
	*/
	Handles() []int

	/*
		Handle handles an event. Rules for before events get the current
		transaction and should write all changes to it; returning an error
		rejects the change. Rules for after events get a nil transaction.
	*/
	Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error
}

/*
graphEvent main event handler which receives all graph related events.
Rules are called in the order of their names.
*/
func (gr *graphRulesManager) graphEvent(trans Trans, event int, ed ...interface{}) error {
	rules, ok := gr.eventMap[event]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := errorutil.NewCompositeError()

	for _, name := range names {
		if err := rules[name].Handle(gr.gm, trans, event, ed...); err != nil {
			errs.Add(err)
		}
	}

	if errs.HasErrors() {
		return &util.GraphError{Type: util.ErrRule, Detail: errs.Error(), Cause: errs}
	}

	return nil
}

/*
SetGraphRule sets a GraphRule.
*/
func (gr *graphRulesManager) SetGraphRule(rule Rule) {
	gr.rules[rule.Name()] = rule

	for _, handledEvent := range rule.Handles() {

		rules, ok := gr.eventMap[handledEvent]
		if !ok {
			rules = make(map[string]Rule)
			gr.eventMap[handledEvent] = rules
		}

		rules[rule.Name()] = rule
	}
}

/*
GraphRules returns a list of all available graph rules.
*/
func (gr *graphRulesManager) GraphRules() []string {
	ret := make([]string, 0, len(gr.rules))

	for rule := range gr.rules {
		ret = append(ret, rule)
	}

	sort.StringSlice(ret).Sort()

	return ret
}

// System rule SystemRuleDeleteNodeEdges
// =====================================

/*
SystemRuleDeleteNodeEdges is a system rule to delete all edges of a node
before the node is deleted.
*/
type SystemRuleDeleteNodeEdges struct {
}

/*
Name returns the name of the rule.
*/
func (r *SystemRuleDeleteNodeEdges) Name() string {
	return "system.deletenodeedges"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *SystemRuleDeleteNodeEdges) Handles() []int {
	return []int{EventNodeDeleting}
}

/*
Handle handles an event.
*/
func (r *SystemRuleDeleteNodeEdges) Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error {
	node := ed[0].(*data.Node)

	for _, dir := range []data.Direction{data.Child, data.Parent} {

		edges, err := trans.FetchEdges(&data.EdgeFilter{Owner: node.ID(), Direction: dir,
			Group: data.MatchAny(), RelationType: data.MatchAny()})

		if err != nil {
			return err
		}

		for _, edge := range edges {
			if err := trans.RemoveEdge(edge.ID()); err != nil {
				return err
			}
		}
	}

	return nil
}

// System rule SystemRuleUpdateIndex
// =================================

/*
SystemRuleUpdateIndex is a system rule to write committed node changes to the
fulltext index. Nodes are indexed by their id.
*/
type SystemRuleUpdateIndex struct {
	im *util.IndexManager
}

/*
Name returns the name of the rule.
*/
func (r *SystemRuleUpdateIndex) Name() string {
	return "system.updateindex"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *SystemRuleUpdateIndex) Handles() []int {
	return []int{EventNodeCreated, EventNodeUpdated, EventNodeDeleted}
}

/*
Handle handles an event.
*/
func (r *SystemRuleUpdateIndex) Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error {
	node := ed[0].(*data.Node)

	switch event {
	case EventNodeCreated:
		return r.im.Index(node.ID(), node.IndexMap())

	case EventNodeUpdated:
		return r.im.Reindex(node.ID(), node.IndexMap(), ed[1].(*data.Node).IndexMap())
	}

	return r.im.Deindex(node.ID(), node.IndexMap())
}
