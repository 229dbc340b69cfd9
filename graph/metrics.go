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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
MetricsRule is a graph rule which counts committed graph changes.
*/
type MetricsRule struct {
	events *prometheus.CounterVec // Committed changes by event
}

/*
NewMetricsRule creates a new MetricsRule which registers its counters with
a given registerer.
*/
func NewMetricsRule(reg prometheus.Registerer) *MetricsRule {
	return &MetricsRule{
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nodegraph_graph_events_total",
			Help: "Total committed graph changes by event",
		}, []string{"event"}),
	}
}

/*
Name returns the name of the rule.
*/
func (r *MetricsRule) Name() string {
	return "system.metrics"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *MetricsRule) Handles() []int {
	return []int{EventNodeCreated, EventNodeUpdated, EventNodeDeleted,
		EventEdgeCreated, EventEdgeUpdated, EventEdgeDeleted}
}

/*
Handle handles an event.
*/
func (r *MetricsRule) Handle(gm *Manager, trans Trans, event int, ed ...interface{}) error {
	r.events.WithLabelValues(EventName(event)).Inc()
	return nil
}

/*
Counter returns the counter of a given event.
*/
func (r *MetricsRule) Counter(event int) prometheus.Counter {
	return r.events.WithLabelValues(EventName(event))
}
