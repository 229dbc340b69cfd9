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
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

/*
NewRelationFilter builds the filter of a relation slot. The allowed kinds are
resolved through the given registry; an empty kind list allows every kind.
*/
func NewRelationFilter(types *util.TypeRegistry, owner string, direction data.Direction,
	group data.Match, relType data.Match, kinds []string, includeSubtypes bool) *data.EdgeFilter {

	var allowed []string

	if len(kinds) > 0 {
		allowed = types.Discriminators(kinds, includeSubtypes)
	}

	return &data.EdgeFilter{
		Owner:        owner,
		Direction:    direction,
		Group:        group,
		RelationType: relType,
		Kinds:        allowed,
	}
}

/*
slotFilter builds the filter of a relation slot without kind restriction.
*/
func slotFilter(owner string, direction data.Direction, group data.Match, relType data.Match) *data.EdgeFilter {
	return &data.EdgeFilter{Owner: owner, Direction: direction, Group: group, RelationType: relType}
}
