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

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

/*
IndexQuery models the interface to the full text search index.
*/
type IndexQuery interface {

	/*
		LookupPhrase finds all nodes where an attribute contains a certain
		phrase. This call returns a list of node ids which contain the phrase
		at least once.
	*/
	LookupPhrase(attr, phrase string) ([]string, error)

	/*
		LookupWord finds all nodes where an attribute contains a certain word.
		This call returns a map which maps node id to a list of word positions.
	*/
	LookupWord(attr, word string) (map[string][]uint64, error)

	/*
		LookupValue finds all nodes where an attribute has a certain value.
		This call returns a list of node ids.
	*/
	LookupValue(attr, value string) ([]string, error)
}

/*
NodeIndexQuery returns an object to query the full text search index for
nodes.
*/
func (gm *Manager) NodeIndexQuery() (IndexQuery, error) {
	if gm.im == nil {
		return nil, &util.GraphError{Type: util.ErrIndexError, Detail: "Index is not enabled"}
	}
	return gm.im, nil
}

/*
Search finds all nodes where an attribute contains a certain phrase. If kinds
are given then the result only contains nodes of these kinds or, if the
exclude flag is set, only nodes which are not of these kinds. Returns a
sorted list of node ids.
*/
func (gm *Manager) Search(attr string, phrase string, kinds []string,
	exclude bool, includeSubtypes bool) ([]string, error) {

	iq, err := gm.NodeIndexQuery()
	if err != nil {
		return nil, err
	}

	ids, err := iq.LookupPhrase(attr, phrase)
	if err != nil || len(kinds) == 0 {
		sort.Strings(ids)
		return ids, err
	}

	kindIDs := make(map[string]bool)

	for _, kind := range gm.types.Discriminators(kinds, includeSubtypes) {
		res, err := iq.LookupValue(data.IndexKind, kind)
		if err != nil {
			return nil, err
		}

		for _, id := range res {
			kindIDs[id] = true
		}
	}

	ret := make([]string, 0, len(ids))

	for _, id := range ids {
		if kindIDs[id] != exclude {
			ret = append(ret, id)
		}
	}

	sort.Strings(ret)

	return ret, nil
}
