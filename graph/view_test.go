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
	"errors"
	"fmt"
	"testing"

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
)

func nodeIDs(nodes []*data.Node) string {
	var ret []string
	for _, n := range nodes {
		ret = append(ret, n.ID())
	}
	return fmt.Sprint(ret)
}

func TestRelationView(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		content := data.MatchExactly("content")

		storeNodes(t, gm, "p", "Folder", "d", "Doc", "art", "Article", "img", "Image")

		docs := gm.Relation("p", ChildRelation(content, data.MatchUnset(), "Doc"))

		if res := fmt.Sprint(docs.Filter().Kinds); res != "[Article Doc]" {
			t.Error("Unexpected result:", res)
			return
		}

		// Changing the returned filter does not change the view

		docs.Filter().Kinds = nil

		if res := fmt.Sprint(docs.Filter().Kinds); res != "[Article Doc]" {
			t.Error("Unexpected result:", res)
			return
		}

		err := gm.Update(ctx, func(trans Trans) error {
			d, _ := trans.FetchNode("d")
			art, _ := trans.FetchNode("art")

			_, err := docs.SetNodes(trans, art, d)
			return err
		})

		if err != nil {
			t.Error(err)
			return
		}

		err = gm.Read(ctx, func(r graphstorage.Reader) error {
			nodes, err := docs.Nodes(r)

			if res := nodeIDs(nodes); res != "[art d]" {
				return fmt.Errorf("Unexpected result: %v", res)
			}

			return err
		})

		if err != nil {
			t.Error(err)
			return
		}

		// Nodes of other kinds cannot be added through the view

		err = gm.Update(ctx, func(trans Trans) error {
			_, err := docs.Set(trans, targets("d", "img"))
			return err
		})

		if !errors.Is(err, util.ErrTypeMismatch) ||
			err.Error() != "GraphError: Type mismatch (Node img of kind Image is not one of [Article Doc])" {
			t.Error("Unexpected result:", err)
			return
		}

		err = gm.Update(ctx, func(trans Trans) error {
			_, err := docs.Set(trans, targets("d", "unknown"))
			return err
		})

		if !errors.Is(err, util.ErrUnknownNode) {
			t.Error("Unexpected result:", err)
			return
		}

		// A slot which is shared with other kinds is narrowed by the view

		if _, err := gm.ReconcileNow(ctx, "p", data.Child, content, data.MatchUnset(),
			targets("img", "d", "art")); err != nil {
			t.Error(err)
			return
		}

		all := gm.Relation("p", ChildRelation(content, data.MatchUnset()))

		err = gm.Read(ctx, func(r graphstorage.Reader) error {
			edges, err := docs.Edges(r)
			if err != nil {
				return err
			}

			if len(edges) != 2 || edges[0].ChildID() != "d" || edges[0].Index() != 1 {
				return fmt.Errorf("Unexpected result: %v", edges)
			}

			nodes, _ := docs.Nodes(r)
			if res := nodeIDs(nodes); res != "[d art]" {
				return fmt.Errorf("Unexpected result: %v", res)
			}

			nodes, _ = all.Nodes(r)
			if res := nodeIDs(nodes); res != "[img d art]" {
				return fmt.Errorf("Unexpected result: %v", res)
			}

			return nil
		})

		if err != nil {
			t.Error(err)
			return
		}

		// Views without subtypes

		exact := gm.Relation("p", RelationSpec{data.Child, content, data.MatchUnset(), []string{"Doc"}, false})

		err = gm.Read(ctx, func(r graphstorage.Reader) error {
			nodes, err := exact.Nodes(r)

			if res := nodeIDs(nodes); res != "[d]" {
				return fmt.Errorf("Unexpected result: %v", res)
			}

			return err
		})

		if err != nil {
			t.Error(err)
			return
		}
	})
}

func TestParentRelationView(t *testing.T) {
	gm, _ := newTestGraphManager()
	ctx := context.Background()

	storeNodes(t, gm, "d", "Doc", "f1", "Folder", "f2", "Folder")

	folders := gm.Relation("d", ParentRelation(data.MatchExactly("content"), data.MatchUnset(), "Folder"))

	err := gm.Update(ctx, func(trans Trans) error {
		_, err := folders.Set(trans, []Target{{"f2", data.Metadata{"pinned": true}}, {"f1", nil}})
		return err
	})

	if err != nil {
		t.Error(err)
		return
	}

	nodes, edges, _ := gm.Traverse(ctx, "d", data.Parent, data.MatchExactly("content"), data.MatchUnset())

	if res := nodeIDs(nodes); res != "[f2 f1]" || fmt.Sprint(edges[0].Metadata()) != "map[pinned:true]" {
		t.Error("Unexpected result:", res, edges)
		return
	}
}
