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
	"strings"
	"testing"

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
)

func targets(ids ...string) []Target {
	ret := make([]Target, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, Target{NodeID: id})
	}
	return ret
}

/*
slotState returns the edges of a slot as "child:index" list.
*/
func slotState(t *testing.T, gm *Manager, owner string, group data.Match) (string, map[string]string) {
	var buf []string
	ids := make(map[string]string)

	err := gm.Read(context.Background(), func(r graphstorage.Reader) error {
		edges, err := r.FetchEdges(&data.EdgeFilter{Owner: owner, Direction: data.Child,
			Group: group, RelationType: data.MatchAny()})

		for _, e := range edges {
			buf = append(buf, fmt.Sprintf("%v:%v", e.ChildID(), e.Index()))
			ids[e.ChildID()] = e.ID()
		}

		return err
	})

	if err != nil {
		t.Fatal(err)
	}

	return strings.Join(buf, " "), ids
}

func TestReconcileScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		g := data.MatchExactly("g")

		storeNodes(t, gm, "P", "Folder", "A", "Doc", "B", "Doc", "C", "Doc")

		if _, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			targets("A", "B", "C")); err != nil {
			t.Error(err)
			return
		}

		state, before := slotState(t, gm, "P", g)

		if state != "A:0 B:1 C:2" {
			t.Error("Unexpected result:", state)
			return
		}

		res, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(), targets("C", "A"))

		if err != nil || len(res) != 2 || res[0].ChildID() != "C" || res[1].ChildID() != "A" {
			t.Error("Unexpected result:", res, err)
			return
		}

		// Each kept edge gets its position in the desired list

		state, after := slotState(t, gm, "P", g)

		if state != "C:0 A:1" {
			t.Error("Unexpected result:", state)
			return
		}

		// A and C were kept and not recreated

		if after["A"] != before["A"] || after["C"] != before["C"] {
			t.Error("Edges should have been kept:", before, after)
			return
		}

		if e, _ := gm.FetchEdge(ctx, before["B"]); e != nil {
			t.Error("Edge to B should have been deleted:", e)
			return
		}

		// Empty desired list clears the slot

		if res, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(), nil); err != nil || len(res) != 0 {
			t.Error("Unexpected result:", res, err)
			return
		}

		if state, _ := slotState(t, gm, "P", g); state != "" {
			t.Error("Unexpected result:", state)
			return
		}
	})
}

func TestReconcileIdempotenceAndOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		g := data.MatchExactly("g")

		storeNodes(t, gm, "P", "Folder", "A", "Doc", "B", "Doc", "C", "Doc")

		desired := []Target{
			{"A", data.Metadata{"caption": "first"}},
			{"B", nil},
			{"C", data.Metadata{"caption": "third"}},
		}

		first, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(), desired)
		if err != nil {
			t.Error(err)
			return
		}

		// Reconciling the same list again changes nothing

		var counts [4]int

		err = gm.Update(ctx, func(trans Trans) error {
			if _, err := gm.Reconcile(trans, "P", data.Child, g, data.MatchUnset(), desired); err != nil {
				return err
			}
			counts[0], counts[1], counts[2], counts[3] = trans.Counts()
			return nil
		})

		if err != nil || counts != [4]int{0, 0, 0, 0} {
			t.Error("Unexpected result:", counts, err)
			return
		}

		// A permutation only changes the index values

		second, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			[]Target{desired[2], desired[0], desired[1]})

		if err != nil {
			t.Error(err)
			return
		}

		for i, j := range []int{2, 0, 1} {
			if second[i].ID() != first[j].ID() || second[i].Index() != i ||
				!second[i].Metadata().Equal(first[j].Metadata()) {
				t.Error("Unexpected result:", second[i], first[j])
				return
			}

			stored, _ := gm.FetchEdge(ctx, second[i].ID())

			if !stored.Created().Equal(first[j].Created()) ||
				fmt.Sprint(stored.Metadata()) != fmt.Sprint(desired[j].Metadata) {
				t.Error("Unexpected result:", stored)
				return
			}
		}

		// Metadata is only replaced if it is given

		if _, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			[]Target{{"A", data.Metadata{"caption": "changed"}}, {"C", nil}}); err != nil {
			t.Error(err)
			return
		}

		_, ids := slotState(t, gm, "P", g)

		a, _ := gm.FetchEdge(ctx, ids["A"])
		c, _ := gm.FetchEdge(ctx, ids["C"])

		if fmt.Sprint(a.Metadata()) != "map[caption:changed]" ||
			fmt.Sprint(c.Metadata()) != "map[caption:third]" {
			t.Error("Unexpected result:", a, c)
			return
		}
	})
}

func TestReconcileMetadataRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		g := data.MatchExactly("g")

		storeNodes(t, gm, "P", "Folder", "A", "Doc")

		desired := []Target{{"A", data.Metadata{
			"n":      int64(9007199254740993),
			"weight": 1.5,
			"nested": map[string]interface{}{"list": []int{1, 2}},
		}}}

		// The second run finds identical metadata and writes nothing

		for _, expected := range [][4]int{{0, 1, 0, 0}, {0, 0, 0, 0}} {
			var counts [4]int

			err := gm.Update(ctx, func(trans Trans) error {
				_, err := gm.Reconcile(trans, "P", data.Child, g, data.MatchUnset(), desired)
				counts[0], counts[1], counts[2], counts[3] = trans.Counts()
				return err
			})

			if err != nil || counts != expected {
				t.Error("Unexpected result:", counts, err)
				return
			}
		}

		_, ids := slotState(t, gm, "P", g)

		e, _ := gm.FetchEdge(ctx, ids["A"])
		meta := e.Metadata()

		if res := fmt.Sprint(meta["n"], " ", meta["weight"], " ", meta["nested"]); res != "9007199254740993 1.5 map[list:[1 2]]" {
			t.Error("Unexpected result:", res)
			return
		}

		if !meta.Equal(desired[0].Metadata) {
			t.Error("Stored metadata should equal the given metadata:", meta)
			return
		}
	})
}

func TestReconcileSetDifference(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		g := data.MatchExactly("g")

		storeNodes(t, gm, "P", "Folder", "A", "Doc", "B", "Doc", "C", "Doc", "D", "Doc")

		setSlot(t, gm, "P", data.Child, g, data.MatchUnset(), targets("A", "B", "C"))

		_, before := slotState(t, gm, "P", g)

		var counts [4]int

		err := gm.Update(ctx, func(trans Trans) error {
			_, err := gm.Reconcile(trans, "P", data.Child, g, data.MatchUnset(), targets("B", "D", "C"))
			counts[0], counts[1], counts[2], counts[3] = trans.Counts()
			return err
		})

		// B gets a new index, C keeps its index, D is new and A is removed

		if err != nil || counts != [4]int{0, 2, 0, 1} {
			t.Error("Unexpected result:", counts, err)
			return
		}

		state, after := slotState(t, gm, "P", g)

		if state != "B:0 D:1 C:2" || after["B"] != before["B"] || after["C"] != before["C"] {
			t.Error("Unexpected result:", state, before, after)
			return
		}
	})
}

func TestReconcileErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		g := data.MatchExactly("g")

		storeNodes(t, gm, "D", "Folder", "X", "Folder", "P", "Folder", "A", "Doc")

		// D -> X -> P

		setSlot(t, gm, "D", data.Child, g, data.MatchUnset(), targets("X"))
		setSlot(t, gm, "X", data.Child, g, data.MatchUnset(), targets("P"))
		setSlot(t, gm, "P", data.Child, g, data.MatchUnset(), targets("A"))

		if _, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			targets("A", "D")); !errors.Is(err, util.ErrCircularReference) {
			t.Error("Unexpected result:", err)
			return
		}

		if state, _ := slotState(t, gm, "P", g); state != "A:0" {
			t.Error("Graph should be unchanged:", state)
			return
		}

		// Cycles are also detected if the owner is the child

		if _, err := gm.ReconcileNow(ctx, "D", data.Parent, data.MatchExactly("other"),
			data.MatchUnset(), targets("A")); !errors.Is(err, util.ErrCircularReference) {
			t.Error("Unexpected result:", err)
			return
		}

		if _, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			targets("P")); !errors.Is(err, util.ErrCircularReference) {
			t.Error("Self edge should be rejected:", err)
			return
		}

		if _, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			targets("A", "X", "A")); !errors.Is(err, util.ErrDuplicateTarget) ||
			err.Error() != "GraphError: Duplicate target (A)" {
			t.Error("Unexpected result:", err)
			return
		}

		if _, err := gm.ReconcileNow(ctx, "P", data.Child, g, data.MatchUnset(),
			targets("A", "unknown")); !errors.Is(err, util.ErrUnknownNode) {
			t.Error("Unexpected result:", err)
			return
		}

		if _, err := gm.ReconcileNow(ctx, "unknown", data.Child, g, data.MatchUnset(),
			targets("A")); !errors.Is(err, util.ErrUnknownNode) {
			t.Error("Unexpected result:", err)
			return
		}

		if _, err := gm.ReconcileNow(ctx, "P", data.Direction("x"), g, data.MatchUnset(),
			targets("A")); !errors.Is(err, util.ErrInvalidData) ||
			err.Error() != "GraphError: Invalid data (Unknown direction: x)" {
			t.Error("Unexpected result:", err)
			return
		}

		if state, _ := slotState(t, gm, "P", g); state != "A:0" {
			t.Error("Graph should be unchanged:", state)
			return
		}
	})
}

func TestReconcileParentDirection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		ctx := context.Background()
		tags := data.MatchExactly("tags")

		storeNodes(t, gm, "T", "Doc", "F1", "Folder", "F2", "Folder")

		res, err := gm.ReconcileNow(ctx, "T", data.Parent, tags, data.MatchExactly("tagged"),
			targets("F2", "F1"))

		if err != nil || len(res) != 2 || res[0].ParentID() != "F2" || res[0].ChildID() != "T" ||
			res[0].Group() != "tags" || res[0].RelationType() != "tagged" {
			t.Error("Unexpected result:", res, err)
			return
		}

		if state, _ := slotState(t, gm, "F1", tags); state != "T:1" {
			t.Error("Unexpected result:", state)
			return
		}
	})
}

func TestTriStateGroupFilter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, gm *Manager) {
		storeNodes(t, gm, "P", "Folder", "A", "Doc", "B", "Doc")

		setSlot(t, gm, "P", data.Child, data.MatchExactly("g"), data.MatchUnset(), targets("A"))
		setSlot(t, gm, "P", data.Child, data.MatchUnset(), data.MatchUnset(), targets("B"))

		if state, _ := slotState(t, gm, "P", data.MatchUnset()); state != "B:0" {
			t.Error("Unset group should not match grouped edges:", state)
			return
		}

		if state, _ := slotState(t, gm, "P", data.MatchExactly("")); state != "B:0" {
			t.Error("Empty group should be unset:", state)
			return
		}

		if state, _ := slotState(t, gm, "P", data.MatchAny()); state != "A:0 B:0" && state != "B:0 A:0" {
			t.Error("Omitted group should match all edges:", state)
			return
		}

		// Reconciling the ungrouped slot leaves the grouped slot alone

		setSlot(t, gm, "P", data.Child, data.MatchUnset(), data.MatchUnset(), nil)

		if state, _ := slotState(t, gm, "P", data.MatchAny()); state != "A:0" {
			t.Error("Unexpected result:", state)
			return
		}
	})
}

func TestReconcileFailedApply(t *testing.T) {
	gm, mgs := newTestGraphManager()
	ctx := context.Background()

	storeNodes(t, gm, "P", "Folder", "A", "Doc", "B", "Doc")

	setSlot(t, gm, "P", data.Child, data.MatchUnset(), data.MatchUnset(), targets("A"))

	graphstorage.MgsRetInsertEdge = errors.New("testerror")
	defer func() { graphstorage.MgsRetInsertEdge = nil }()

	trans, _ := gm.NewTrans(ctx)

	if _, err := gm.Reconcile(trans, "P", data.Child, data.MatchUnset(), data.MatchUnset(),
		targets("B")); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Unexpected result:", err)
		return
	}

	if !trans.Failed() {
		t.Error("Transaction should have failed")
		return
	}

	if err := trans.Commit(); !errors.Is(err, util.ErrTransFailed) {
		t.Error("Unexpected result:", err)
		return
	}

	graphstorage.MgsRetInsertEdge = nil

	if state, _ := slotState(t, gm, "P", data.MatchAny()); state != "A:0" || mgs.EdgeCount() != 1 {
		t.Error("Graph should be unchanged:", state)
		return
	}
}
