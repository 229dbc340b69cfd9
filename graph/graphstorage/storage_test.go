/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
)

func newTestSQLStorage(t *testing.T) *SQLGraphStorage {
	ctx := context.Background()

	sgs, err := NewSQLGraphStorage(ctx, "sqltest", filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatal(err)
	}

	if err := sgs.CreateSchema(ctx); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { sgs.Close() })

	return sgs
}

func edgeIDs(edges []*data.Edge) []string {
	ret := make([]string, 0, len(edges))
	for _, e := range edges {
		ret = append(ret, e.ID())
	}
	return ret
}

func newEdge(id, parent, child, group, rel string, index int) *data.Edge {
	e := data.NewEdge(parent, child)
	e.SetID(id)
	e.SetGroup(group)
	e.SetRelationType(rel)
	e.SetIndex(index)
	e.Touch(time.Now())
	return e
}

func newNode(id, kind, key string) *data.Node {
	n := data.NewNodeWithID(id, kind)
	n.SetKey(key)
	n.Touch(time.Now())
	return n
}

/*
testStorageContract runs the behaviour which every storage backend must
provide.
*/
func testStorageContract(t *testing.T, gs Storage) {
	ctx := context.Background()

	tx, err := gs.Begin(ctx, true)
	if err != nil {
		t.Error(err)
		return
	}

	p := newNode("p", "Folder", "root")
	p.SetAttr("name", "Root folder")
	p.SetAuthors("u1", "u1")

	for _, n := range []*data.Node{p, newNode("a", "Doc", ""),
		newNode("b", "Image", ""), newNode("c", "Doc", "")} {

		if err := tx.InsertNode(n); err != nil {
			t.Error(err)
			return
		}
	}

	if err := tx.InsertNode(newNode("x", "Doc", "root")); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Duplicate node key should fail:", err)
		return
	}

	e3 := newEdge("e3", "p", "c", "g", "", 2)
	e3.SetMetadata(data.Metadata{"weight": "heavy"})

	for _, e := range []*data.Edge{newEdge("e1", "p", "a", "g", "", 0),
		newEdge("e2", "p", "b", "g", "", 1), e3, newEdge("e4", "p", "a", "", "", 0)} {

		if _, err := tx.InsertEdge(e); err != nil {
			t.Error(err)
			return
		}
	}

	id, err := tx.InsertEdge(newEdge("", "c", "a", "", "link", 0))
	if err != nil || id == "" {
		t.Error("Unexpected result:", id, err)
		return
	}

	if err := tx.Commit(); err != nil {
		t.Error(err)
		return
	}

	// Read everything back

	tx, _ = gs.Begin(ctx, false)
	defer tx.Rollback()

	if n, err := tx.FetchNodeByKey("root"); err != nil || n == nil ||
		n.ID() != "p" || n.StringAttr("name") != "Root folder" ||
		n.CreatedBy() != "u1" || n.ModifiedBy() != "u1" {
		t.Error("Unexpected result:", n, err)
		return
	}

	if n, err := tx.FetchNode("unknown"); n != nil || err != nil {
		t.Error("Unexpected result:", n, err)
		return
	}

	if e, err := tx.FetchEdge("e3"); err != nil || e == nil ||
		fmt.Sprint(e.Metadata()) != "map[weight:heavy]" || e.MetadataChanged() {
		t.Error("Unexpected result:", e, err)
		return
	}

	filter := &data.EdgeFilter{Owner: "p", Direction: data.Child,
		Group: data.MatchExactly("g"), RelationType: data.MatchUnset()}

	if res, err := tx.FetchEdges(filter); err != nil || fmt.Sprint(edgeIDs(res)) != "[e1 e2 e3]" {
		t.Error("Unexpected result:", res, err)
		return
	}

	filter.Kinds = []string{"Doc"}

	if res, err := tx.FetchEdges(filter); err != nil || fmt.Sprint(edgeIDs(res)) != "[e1 e3]" {
		t.Error("Unexpected result:", res, err)
		return
	}

	filter = &data.EdgeFilter{Owner: "p", Direction: data.Child,
		Group: data.MatchUnset(), RelationType: data.MatchUnset()}

	if res, err := tx.FetchEdges(filter); err != nil || fmt.Sprint(edgeIDs(res)) != "[e4]" {
		t.Error("Unexpected result:", res, err)
		return
	}

	filter = &data.EdgeFilter{Owner: "a", Direction: data.Parent,
		Group: data.MatchAny(), RelationType: data.MatchAny()}

	if res, err := tx.FetchEdges(filter); err != nil || len(res) != 3 {
		t.Error("Unexpected result:", res, err)
		return
	}

	filter.RelationType = data.MatchExactly("link")

	if res, err := tx.FetchEdges(filter); err != nil || len(res) != 1 || res[0].ParentID() != "c" {
		t.Error("Unexpected result:", res, err)
		return
	}

	if err := tx.InsertNode(newNode("y", "Doc", "")); !errors.Is(err, util.ErrReadOnly) {
		t.Error("Write in read-only transaction should fail:", err)
		return
	}

	tx.Rollback()

	// Update and delete

	tx, _ = gs.Begin(ctx, true)

	e1, _ := tx.FetchEdge("e1")
	e1.SetIndex(5)

	if err := tx.UpdateEdge(e1); err != nil {
		t.Error(err)
		return
	}

	e3, _ = tx.FetchEdge("e3")
	e3.SetIndex(0)
	e3.SetMetadata(nil)

	if err := tx.UpdateEdge(e3); err != nil {
		t.Error(err)
		return
	}

	if err := tx.UpdateEdge(newEdge("unknown", "p", "a", "", "", 0)); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Update of unknown edge should fail:", err)
		return
	}

	if err := tx.DeleteEdge("e2"); err != nil {
		t.Error(err)
		return
	}

	b := newNode("b", "Image", "img")
	b.SetAuthors("u9", "u2")

	if err := tx.UpdateNode(b); err != nil {
		t.Error(err)
		return
	}

	if err := tx.DeleteNode("c"); err != nil {
		t.Error(err)
		return
	}

	if err := tx.Commit(); err != nil {
		t.Error(err)
		return
	}

	tx, _ = gs.Begin(ctx, false)
	defer tx.Rollback()

	filter = &data.EdgeFilter{Owner: "p", Direction: data.Child,
		Group: data.MatchExactly("g"), RelationType: data.MatchAny()}

	if res, err := tx.FetchEdges(filter); err != nil || fmt.Sprint(edgeIDs(res)) != "[e1]" ||
		res[0].Index() != 5 {
		t.Error("Unexpected result:", res, err)
		return
	}

	if e, _ := tx.FetchEdge("e3"); e != nil {
		t.Error("Edges of a deleted node should be gone:", e)
		return
	}

	// The creator is kept by updates

	if n, _ := tx.FetchNodeByKey("img"); n == nil || n.ID() != "b" ||
		n.CreatedBy() != "" || n.ModifiedBy() != "u2" {
		t.Error("Unexpected result:", n)
		return
	}

	// Rolled back changes are not visible

	tx2, _ := gs.Begin(ctx, true)
	tx2.DeleteNode("a")
	tx2.Rollback()

	if n, _ := tx.FetchNode("a"); n == nil {
		t.Error("Rolled back delete should not be visible")
		return
	}

	if err := tx.Commit(); err != nil {
		t.Error(err)
		return
	}

	if err := tx.Commit(); !errors.Is(err, util.ErrTransFailed) {
		t.Error("Second commit should fail:", err)
		return
	}
}

func TestMemoryGraphStorage(t *testing.T) {
	mgs := NewMemoryGraphStorage("mytest")

	if mgs.Name() != "mytest" {
		t.Error("Unexpected name:", mgs.Name())
		return
	}

	testStorageContract(t, mgs)

	if res := mgs.String(); res != "MemoryGraphStorage mytest: 3 nodes, 2 edges" {
		t.Error("Unexpected result:", res)
		return
	}

	if mgs.NodeCount() != 3 || mgs.EdgeCount() != 2 {
		t.Error("Unexpected counts:", mgs.NodeCount(), mgs.EdgeCount())
		return
	}

	mgs.Close()

	if _, err := mgs.Begin(context.Background(), true); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Begin on closed storage should fail:", err)
		return
	}
}

func TestMemoryGraphStorageErrors(t *testing.T) {
	mgs := NewMemoryGraphStorage("mytest")
	ctx := context.Background()

	tx, _ := mgs.Begin(ctx, true)

	tx.InsertNode(newNode("a", "Doc", ""))

	if _, err := tx.InsertEdge(newEdge("e1", "a", "b", "", "", 0)); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Edge to unknown node should fail:", err)
		return
	}

	MgsRetInsertNode = errors.New("testerror")

	if err := tx.InsertNode(newNode("b", "Doc", "")); err == nil ||
		err.Error() != "GraphError: Record store failure (Could not insert node: testerror)" {
		t.Error("Unexpected result:", err)
		return
	}

	MgsRetInsertNode = nil
	MgsRetCommit = errors.New("testerror")

	if err := tx.Commit(); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Unexpected result:", err)
		return
	}

	MgsRetCommit = nil

	// The writer lock was released by the failed commit

	tx, _ = mgs.Begin(ctx, true)

	if n, _ := tx.FetchNode("a"); n != nil {
		t.Error("Failed commit should not store anything:", n)
		return
	}

	tx.Rollback()

	cctx, cancel := context.WithCancel(ctx)
	cancel()

	if _, err := mgs.Begin(cctx, false); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Begin with cancelled context should fail:", err)
		return
	}

	// Waiting for the writer ends with the context

	tx, _ = mgs.Begin(ctx, true)

	tctx, tcancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer tcancel()

	if _, err := mgs.Begin(tctx, true); !errors.Is(err, util.ErrStoreFailure) ||
		!errors.Is(err, context.DeadlineExceeded) {
		t.Error("Unexpected result:", err)
		return
	}

	// Readers do not wait for the writer

	rtx, err := mgs.Begin(ctx, false)
	if err != nil {
		t.Error(err)
		return
	}

	rtx.Rollback()
	tx.Rollback()

	tx, err = mgs.Begin(tctx, true)
	if err == nil {
		t.Error("Expired context should fail even if the writer slot is free")
		return
	}

	tx, err = mgs.Begin(ctx, true)
	if err != nil {
		t.Error(err)
		return
	}

	tx.Rollback()
}

func TestSQLGraphStorage(t *testing.T) {
	sgs := newTestSQLStorage(t)

	if sgs.Name() != "sqltest" || sgs.Driver() != DriverSQLite {
		t.Error("Unexpected result:", sgs.Name(), sgs.Driver())
		return
	}

	testStorageContract(t, sgs)

	ctx := context.Background()

	if err := sgs.DropSchema(ctx); err != nil {
		t.Error(err)
		return
	}

	tx, _ := sgs.Begin(ctx, false)
	defer tx.Rollback()

	if _, err := tx.FetchNode("p"); !errors.Is(err, util.ErrStoreFailure) {
		t.Error("Fetch without schema should fail:", err)
		return
	}
}

func TestDetectDriver(t *testing.T) {

	if res := DetectDriver("postgres://user@localhost/db"); res != DriverPostgres {
		t.Error("Unexpected result:", res)
		return
	}

	if res := DetectDriver("/tmp/graph.db"); res != DriverSQLite {
		t.Error("Unexpected result:", res)
		return
	}

	if res := sqliteDSN("graph.db"); res != "graph.db?_pragma=journal_mode%28WAL%29&"+
		"_pragma=foreign_keys%281%29&_pragma=busy_timeout%285000%29&_pragma=synchronous%28NORMAL%29" {
		t.Error("Unexpected result:", res)
		return
	}

	pg := &SQLGraphStorage{driver: DriverPostgres}

	if res := pg.rebind("a = ? AND b = ?"); res != "a = $1 AND b = $2" {
		t.Error("Unexpected result:", res)
		return
	}
}

func TestBuildEdgeQuery(t *testing.T) {
	filter := &data.EdgeFilter{Owner: "o", Direction: data.Parent,
		Group: data.MatchUnset(), RelationType: data.MatchExactly("r"),
		Kinds: []string{"A", "B"}}

	query, args := BuildEdgeQuery(filter)

	if query != "SELECT "+edgeColumns+" FROM edges e JOIN nodes n ON n.id = e.parent_id "+
		"WHERE e.child_id = ? AND e.edge_group IS NULL AND e.relation_type = ? "+
		"AND n.kind IN (?, ?) ORDER BY e.edge_index, e.id" {
		t.Error("Unexpected query:", query)
		return
	}

	if fmt.Sprint(args) != "[o r A B]" {
		t.Error("Unexpected args:", args)
		return
	}

	query, args = BuildEdgeQuery(&data.EdgeFilter{Owner: "o", Direction: data.Child,
		Group: data.MatchAny(), RelationType: data.MatchAny()})

	if query != "SELECT "+edgeColumns+" FROM edges e WHERE e.parent_id = ? ORDER BY e.edge_index, e.id" ||
		fmt.Sprint(args) != "[o]" {
		t.Error("Unexpected result:", query, args)
		return
	}
}

func TestBuildEdgeCypher(t *testing.T) {
	filter := &data.EdgeFilter{Owner: "o", Direction: data.Child,
		Group: data.MatchExactly("g"), RelationType: data.MatchUnset(),
		Kinds: []string{"A"}}

	query, params := BuildEdgeCypher(filter)

	if query != "MATCH (o:Node {id: $owner})-[e:EDGE]->(x:Node) WHERE e.group = $group "+
		"AND e.relationType IS NULL AND x.kind IN $kinds "+neo4jEdgeReturn+" ORDER BY index, id" {
		t.Error("Unexpected query:", query)
		return
	}

	if fmt.Sprint(params) != "map[group:g kinds:[A] owner:o]" {
		t.Error("Unexpected params:", params)
		return
	}

	query, _ = BuildEdgeCypher(&data.EdgeFilter{Owner: "o", Direction: data.Parent,
		Group: data.MatchAny(), RelationType: data.MatchAny()})

	if query != "MATCH (o:Node {id: $owner})<-[e:EDGE]-(x:Node) "+neo4jEdgeReturn+" ORDER BY index, id" {
		t.Error("Unexpected query:", query)
		return
	}
}

func TestSortEdges(t *testing.T) {
	edges := []*data.Edge{newEdge("b", "p", "c", "", "", 1),
		newEdge("c", "p", "c", "", "", 0), newEdge("a", "p", "c", "", "", 1)}

	SortEdges(edges)

	if res := fmt.Sprint(edgeIDs(edges)); res != "[c a b]" {
		t.Error("Unexpected result:", res)
		return
	}
}
