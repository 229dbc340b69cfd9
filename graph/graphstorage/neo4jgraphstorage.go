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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

/*
Neo4jConfig holds the connection configuration of a Neo4j record store.
*/
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

/*
neo4jSchemaStatements create the constraints of the record store.
*/
var neo4jSchemaStatements = []string{
	"CREATE CONSTRAINT node_id IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE",
	"CREATE CONSTRAINT node_key IF NOT EXISTS FOR (n:Node) REQUIRE n.key IS UNIQUE",
	"CREATE CONSTRAINT edge_id IF NOT EXISTS FOR ()-[e:EDGE]-() REQUIRE e.id IS UNIQUE",
	"CREATE CONSTRAINT edge_key IF NOT EXISTS FOR ()-[e:EDGE]-() REQUIRE e.key IS UNIQUE",
}

/*
neo4jDropStatements remove all records and constraints.
*/
var neo4jDropStatements = []string{
	"MATCH (n:Node) DETACH DELETE n",
	"DROP CONSTRAINT edge_key IF EXISTS",
	"DROP CONSTRAINT edge_id IF EXISTS",
	"DROP CONSTRAINT node_key IF EXISTS",
	"DROP CONSTRAINT node_id IF EXISTS",
}

const neo4jEdgeReturn = "RETURN e.id AS id, e.key AS key, startNode(e).id AS parent, " +
	"endNode(e).id AS child, e.group AS group, e.relationType AS relationType, " +
	"e.index AS index, e.metadata AS metadata, e.created AS created, e.modified AS modified"

/*
Neo4jGraphStorage data structure
*/
type Neo4jGraphStorage struct {
	name     string                 // Name of the storage
	driver   neo4j.DriverWithContext // Neo4j driver
	database string                 // Database name
}

/*
NewNeo4jGraphStorage connects to a Neo4j database.
*/
func NewNeo4jGraphStorage(ctx context.Context, name string, cfg Neo4jConfig) (*Neo4jGraphStorage, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""))

	if err != nil {
		return nil, util.NewStoreError("Could not create neo4j driver", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, util.NewStoreError("Could not connect to neo4j", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	return &Neo4jGraphStorage{name, driver, database}, nil
}

/*
Name returns the name of the Neo4jGraphStorage instance.
*/
func (s *Neo4jGraphStorage) Name() string {
	return s.name
}

/*
CreateSchema creates all constraints if they do not exist.
*/
func (s *Neo4jGraphStorage) CreateSchema(ctx context.Context) error {
	return s.runAll(ctx, neo4jSchemaStatements)
}

/*
DropSchema removes all records and constraints.
*/
func (s *Neo4jGraphStorage) DropSchema(ctx context.Context) error {
	return s.runAll(ctx, neo4jDropStatements)
}

func (s *Neo4jGraphStorage) runAll(ctx context.Context, stmts []string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	for _, stmt := range stmts {
		res, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			return util.NewStoreError("Could not change schema", err)
		}
	}

	return nil
}

/*
Begin starts a new explicit transaction.
*/
func (s *Neo4jGraphStorage) Begin(ctx context.Context, writable bool) (Tx, error) {
	mode := neo4j.AccessModeRead
	if writable {
		mode = neo4j.AccessModeWrite
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, util.NewStoreError("Could not begin transaction", err)
	}

	return &neo4jTx{s, session, tx, ctx, writable, false}, nil
}

/*
Close closes the storage.
*/
func (s *Neo4jGraphStorage) Close() error {
	if err := s.driver.Close(context.Background()); err != nil {
		return util.NewStoreError("Could not close neo4j driver", err)
	}
	return nil
}

/*
BuildEdgeCypher builds the Cypher query for a given edge filter.
*/
func BuildEdgeCypher(filter *data.EdgeFilter) (string, map[string]any) {
	var conds []string

	params := map[string]any{"owner": filter.Owner}

	pattern := "MATCH (o:Node {id: $owner})-[e:EDGE]->(x:Node)"
	if filter.Direction == data.Parent {
		pattern = "MATCH (o:Node {id: $owner})<-[e:EDGE]-(x:Node)"
	}

	for _, c := range []struct {
		prop  string
		match data.Match
	}{{"group", filter.Group}, {"relationType", filter.RelationType}} {

		if c.match.IsUnset() {
			conds = append(conds, "e."+c.prop+" IS NULL")
		} else if c.match.IsExactly() {
			conds = append(conds, "e."+c.prop+" = $"+c.prop)
			params[c.prop] = c.match.Value()
		}
	}

	if len(filter.Kinds) > 0 {
		conds = append(conds, "x.kind IN $kinds")
		params["kinds"] = filter.Kinds
	}

	query := pattern

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	return query + " " + neo4jEdgeReturn + " ORDER BY index, id", params
}

/*
neo4jTx data structure
*/
type neo4jTx struct {
	s        *Neo4jGraphStorage        // Storage of this transaction
	session  neo4j.SessionWithContext  // Session of this transaction
	tx       neo4j.ExplicitTransaction // Explicit transaction
	ctx      context.Context           // Context for all operations
	writable bool                      // Flag if writes are allowed
	done     bool                      // Flag if the transaction has finished
}

/*
Writable returns if this transaction allows writes.
*/
func (t *neo4jTx) Writable() bool {
	return t.writable
}

/*
run runs a statement and collects all records.
*/
func (t *neo4jTx) run(write bool, query string, params map[string]any) ([]*neo4j.Record, error) {
	if write && (!t.writable || t.done) {
		return nil, &util.GraphError{Type: util.ErrReadOnly, Detail: t.s.name}
	}

	res, err := t.tx.Run(t.ctx, query, params)
	if err != nil {
		return nil, err
	}

	return res.Collect(t.ctx)
}

/*
nilIfEmpty maps empty strings to nil so that no property is written.
*/
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func recordString(r *neo4j.Record, key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

func recordInt(r *neo4j.Record, key string) int64 {
	v, _ := r.Get(key)
	i, _ := v.(int64)
	return i
}

/*
FetchNode fetches a node by its id.
*/
func (t *neo4jTx) FetchNode(id string) (*data.Node, error) {
	return t.fetchNode("MATCH (n:Node {id: $value})", id)
}

/*
FetchNodeByKey fetches a node by its unique key.
*/
func (t *neo4jTx) FetchNodeByKey(key string) (*data.Node, error) {
	if key == "" {
		return nil, nil
	}
	return t.fetchNode("MATCH (n:Node {key: $value})", key)
}

func (t *neo4jTx) fetchNode(match string, value string) (*data.Node, error) {
	records, err := t.run(false, match+" RETURN n.id AS id, n.kind AS kind, n.key AS key, "+
		"n.attrs AS attrs, n.created AS created, n.modified AS modified, "+
		"n.createdBy AS createdBy, n.modifiedBy AS modifiedBy",
		map[string]any{"value": value})

	if err != nil {
		return nil, util.NewStoreError("Could not fetch node", err)
	} else if len(records) == 0 {
		return nil, nil
	}

	r := records[0]
	attrs := make(map[string]interface{})

	if err := json.Unmarshal([]byte(recordString(r, "attrs")), &attrs); err != nil {
		return nil, util.NewStoreError("Could not decode node attributes", err)
	}

	return data.RestoreNode(recordString(r, "id"), recordString(r, "kind"),
		recordString(r, "key"), attrs, time.Unix(0, recordInt(r, "created")),
		time.Unix(0, recordInt(r, "modified")), recordString(r, "createdBy"),
		recordString(r, "modifiedBy")), nil
}

/*
FetchEdge fetches an edge by its id.
*/
func (t *neo4jTx) FetchEdge(id string) (*data.Edge, error) {
	edges, err := t.queryEdges("MATCH ()-[e:EDGE {id: $id}]->() "+neo4jEdgeReturn,
		map[string]any{"id": id})

	if err != nil || len(edges) == 0 {
		return nil, err
	}

	return edges[0], nil
}

/*
FetchEdges fetches all edges which match a given filter.
*/
func (t *neo4jTx) FetchEdges(filter *data.EdgeFilter) ([]*data.Edge, error) {
	return t.queryEdges(BuildEdgeCypher(filter))
}

func (t *neo4jTx) queryEdges(query string, params map[string]any) ([]*data.Edge, error) {
	records, err := t.run(false, query, params)
	if err != nil {
		return nil, util.NewStoreError("Could not fetch edges", err)
	}

	ret := make([]*data.Edge, 0, len(records))

	for _, r := range records {
		meta, err := data.UnmarshalMetadata(recordString(r, "metadata"))
		if err != nil {
			return nil, util.NewStoreError("Could not decode edge metadata", err)
		}

		ret = append(ret, data.RestoreEdge(recordString(r, "id"), recordString(r, "key"),
			recordString(r, "parent"), recordString(r, "child"), recordString(r, "group"),
			recordString(r, "relationType"), int(recordInt(r, "index")), meta,
			time.Unix(0, recordInt(r, "created")), time.Unix(0, recordInt(r, "modified"))))
	}

	return ret, nil
}

/*
InsertNode inserts a new node.
*/
func (t *neo4jTx) InsertNode(node *data.Node) error {
	attrs, err := json.Marshal(node.Data())
	if err != nil {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode node attributes", Cause: err}
	}

	_, err = t.run(true, "CREATE (n:Node {id: $id, kind: $kind, key: $key, attrs: $attrs, "+
		"created: $created, modified: $modified, createdBy: $createdBy, modifiedBy: $modifiedBy})",
		map[string]any{
			"id":         node.ID(),
			"kind":       node.Kind(),
			"key":        nilIfEmpty(node.Key()),
			"attrs":      string(attrs),
			"created":    node.Created().UnixNano(),
			"modified":   node.Modified().UnixNano(),
			"createdBy":  nilIfEmpty(node.CreatedBy()),
			"modifiedBy": nilIfEmpty(node.ModifiedBy()),
		})

	if err != nil {
		return util.NewStoreError("Could not insert node", err)
	}

	return nil
}

/*
UpdateNode updates an existing node.
*/
func (t *neo4jTx) UpdateNode(node *data.Node) error {
	attrs, err := json.Marshal(node.Data())
	if err != nil {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode node attributes", Cause: err}
	}

	records, err := t.run(true, "MATCH (n:Node {id: $id}) SET n.kind = $kind, n.key = $key, "+
		"n.attrs = $attrs, n.modified = $modified, n.modifiedBy = $modifiedBy RETURN n.id",
		map[string]any{
			"id":         node.ID(),
			"kind":       node.Kind(),
			"key":        nilIfEmpty(node.Key()),
			"attrs":      string(attrs),
			"modified":   node.Modified().UnixNano(),
			"modifiedBy": nilIfEmpty(node.ModifiedBy()),
		})

	return checkRecords(records, err, "Could not update node "+node.ID())
}

/*
DeleteNode deletes a node and all its edges.
*/
func (t *neo4jTx) DeleteNode(id string) error {
	if _, err := t.run(true, "MATCH (n:Node {id: $id}) DETACH DELETE n",
		map[string]any{"id": id}); err != nil {

		return util.NewStoreError("Could not delete node", err)
	}
	return nil
}

/*
InsertEdge inserts a new edge and returns its id.
*/
func (t *neo4jTx) InsertEdge(edge *data.Edge) (string, error) {
	id := edge.ID()
	if id == "" {
		id = uuid.New().String()
	}

	meta, err := data.MarshalMetadata(edge.Metadata())
	if err != nil {
		return "", &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode edge metadata", Cause: err}
	}

	records, err := t.run(true, "MATCH (p:Node {id: $parent}), (c:Node {id: $child}) "+
		"CREATE (p)-[e:EDGE {id: $id, key: $key, group: $group, relationType: $relationType, "+
		"index: $index, metadata: $metadata, created: $created, modified: $modified}]->(c) "+
		"RETURN e.id", map[string]any{
		"parent":       edge.ParentID(),
		"child":        edge.ChildID(),
		"id":           id,
		"key":          nilIfEmpty(edge.Key()),
		"group":        nilIfEmpty(edge.Group()),
		"relationType": nilIfEmpty(edge.RelationType()),
		"index":        int64(edge.Index()),
		"metadata":     nilIfEmpty(meta),
		"created":      edge.Created().UnixNano(),
		"modified":     edge.Modified().UnixNano(),
	})

	if err := checkRecords(records, err, "Could not insert edge "+id); err != nil {
		return "", err
	}

	return id, nil
}

/*
UpdateEdge updates the index and the changed metadata of an existing edge.
*/
func (t *neo4jTx) UpdateEdge(edge *data.Edge) error {
	query := "MATCH ()-[e:EDGE {id: $id}]->() SET e.index = $index, e.modified = $modified"

	params := map[string]any{
		"id":       edge.ID(),
		"index":    int64(edge.Index()),
		"modified": edge.Modified().UnixNano(),
	}

	if edge.MetadataChanged() {
		meta, err := data.MarshalMetadata(edge.Metadata())
		if err != nil {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode edge metadata", Cause: err}
		}

		query += ", e.metadata = $metadata"
		params["metadata"] = nilIfEmpty(meta)
	}

	records, err := t.run(true, query+" RETURN e.id", params)

	return checkRecords(records, err, "Could not update edge "+edge.ID())
}

/*
DeleteEdge deletes an edge.
*/
func (t *neo4jTx) DeleteEdge(id string) error {
	if _, err := t.run(true, "MATCH ()-[e:EDGE {id: $id}]->() DELETE e",
		map[string]any{"id": id}); err != nil {

		return util.NewStoreError("Could not delete edge", err)
	}
	return nil
}

/*
checkRecords checks that a write statement matched a record.
*/
func checkRecords(records []*neo4j.Record, err error, detail string) error {
	if err != nil {
		return util.NewStoreError(detail, err)
	} else if len(records) == 0 {
		return &util.GraphError{Type: util.ErrStoreFailure, Detail: detail + ": record does not exist"}
	}
	return nil
}

/*
Commit makes all changes of this transaction permanent.
*/
func (t *neo4jTx) Commit() error {
	if t.done {
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Transaction has already finished"}
	}

	t.done = true
	defer t.session.Close(t.ctx)

	if err := t.tx.Commit(t.ctx); err != nil {
		return util.NewStoreError("Could not commit", err)
	}

	return nil
}

/*
Rollback discards all changes of this transaction.
*/
func (t *neo4jTx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true
	defer t.session.Close(t.ctx)

	if err := t.tx.Rollback(t.ctx); err != nil {
		return util.NewStoreError("Could not rollback", err)
	}

	return nil
}

/*
String returns a string representation of this storage.
*/
func (s *Neo4jGraphStorage) String() string {
	return fmt.Sprintf("Neo4jGraphStorage %v (database %v)", s.name, s.database)
}
