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
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

/*
Known SQL drivers
*/
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

/*
sqlitePragmas are set on every SQLite connection.
*/
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

/*
schemaStatements create the tables of the record store.
*/
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		node_key TEXT UNIQUE,
		attrs TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		modified_at BIGINT NOT NULL,
		created_by TEXT,
		modified_by TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind)`,
	`CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		edge_key TEXT UNIQUE,
		parent_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		child_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		edge_group TEXT,
		relation_type TEXT,
		edge_index INTEGER NOT NULL,
		metadata TEXT,
		created_at BIGINT NOT NULL,
		modified_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_parent ON edges(parent_id, edge_group, relation_type)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_child ON edges(child_id, edge_group, relation_type)`,
}

/*
dropStatements remove the tables of the record store.
*/
var dropStatements = []string{
	`DROP TABLE IF EXISTS edges`,
	`DROP TABLE IF EXISTS nodes`,
}

const nodeColumns = "id, kind, node_key, attrs, created_at, modified_at, created_by, modified_by"

const edgeColumns = "e.id, e.edge_key, e.parent_id, e.child_id, e.edge_group, " +
	"e.relation_type, e.edge_index, e.metadata, e.created_at, e.modified_at"

/*
SQLGraphStorage data structure
*/
type SQLGraphStorage struct {
	name   string  // Name of the storage
	db     *sql.DB // Database handle
	driver string  // Driver name
}

/*
DetectDriver returns the SQL driver for a given DSN. PostgreSQL URLs select
the postgres driver; everything else is treated as SQLite file name.
*/
func DetectDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

/*
sqliteDSN adds the connection pragmas to a SQLite DSN.
*/
func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))

	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+url.QueryEscape(p))
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + strings.Join(params, "&")
}

/*
NewSQLGraphStorage opens a SQL record store. The schema is not created
automatically; see CreateSchema.
*/
func NewSQLGraphStorage(ctx context.Context, name string, dsn string) (*SQLGraphStorage, error) {
	driver := DetectDriver(dsn)

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, util.NewStoreError("Could not open database", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, util.NewStoreError("Could not connect to database", err)
	}

	return &SQLGraphStorage{name, db, driver}, nil
}

/*
Name returns the name of the SQLGraphStorage instance.
*/
func (s *SQLGraphStorage) Name() string {
	return s.name
}

/*
Driver returns the name of the used SQL driver.
*/
func (s *SQLGraphStorage) Driver() string {
	return s.driver
}

/*
CreateSchema creates all tables and indices if they do not exist.
*/
func (s *SQLGraphStorage) CreateSchema(ctx context.Context) error {
	return s.execAll(ctx, schemaStatements)
}

/*
DropSchema removes all tables.
*/
func (s *SQLGraphStorage) DropSchema(ctx context.Context) error {
	return s.execAll(ctx, dropStatements)
}

func (s *SQLGraphStorage) execAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return util.NewStoreError("Could not change schema", err)
		}
	}
	return nil
}

/*
Begin starts a new transaction.
*/
func (s *SQLGraphStorage) Begin(ctx context.Context, writable bool) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, util.NewStoreError("Could not begin transaction", err)
	}

	return &sqlTx{s, tx, ctx, writable, false}, nil
}

/*
Close closes the storage.
*/
func (s *SQLGraphStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return util.NewStoreError("Could not close database", err)
	}
	return nil
}

var placeholderRegex = regexp.MustCompile(`\?`)

/*
rebind converts ? placeholders into the syntax of the used driver.
*/
func (s *SQLGraphStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	counter := 0

	return placeholderRegex.ReplaceAllStringFunc(query, func(string) string {
		counter++
		return fmt.Sprintf("$%d", counter)
	})
}

/*
BuildEdgeQuery builds the SQL query for a given edge filter. The query uses
? placeholders.
*/
func BuildEdgeQuery(filter *data.EdgeFilter) (string, []interface{}) {
	var buf strings.Builder

	ownerCol, otherCol := "e.parent_id", "e.child_id"
	if filter.Direction == data.Parent {
		ownerCol, otherCol = otherCol, ownerCol
	}

	args := []interface{}{filter.Owner}

	buf.WriteString("SELECT " + edgeColumns + " FROM edges e")

	if len(filter.Kinds) > 0 {
		buf.WriteString(" JOIN nodes n ON n.id = " + otherCol)
	}

	buf.WriteString(" WHERE " + ownerCol + " = ?")

	for _, c := range []struct {
		col   string
		match data.Match
	}{{"e.edge_group", filter.Group}, {"e.relation_type", filter.RelationType}} {

		if c.match.IsUnset() {
			buf.WriteString(" AND " + c.col + " IS NULL")
		} else if c.match.IsExactly() {
			buf.WriteString(" AND " + c.col + " = ?")
			args = append(args, c.match.Value())
		}
	}

	if len(filter.Kinds) > 0 {
		buf.WriteString(" AND n.kind IN (" +
			strings.TrimSuffix(strings.Repeat("?, ", len(filter.Kinds)), ", ") + ")")

		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}

	buf.WriteString(" ORDER BY e.edge_index, e.id")

	return buf.String(), args
}

/*
sqlTx data structure
*/
type sqlTx struct {
	s        *SQLGraphStorage // Storage of this transaction
	tx       *sql.Tx          // Database transaction
	ctx      context.Context  // Context for all operations
	writable bool             // Flag if writes are allowed
	done     bool             // Flag if the transaction has finished
}

/*
Writable returns if this transaction allows writes.
*/
func (t *sqlTx) Writable() bool {
	return t.writable
}

func (t *sqlTx) exec(query string, args ...interface{}) (sql.Result, error) {
	if !t.writable || t.done {
		return nil, &util.GraphError{Type: util.ErrReadOnly, Detail: t.s.name}
	}
	return t.tx.ExecContext(t.ctx, t.s.rebind(query), args...)
}

/*
FetchNode fetches a node by its id.
*/
func (t *sqlTx) FetchNode(id string) (*data.Node, error) {
	return t.fetchNode("SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)
}

/*
FetchNodeByKey fetches a node by its unique key.
*/
func (t *sqlTx) FetchNodeByKey(key string) (*data.Node, error) {
	if key == "" {
		return nil, nil
	}
	return t.fetchNode("SELECT "+nodeColumns+" FROM nodes WHERE node_key = ?", key)
}

func (t *sqlTx) fetchNode(query string, arg string) (*data.Node, error) {
	var id, kind, attrs string
	var key, createdBy, modifiedBy sql.NullString
	var created, modified int64

	err := t.tx.QueryRowContext(t.ctx, t.s.rebind(query), arg).Scan(
		&id, &kind, &key, &attrs, &created, &modified, &createdBy, &modifiedBy)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, util.NewStoreError("Could not fetch node", err)
	}

	attrMap := make(map[string]interface{})

	if err := json.Unmarshal([]byte(attrs), &attrMap); err != nil {
		return nil, util.NewStoreError("Could not decode node attributes", err)
	}

	return data.RestoreNode(id, kind, key.String, attrMap,
		time.Unix(0, created), time.Unix(0, modified), createdBy.String, modifiedBy.String), nil
}

/*
FetchEdge fetches an edge by its id.
*/
func (t *sqlTx) FetchEdge(id string) (*data.Edge, error) {
	edges, err := t.queryEdges("SELECT "+edgeColumns+" FROM edges e WHERE e.id = ?", id)

	if err != nil || len(edges) == 0 {
		return nil, err
	}

	return edges[0], nil
}

/*
FetchEdges fetches all edges which match a given filter.
*/
func (t *sqlTx) FetchEdges(filter *data.EdgeFilter) ([]*data.Edge, error) {
	query, args := BuildEdgeQuery(filter)
	return t.queryEdges(query, args...)
}

func (t *sqlTx) queryEdges(query string, args ...interface{}) ([]*data.Edge, error) {
	var ret []*data.Edge

	rows, err := t.tx.QueryContext(t.ctx, t.s.rebind(query), args...)
	if err != nil {
		return nil, util.NewStoreError("Could not fetch edges", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, parentID, childID string
		var key, group, relType, meta sql.NullString
		var index int
		var created, modified int64

		if err := rows.Scan(&id, &key, &parentID, &childID, &group, &relType,
			&index, &meta, &created, &modified); err != nil {
			return nil, util.NewStoreError("Could not read edge", err)
		}

		metadata, err := data.UnmarshalMetadata(meta.String)
		if err != nil {
			return nil, util.NewStoreError("Could not decode edge metadata", err)
		}

		ret = append(ret, data.RestoreEdge(id, key.String, parentID, childID,
			group.String, relType.String, index, metadata,
			time.Unix(0, created), time.Unix(0, modified)))
	}

	if err := rows.Err(); err != nil {
		return nil, util.NewStoreError("Could not fetch edges", err)
	}

	return ret, nil
}

/*
nullString maps empty strings to NULL.
*/
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

/*
InsertNode inserts a new node.
*/
func (t *sqlTx) InsertNode(node *data.Node) error {
	attrs, err := json.Marshal(node.Data())
	if err != nil {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode node attributes", Cause: err}
	}

	_, err = t.exec("INSERT INTO nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		node.ID(), node.Kind(), nullString(node.Key()), string(attrs),
		node.Created().UnixNano(), node.Modified().UnixNano(),
		nullString(node.CreatedBy()), nullString(node.ModifiedBy()))

	if err != nil {
		return util.NewStoreError("Could not insert node", err)
	}

	return nil
}

/*
UpdateNode updates an existing node.
*/
func (t *sqlTx) UpdateNode(node *data.Node) error {
	attrs, err := json.Marshal(node.Data())
	if err != nil {
		return &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode node attributes", Cause: err}
	}

	res, err := t.exec("UPDATE nodes SET kind = ?, node_key = ?, attrs = ?, modified_at = ?, modified_by = ? WHERE id = ?",
		node.Kind(), nullString(node.Key()), string(attrs), node.Modified().UnixNano(),
		nullString(node.ModifiedBy()), node.ID())

	return checkAffected(res, err, "Could not update node "+node.ID())
}

/*
DeleteNode deletes a node and all its edges.
*/
func (t *sqlTx) DeleteNode(id string) error {
	if _, err := t.exec("DELETE FROM edges WHERE parent_id = ? OR child_id = ?", id, id); err != nil {
		return util.NewStoreError("Could not delete node edges", err)
	}

	if _, err := t.exec("DELETE FROM nodes WHERE id = ?", id); err != nil {
		return util.NewStoreError("Could not delete node", err)
	}

	return nil
}

/*
InsertEdge inserts a new edge and returns its id.
*/
func (t *sqlTx) InsertEdge(edge *data.Edge) (string, error) {
	id := edge.ID()
	if id == "" {
		id = uuid.New().String()
	}

	meta, err := data.MarshalMetadata(edge.Metadata())
	if err != nil {
		return "", &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode edge metadata", Cause: err}
	}

	_, err = t.exec("INSERT INTO edges (id, edge_key, parent_id, child_id, edge_group, "+
		"relation_type, edge_index, metadata, created_at, modified_at) "+
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id, nullString(edge.Key()), edge.ParentID(), edge.ChildID(), nullString(edge.Group()),
		nullString(edge.RelationType()), edge.Index(), nullString(meta),
		edge.Created().UnixNano(), edge.Modified().UnixNano())

	if err != nil {
		return "", util.NewStoreError("Could not insert edge", err)
	}

	return id, nil
}

/*
UpdateEdge updates the index and the changed metadata of an existing edge.
*/
func (t *sqlTx) UpdateEdge(edge *data.Edge) error {
	var res sql.Result
	var err error

	if edge.MetadataChanged() {
		var meta string

		if meta, err = data.MarshalMetadata(edge.Metadata()); err != nil {
			return &util.GraphError{Type: util.ErrInvalidData, Detail: "Could not encode edge metadata", Cause: err}
		}

		res, err = t.exec("UPDATE edges SET edge_index = ?, metadata = ?, modified_at = ? WHERE id = ?",
			edge.Index(), nullString(meta), edge.Modified().UnixNano(), edge.ID())

	} else {

		res, err = t.exec("UPDATE edges SET edge_index = ?, modified_at = ? WHERE id = ?",
			edge.Index(), edge.Modified().UnixNano(), edge.ID())
	}

	return checkAffected(res, err, "Could not update edge "+edge.ID())
}

/*
DeleteEdge deletes an edge.
*/
func (t *sqlTx) DeleteEdge(id string) error {
	if _, err := t.exec("DELETE FROM edges WHERE id = ?", id); err != nil {
		return util.NewStoreError("Could not delete edge", err)
	}
	return nil
}

/*
checkAffected checks that an update statement changed a row.
*/
func checkAffected(res sql.Result, err error, detail string) error {
	if err != nil {
		return util.NewStoreError(detail, err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return util.NewStoreError(detail, err)
	} else if n == 0 {
		return &util.GraphError{Type: util.ErrStoreFailure, Detail: detail + ": record does not exist"}
	}

	return nil
}

/*
Commit makes all changes of this transaction permanent.
*/
func (t *sqlTx) Commit() error {
	if t.done {
		return &util.GraphError{Type: util.ErrTransFailed, Detail: "Transaction has already finished"}
	}

	t.done = true

	if err := t.tx.Commit(); err != nil {
		return util.NewStoreError("Could not commit", err)
	}

	return nil
}

/*
Rollback discards all changes of this transaction.
*/
func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true

	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return util.NewStoreError("Could not rollback", err)
	}

	return nil
}
