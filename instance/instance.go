/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package instance builds a ready-to-use graph from the global configuration.

Open creates the record store, loads the type declarations, opens the search
index and registers the graph rules. The returned instance must be closed
after use.
*/
package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/logutil"
	"github.com/dgraph-io/badger/v4"
	"github.com/krotik/nodegraph/auth"
	"github.com/krotik/nodegraph/config"
	"github.com/krotik/nodegraph/graph"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
	"github.com/prometheus/client_golang/prometheus"
)

var logger = logutil.GetLogger("nodegraph.instance")

/*
ErrConfig is returned if the configuration contains an invalid value.
*/
var ErrConfig = errors.New("Invalid configuration")

/*
logSinkOnce makes sure the console log sink is only added once.
*/
var logSinkOnce sync.Once

/*
Instance data structure
*/
type Instance struct {
	GraphManager *graph.Manager       // Graph manager of this instance
	Storage      graphstorage.Storage // Record store
	Types        *util.TypeRegistry   // Frozen type registry
	Registry     *prometheus.Registry // Metrics registry (nil if metrics are disabled)
	indexDB      *badger.DB           // Search index (nil if the index is disabled)
}

/*
Open creates a new instance from the global configuration. The default
configuration is loaded if no configuration was loaded before.
*/
func Open(ctx context.Context) (*Instance, error) {
	if config.Config == nil {
		config.LoadDefaultConfig()
	}

	if err := setupLogging(config.Str(config.LogLevel)); err != nil {
		return nil, err
	}

	types, err := loadTypes(config.Str(config.TypesFile))
	if err != nil {
		return nil, err
	}

	gs, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}

	inst := &Instance{graph.NewGraphManager(gs, types), gs, types, nil, nil}

	if config.Bool(config.EnableIndex) {

		inst.indexDB, err = util.OpenIndexDB(util.IndexDBConfig{
			Path:     config.Str(config.LocationIndex),
			InMemory: config.Bool(config.IndexInMemory),
		})

		if err != nil {
			gs.Close()
			return nil, err
		}

		inst.GraphManager.EnableIndex(util.NewIndexManager(inst.indexDB))
	}

	if config.Bool(config.EnableMetrics) {
		inst.Registry = prometheus.NewRegistry()
		inst.GraphManager.SetGraphRule(graph.NewMetricsRule(inst.Registry))
	}

	logger.Info(fmt.Sprintf("Opened %v (%v kinds, rules: %v)", inst.GraphManager.Name(),
		len(types.Kinds()), inst.GraphManager.GraphRules()))

	return inst, nil
}

/*
Schema returns the record store if it needs a schema.
*/
func (inst *Instance) Schema() (graphstorage.SchemaStorage, bool) {
	ss, ok := inst.Storage.(graphstorage.SchemaStorage)
	return ss, ok
}

/*
Close closes the search index and the record store.
*/
func (inst *Instance) Close() error {
	errs := errorutil.NewCompositeError()

	if inst.indexDB != nil {
		if err := inst.indexDB.Close(); err != nil {
			errs.Add(err)
		}
	}

	if err := inst.Storage.Close(); err != nil {
		errs.Add(err)
	}

	if errs.HasErrors() {
		return errs
	}

	return nil
}

/*
setupLogging adds a console sink for all loggers of NodeGraph.
*/
func setupLogging(level string) error {
	l := logutil.StringToLoglevel(level)

	if l == "" {
		return &util.GraphError{Type: ErrConfig, Detail: fmt.Sprintf("Unknown log level: %v", level)}
	}

	logSinkOnce.Do(func() {
		logutil.GetLogger("nodegraph").AddLogSink(l, logutil.SimpleFormatter(), os.Stderr)
	})

	return nil
}

/*
loadTypes loads the type declarations and adds the kinds which are needed by
NodeGraph itself.
*/
func loadTypes(typesFile string) (*util.TypeRegistry, error) {
	types := util.NewTypeRegistry()

	if typesFile != "" {
		var err error

		if types, err = util.LoadTypeRegistryFile(typesFile); err != nil {
			return nil, err
		}
	}

	if err := auth.RegisterKind(types); err != nil {
		return nil, err
	}

	types.Freeze()

	return types, nil
}

/*
openStorage opens the configured record store.
*/
func openStorage(ctx context.Context) (graphstorage.Storage, error) {
	var gs graphstorage.Storage
	var err error

	name := config.Str(config.StorageName)

	switch backend := config.Str(config.StorageBackend); backend {

	case config.BackendMemory:
		gs = graphstorage.NewMemoryGraphStorage(name)

	case config.BackendSQL:
		var sgs *graphstorage.SQLGraphStorage

		if sgs, err = graphstorage.NewSQLGraphStorage(ctx, name, config.Str(config.StorageDSN)); err == nil {
			gs = sgs
		}

	case config.BackendNeo4j:
		var ngs *graphstorage.Neo4jGraphStorage

		if ngs, err = graphstorage.NewNeo4jGraphStorage(ctx, name, graphstorage.Neo4jConfig{
			URI:      config.Str(config.Neo4jURI),
			Username: config.Str(config.Neo4jUser),
			Password: config.Str(config.Neo4jPassword),
			Database: config.Str(config.Neo4jDatabase),
		}); err == nil {
			gs = ngs
		}

	default:
		err = &util.GraphError{Type: ErrConfig, Detail: fmt.Sprintf("Unknown storage backend: %v", backend)}
	}

	return gs, err
}
