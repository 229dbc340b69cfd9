/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package util

import (
	"fmt"
	"os"

	"devt.de/krotik/common/logutil"
	"github.com/dgraph-io/badger/v4"
)

/*
IndexDBConfig configures the key-value store of the search index.
*/
type IndexDBConfig struct {
	Path       string // Directory of the store (ignored for in-memory stores)
	InMemory   bool   // Keep the index only in memory
	SyncWrites bool   // Sync every write to disk
}

/*
indexLogger forwards badger log messages to a logutil logger.
*/
type indexLogger struct {
	logger logutil.Logger
}

func (l *indexLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *indexLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warning(fmt.Sprintf(format, args...))
}

func (l *indexLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *indexLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

/*
OpenIndexDB opens the key-value store of the search index.
*/
func OpenIndexDB(cfg IndexDBConfig) (*badger.DB, error) {
	var opts badger.Options

	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)

	} else {

		if cfg.Path == "" {
			return nil, &GraphError{ErrIndexError, "Path is required for a persistent index", nil}
		}

		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, &GraphError{ErrIndexError, fmt.Sprintf("Could not create index directory %v", cfg.Path), err}
		}

		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}

	opts = opts.WithLogger(&indexLogger{logutil.GetLogger("nodegraph.index")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &GraphError{ErrIndexError, "Could not open index", err}
	}

	return db, nil
}
