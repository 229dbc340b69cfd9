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
Package config contains the global configuration of NodeGraph.
*/
package config

import (
	"fmt"
	"strconv"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/fileutil"
)

// Global variables
// ================

/*
DefaultConfigFile is the default config file which will be used to configure NodeGraph
*/
var DefaultConfigFile = "nodegraph.config.json"

/*
Known configuration options for NodeGraph
*/
const (
	StorageBackend = "StorageBackend"
	StorageName    = "StorageName"
	StorageDSN     = "StorageDSN"
	Neo4jURI       = "Neo4jURI"
	Neo4jUser      = "Neo4jUser"
	Neo4jPassword  = "Neo4jPassword"
	Neo4jDatabase  = "Neo4jDatabase"
	TypesFile      = "TypesFile"
	EnableIndex    = "EnableIndex"
	LocationIndex  = "LocationIndex"
	IndexInMemory  = "IndexInMemory"
	EnableMetrics  = "EnableMetrics"
	LogLevel       = "LogLevel"
)

/*
Known storage backends
*/
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendNeo4j  = "neo4j"
)

/*
DefaultConfig is the defaut configuration
*/
var DefaultConfig = map[string]interface{}{
	StorageBackend: BackendSQL,
	StorageName:    "main",
	StorageDSN:     "nodegraph.db",
	Neo4jURI:       "neo4j://localhost:7687",
	Neo4jUser:      "neo4j",
	Neo4jPassword:  "",
	Neo4jDatabase:  "neo4j",
	TypesFile:      "",
	EnableIndex:    true,
	LocationIndex:  "index",
	IndexInMemory:  false,
	EnableMetrics:  false,
	LogLevel:       "info",
}

/*
Config is the actual config which is used
*/
var Config map[string]interface{}

/*
LoadConfigFile loads a given config file. If the config file does not exist it is
created with the default options.
*/
func LoadConfigFile(configfile string) error {
	var err error

	Config, err = fileutil.LoadConfig(configfile, DefaultConfig)

	return err
}

/*
LoadDefaultConfig loads the default configuration.
*/
func LoadDefaultConfig() {
	data := make(map[string]interface{})
	for k, v := range DefaultConfig {
		data[k] = v
	}

	Config = data
}

// Helper functions
// ================

/*
Str reads a config value as a string value.
*/
func Str(key string) string {
	return fmt.Sprint(Config[key])
}

/*
Int reads a config value as an int value.
*/
func Int(key string) int64 {
	ret, err := strconv.ParseInt(fmt.Sprint(Config[key]), 10, 64)

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
Bool reads a config value as a boolean value.
*/
func Bool(key string) bool {
	ret, err := strconv.ParseBool(fmt.Sprint(Config[key]))

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}
