/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import (
	"bytes"
	"encoding/json"
	"reflect"
)

/*
Metadata is an opaque structured value which is attached to an edge. It
must round-trip through a store unchanged.

Metadata is held in its JSON form: numbers are json.Number values, nested
objects are map[string]interface{} and arrays are []interface{}. Stores
decode metadata into the same form so values compare equal on every backend.
*/
type Metadata map[string]interface{}

/*
Copy returns a deep copy of the metadata in its JSON form.
*/
func (m Metadata) Copy() Metadata {
	if m == nil {
		return nil
	}

	return Metadata(jsonMap(m))
}

/*
Equal checks if two metadata values are deeply equal.
*/
func (m Metadata) Equal(other Metadata) bool {
	if len(m) == 0 && len(other) == 0 {
		return (m == nil) == (other == nil)
	}

	return reflect.DeepEqual(jsonMap(m), jsonMap(other))
}

/*
MarshalMetadata encodes metadata for storage. Absent metadata is encoded as
an empty string.
*/
func MarshalMetadata(m Metadata) (string, error) {
	if m == nil {
		return "", nil
	}

	res, err := json.Marshal(m)

	return string(res), err
}

/*
UnmarshalMetadata decodes metadata which was encoded with MarshalMetadata.
*/
func UnmarshalMetadata(s string) (Metadata, error) {
	var m Metadata

	if s == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewBufferString(s))
	dec.UseNumber()

	err := dec.Decode(&m)

	return m, err
}

/*
copyMap copies a map and all nested maps and slices.
*/
func copyMap(m map[string]interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, len(m))

	for k, v := range m {
		ret[k] = copyValue(v)
	}

	return ret
}

func copyValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		return copyMap(tv)
	case Metadata:
		return Metadata(copyMap(tv))
	case []interface{}:
		ret := make([]interface{}, len(tv))
		for i, e := range tv {
			ret[i] = copyValue(e)
		}
		return ret
	case []string:
		return append([]string(nil), tv...)
	case []byte:
		return append([]byte(nil), tv...)
	}

	return v
}

/*
jsonMap copies a map and all nested values into their JSON form.
*/
func jsonMap(m map[string]interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, len(m))

	for k, v := range m {
		ret[k] = jsonForm(v)
	}

	return ret
}

func jsonForm(v interface{}) interface{} {
	switch tv := v.(type) {
	case nil, string, bool, json.Number:
		return v
	case map[string]interface{}:
		return jsonMap(tv)
	case Metadata:
		return jsonMap(tv)
	case []interface{}:
		ret := make([]interface{}, len(tv))
		for i, e := range tv {
			ret[i] = jsonForm(e)
		}
		return ret
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:

		if res, err := json.Marshal(tv); err == nil {
			return json.Number(res)
		}

		return v
	}

	return jsonValue(v)
}

/*
jsonValue converts any other value through its JSON encoding. Values which
cannot be encoded are kept as they are; storing them fails later.
*/
func jsonValue(v interface{}) interface{} {
	var ret interface{}

	res, err := json.Marshal(v)
	if err != nil {
		return v
	}

	dec := json.NewDecoder(bytes.NewBuffer(res))
	dec.UseNumber()

	if err := dec.Decode(&ret); err != nil {
		return v
	}

	return jsonForm(ret)
}
