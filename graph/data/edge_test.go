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
	"fmt"
	"reflect"
	"testing"
)

func TestEdgeMetadata(t *testing.T) {
	e := NewEdge("p", "c")

	if res := e.Metadata(); res != nil {
		t.Error("Unexpected result:", res)
		return
	}

	if e.SetMetadata(nil) || e.MetadataChanged() {
		t.Error("Setting absent metadata on an edge without metadata is no change")
		return
	}

	meta := Metadata{"weight": 1.5, "tags": []interface{}{"a", "b"}}

	if !e.SetMetadata(meta) || !e.MetadataChanged() {
		t.Error("Metadata should have changed")
		return
	}

	// The edge holds a copy

	meta["weight"] = 2.0
	meta["tags"].([]interface{})[0] = "x"

	if res := fmt.Sprint(e.Metadata()); res != "map[tags:[a b] weight:1.5]" {
		t.Error("Unexpected result:", res)
		return
	}

	// Callers get a copy

	m2 := e.Metadata()
	m2["weight"] = 3.0

	if res := fmt.Sprint(e.Metadata()["weight"]); res != "1.5" {
		t.Error("Unexpected result:", res)
		return
	}

	e.ClearChanged()

	if e.SetMetadata(Metadata{"weight": 1.5, "tags": []interface{}{"a", "b"}}) {
		t.Error("Equal metadata should not be a change")
		return
	}

	if e.MetadataChanged() {
		t.Error("Unexpected changed flag")
		return
	}

	if !e.SetMetadata(nil) || e.Metadata() != nil {
		t.Error("Removing metadata should be a change")
		return
	}
}

func TestEdgeMetadataEncoding(t *testing.T) {

	if res, err := MarshalMetadata(nil); res != "" || err != nil {
		t.Error("Unexpected result:", res, err)
		return
	}

	if res, err := UnmarshalMetadata(""); res != nil || err != nil {
		t.Error("Unexpected result:", res, err)
		return
	}

	s, err := MarshalMetadata(Metadata{"a": "b", "n": 1})
	if s != `{"a":"b","n":1}` || err != nil {
		t.Error("Unexpected result:", s, err)
		return
	}

	m, err := UnmarshalMetadata(s)
	if fmt.Sprint(m) != "map[a:b n:1]" || err != nil {
		t.Error("Unexpected result:", m, err)
		return
	}

	if _, err := UnmarshalMetadata("{"); err == nil {
		t.Error("Unexpected result:", err)
		return
	}

	// Decoded numbers keep their exact value

	m, _ = UnmarshalMetadata(`{"n":9007199254740993}`)

	if res := fmt.Sprintf("%T %v", m["n"], m["n"]); res != "json.Number 9007199254740993" {
		t.Error("Unexpected result:", res)
		return
	}

	if !m.Equal(Metadata{"n": int64(9007199254740993)}) || m.Equal(Metadata{"n": 9007199254740992.0}) {
		t.Error("Unexpected equality result")
		return
	}
}

func TestMetadataJSONForm(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}

	m := Metadata{
		"int":    7,
		"uint":   uint8(3),
		"float":  float32(0.5),
		"slice":  []string{"a"},
		"struct": point{2},
		"meta":   Metadata{"b": true},
	}

	c := m.Copy()

	for k, expected := range map[string]string{
		"int":    "json.Number 7",
		"uint":   "json.Number 3",
		"float":  "json.Number 0.5",
		"slice":  "[]interface {} [a]",
		"struct": "map[string]interface {} map[x:2]",
		"meta":   "map[string]interface {} map[b:true]",
	} {
		if res := fmt.Sprintf("%T %v", c[k], c[k]); res != expected {
			t.Error("Unexpected result:", k, res)
			return
		}
	}

	// The JSON form survives a store round trip unchanged

	s, _ := MarshalMetadata(c)
	d, _ := UnmarshalMetadata(s)

	if !d.Equal(m) || !reflect.DeepEqual(map[string]interface{}(d), map[string]interface{}(c)) {
		t.Error("Unexpected result:", d, c)
		return
	}
}

func TestEdge(t *testing.T) {
	e := NewEdge("p", "c")
	e.SetID("e1")
	e.SetKey("k1")
	e.SetGroup("g")
	e.SetRelationType("r")
	e.SetIndex(3)

	if res := e.String(); res != `Edge: e1 p -> c (group:"g" rel:"r" index:3 meta:map[])` {
		t.Error("Unexpected result:", res)
		return
	}

	if res := e.OtherEnd("p"); res != "c" {
		t.Error("Unexpected result:", res)
		return
	}

	if res := e.OtherEnd("c"); res != "p" {
		t.Error("Unexpected result:", res)
		return
	}

	c := e.Copy()
	c.SetIndex(5)

	if e.Index() != 3 || c.Index() != 5 || c.Key() != "k1" {
		t.Error("Unexpected result:", e, c)
		return
	}
}
