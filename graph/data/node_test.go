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
	"testing"
	"time"
)

func TestNode(t *testing.T) {
	n := NewNode("article")

	if res := n.ID(); len(res) != 36 {
		t.Error("Unexpected id:", res)
		return
	}

	if res := n.Kind(); res != "article" {
		t.Error("Unexpected kind:", res)
		return
	}

	if res := n.Key(); res != "" {
		t.Error("Unexpected key:", res)
		return
	}

	n.SetKey("first")
	n.SetAttr("title", "Hello World")
	n.SetAttr("count", 5)
	n.SetAttr("_digest", "secret")
	n.SetAttr("raw", []byte("abc"))

	if res := n.StringAttr("title"); res != "Hello World" {
		t.Error("Unexpected result:", res)
		return
	}

	if res := n.StringAttr("count"); res != "" {
		t.Error("Unexpected result:", res)
		return
	}

	if res := fmt.Sprint(n.IndexMap()); res != "map[count:5 key:first kind:article title:Hello World]" {
		t.Error("Unexpected result:", res)
		return
	}

	n.SetAttr("count", nil)

	if res := n.Attr("count"); res != nil {
		t.Error("Unexpected result:", res)
		return
	}

	now := time.Now()
	n.Touch(now)

	if !n.Created().Equal(now) || !n.Modified().Equal(now) {
		t.Error("Unexpected timestamps:", n.Created(), n.Modified())
		return
	}

	later := now.Add(time.Second)
	n.Touch(later)

	if !n.Created().Equal(now) || !n.Modified().Equal(later) {
		t.Error("Unexpected timestamps:", n.Created(), n.Modified())
		return
	}

	c := n.Copy()
	c.SetAttr("title", "Changed")

	if res := n.StringAttr("title"); res != "Hello World" {
		t.Error("Copy should not share attributes:", res)
		return
	}

	n2 := NewNodeWithID("123", "image")
	n2.SetAttr("name", "pic")
	n2.SetKey("k2")

	if res := n2.String(); res != `Node:
      id : 123
    kind : image
     key : k2
    name : pic
` {
		t.Error("Unexpected result:", res)
		return
	}

	n3 := RestoreNode("456", "image", "k", nil, now, now, "u1", "")

	if res := len(n3.Data()); res != 0 {
		t.Error("Unexpected result:", res)
		return
	}

	n3.SetAuthors(n3.CreatedBy(), "u2")
	c = n3.Copy()

	if c.CreatedBy() != "u1" || c.ModifiedBy() != "u2" {
		t.Error("Unexpected result:", c.CreatedBy(), c.ModifiedBy())
		return
	}
}
