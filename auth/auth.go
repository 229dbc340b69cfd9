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
Package auth stores user credentials as nodes of the graph.

Users are nodes of the kind "user". The name of a user is the node key. The
password is stored as bcrypt digest in a private attribute which is never
written to the search index.
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"devt.de/krotik/common/logutil"
	"github.com/krotik/nodegraph/graph"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/util"
	"golang.org/x/crypto/bcrypt"
)

var logger = logutil.GetLogger("nodegraph.auth")

/*
UserKind is the node kind of users
*/
const UserKind = "user"

/*
Attributes of user nodes
*/
const (
	AttrDigest    = data.PrivateAttrPrefix + "digest"
	AttrLastLogin = "last_login"
)

/*
ErrAuthFailed is returned if a user cannot be authenticated. The reason is
not revealed.
*/
var ErrAuthFailed = errors.New("Authentication failed")

/*
Cost is the bcrypt cost which is used for new digests.
*/
var Cost = bcrypt.DefaultCost

/*
dummyDigest is compared against if a user has no digest so that a check
always takes about the same time.
*/
var dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("nodegraph"), bcrypt.MinCost)

/*
RegisterKind declares the user kind in a type registry.
*/
func RegisterKind(types *util.TypeRegistry) error {
	if types.IsRegistered(UserKind) {
		return nil
	}
	return types.Register(UserKind, "")
}

/*
NewUser creates a new user node with a given name and password.
*/
func NewUser(name string, password string) (*data.Node, error) {
	if name == "" {
		return nil, &util.GraphError{Type: util.ErrInvalidData, Detail: "User name must not be empty"}
	}

	user := data.NewNode(UserKind)
	user.SetKey(name)

	if err := SetPassword(user, password); err != nil {
		return nil, err
	}

	return user, nil
}

/*
SetPassword stores the digest of a new password in a user node.
*/
func SetPassword(user *data.Node, password string) error {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return &util.GraphError{Type: util.ErrInvalidData,
			Detail: fmt.Sprintf("Could not set password of %v", user.Key()), Cause: err}
	}

	user.SetAttr(AttrDigest, string(digest))

	return nil
}

/*
CheckPassword checks a password against the digest of a user node. A user
without digest never matches.
*/
func CheckPassword(user *data.Node, password string) bool {
	digest := user.StringAttr(AttrDigest)

	if digest == "" {
		bcrypt.CompareHashAndPassword(dummyDigest, []byte(password))
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

/*
Authenticate looks up a user by name and checks the password. The time of a
successful login is recorded in the user node and the user becomes the
acting user of the unit of work.
*/
func Authenticate(trans graph.Trans, name string, password string) (*data.Node, error) {
	user, err := trans.FetchNodeByKey(name)
	if err != nil {
		return nil, err
	}

	if user == nil || user.Kind() != UserKind {
		user = data.NewNode(UserKind)
	}

	if !CheckPassword(user, password) {
		logger.Info("Failed login of ", name)
		return nil, &util.GraphError{Type: ErrAuthFailed, Detail: name}
	}

	trans.SetUser(user.ID())

	user.SetAttr(AttrLastLogin, time.Now().UTC().Format(time.RFC3339Nano))

	if err := trans.StoreNode(user); err != nil {
		return nil, err
	}

	return user, nil
}

/*
LastLogin returns the time of the last successful login of a user.
*/
func LastLogin(user *data.Node) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, user.StringAttr(AttrLastLogin))
	return t, err == nil
}
