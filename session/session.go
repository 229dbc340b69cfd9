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
Package session contains an HTTP middleware which runs every request in its
own unit of work.

The unit of work is available to handlers through Trans. It is committed
when the handler answers with a status code below 400 and rolled back if the
handler answers with an error status or panics.

Authenticate checks HTTP basic auth credentials inside the unit of work of a
request. The authenticated user is available through User and is recorded
as creator or modifier of all nodes which the request stores.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"devt.de/krotik/common/logutil"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/krotik/nodegraph/auth"
	"github.com/krotik/nodegraph/graph"
	"github.com/krotik/nodegraph/graph/data"
)

var logger = logutil.GetLogger("nodegraph.session")

/*
ctxKey is the context key of the unit of work of a request.
*/
type ctxKey struct{}

/*
userKey is the context key of the authenticated user of a request.
*/
type userKey struct{}

/*
Trans returns the unit of work of a request context or nil if the context
has none.
*/
func Trans(ctx context.Context) graph.Trans {
	trans, _ := ctx.Value(ctxKey{}).(graph.Trans)
	return trans
}

/*
WithTrans returns a copy of a context which carries a given unit of work.
*/
func WithTrans(ctx context.Context, trans graph.Trans) context.Context {
	return context.WithValue(ctx, ctxKey{}, trans)
}

/*
User returns the authenticated user of a request context or nil if the
request is anonymous.
*/
func User(ctx context.Context) *data.Node {
	user, _ := ctx.Value(userKey{}).(*data.Node)
	return user
}

/*
Middleware returns an HTTP middleware which opens a unit of work on a given
graph manager for every request.

The unit of work is writable. On the memory store only one writable unit can
be open at a time, so a handler must use the unit of the request and not
start another one with gm.Update; a nested unit would wait until the request
context is done.
*/
func Middleware(gm *graph.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			trans, err := gm.NewTrans(r.Context())
			if err != nil {
				logger.Error("Could not start unit of work: ", err)
				http.Error(w, http.StatusText(http.StatusServiceUnavailable),
					http.StatusServiceUnavailable)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				if rec := recover(); rec != nil {
					trans.Rollback()
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r.WithContext(WithTrans(r.Context(), trans)))

			finish(trans, ww.Status(), r)
		})
	}
}

/*
finish commits or rolls back the unit of work of a request depending on the
response status.
*/
func finish(trans graph.Trans, status int, r *http.Request) {
	if status == 0 {
		status = http.StatusOK
	}

	if status >= http.StatusBadRequest || trans.Failed() {
		trans.Rollback()
		logger.Debug(fmt.Sprintf("Rolled back %v after %v %v: %v", trans.ID(), r.Method, r.URL.Path, status))
		return
	}

	if err := trans.Commit(); err != nil {
		logger.Error(fmt.Sprintf("Could not commit %v after %v %v: %v", trans.ID(), r.Method, r.URL.Path, err))
	}
}

/*
Authenticate is an HTTP middleware which authenticates requests with basic
auth credentials. It must run inside Middleware. Requests without
credentials stay anonymous; requests with wrong credentials are answered
with 401.
*/
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		name, password, ok := r.BasicAuth()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		trans := Trans(r.Context())
		if trans == nil {
			logger.Error("Authentication outside of a unit of work: ", r.URL.Path)
			http.Error(w, http.StatusText(http.StatusInternalServerError),
				http.StatusInternalServerError)
			return
		}

		user, err := auth.Authenticate(trans, name, password)

		if errors.Is(err, auth.ErrAuthFailed) {
			w.Header().Set("WWW-Authenticate", `Basic realm="nodegraph"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return

		} else if err != nil {
			logger.Error("Could not authenticate ", name, ": ", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError),
				http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, user)
		ctx = graph.WithUser(ctx, user.ID())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
