/*
 * EliasDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/krotik/nodegraph/auth"
	"github.com/krotik/nodegraph/config"
	"github.com/krotik/nodegraph/graph"
	"github.com/krotik/nodegraph/graph/data"
	"github.com/krotik/nodegraph/graph/graphstorage"
	"github.com/krotik/nodegraph/graph/util"
	"github.com/krotik/nodegraph/instance"
	"github.com/spf13/cobra"
)

/*
newRootCmd builds the command tree of the tool.
*/
func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "nodegraph",
		Short:         "Typed graph of nodes with ordered relations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadConfigFile(configFile)
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", config.DefaultConfigFile, "Configuration file")

	root.AddCommand(newSchemaCmd(), newNodeCmd(), newRelationCmd(), newSearchCmd(), newUserCmd())

	return root
}

/*
withInstance runs a function on a freshly opened instance.
*/
func withInstance(cmd *cobra.Command, fn func(ctx context.Context, inst *instance.Instance) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	inst, err := instance.Open(ctx)
	if err != nil {
		return err
	}
	defer inst.Close()

	return fn(ctx, inst)
}

// Schema commands
// ===============

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the schema of the record store",
	}

	run := func(create bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				ss, ok := inst.Schema()
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Record store needs no schema")
					return nil
				}

				if create {
					return ss.CreateSchema(ctx)
				}
				return ss.DropSchema(ctx)
			})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE:  run(true),
	}, &cobra.Command{
		Use:   "drop",
		Short: "Remove the schema and all records",
		Args:  cobra.NoArgs,
		RunE:  run(false),
	})

	return cmd
}

// Node commands
// =============

func newNodeCmd() *cobra.Command {
	var key string
	var attrs []string

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Store and show nodes",
	}

	add := &cobra.Command{
		Use:   "add <kind> <id>",
		Short: "Store a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				return inst.GraphManager.Update(ctx, func(trans graph.Trans) error {
					node, err := trans.FetchNode(args[1])
					if err != nil {
						return err
					}

					if node == nil {
						node = data.NewNodeWithID(args[1], args[0])
					} else if node.Kind() != args[0] {
						return &util.GraphError{Type: util.ErrTypeMismatch,
							Detail: fmt.Sprintf("Node %v is of kind %v", node.ID(), node.Kind())}
					}

					if key != "" {
						node.SetKey(key)
					}

					for _, attr := range attrs {
						name, value, ok := strings.Cut(attr, "=")
						if !ok {
							return &util.GraphError{Type: util.ErrInvalidData,
								Detail: fmt.Sprintf("Attribute must be given as name=value: %v", attr)}
						}
						node.SetAttr(name, value)
					}

					return trans.StoreNode(node)
				})
			})
		},
	}

	add.Flags().StringVar(&key, "key", "", "Unique key of the node")
	add.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as name=value (repeatable)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				node, err := inst.GraphManager.FetchNode(ctx, args[0])
				if err != nil {
					return err
				} else if node == nil {
					return &util.GraphError{Type: util.ErrUnknownNode, Detail: args[0]}
				}

				fmt.Fprintln(cmd.OutOrStdout(), node)

				return nil
			})
		},
	}

	cmd.AddCommand(add, show)

	return cmd
}

// Relation commands
// =================

/*
relationFlags are the flags which select a relation slot.
*/
type relationFlags struct {
	parent   bool
	group    string
	relType  string
	kinds    []string
	subtypes bool
}

func (rf *relationFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&rf.parent, "parent", false, "Select parent nodes instead of child nodes")
	cmd.Flags().StringVar(&rf.group, "group", "", "Group of the relation (empty for ungrouped)")
	cmd.Flags().StringVar(&rf.relType, "rel", "", "Relation type (empty for untyped)")
	cmd.Flags().StringSliceVar(&rf.kinds, "kinds", nil, "Allowed kinds of related nodes")
	cmd.Flags().BoolVar(&rf.subtypes, "subtypes", true, "Allow subtypes of the given kinds")
}

/*
spec builds the relation declaration. Labels which are not given on the
command line match any value if matchAll is set and only unset values
otherwise.
*/
func (rf *relationFlags) spec(cmd *cobra.Command, matchAll bool) graph.RelationSpec {
	label := func(flag string, value string) data.Match {
		if cmd.Flags().Changed(flag) {
			return data.MatchExactly(value)
		} else if matchAll {
			return data.MatchAny()
		}
		return data.MatchUnset()
	}

	direction := data.Child
	if rf.parent {
		direction = data.Parent
	}

	return graph.RelationSpec{
		Direction:       direction,
		Group:           label("group", rf.group),
		RelationType:    label("rel", rf.relType),
		Kinds:           rf.kinds,
		IncludeSubtypes: rf.subtypes,
	}
}

func newRelationCmd() *cobra.Command {
	var getFlags, setFlags relationFlags

	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Read and replace the related nodes of a node",
	}

	get := &cobra.Command{
		Use:   "get <owner>",
		Short: "List the related nodes of a node in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				view := inst.GraphManager.Relation(args[0], getFlags.spec(cmd, true))

				return inst.GraphManager.Read(ctx, func(r graphstorage.Reader) error {
					edges, err := view.Edges(r)
					if err != nil {
						return err
					}

					filter := view.Filter()

					for _, e := range edges {
						fmt.Fprintf(cmd.OutOrStdout(), "%v %v group:%q rel:%q meta:%v\n", e.Index(),
							filter.OtherEnd(e), e.Group(), e.RelationType(), e.Metadata())
					}

					return nil
				})
			})
		},
	}

	getFlags.register(get)

	set := &cobra.Command{
		Use:   "set <owner> [target...]",
		Short: "Replace the related nodes of a node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				view := inst.GraphManager.Relation(args[0], setFlags.spec(cmd, false))

				targets := make([]graph.Target, 0, len(args)-1)
				for _, id := range args[1:] {
					targets = append(targets, graph.Target{NodeID: id})
				}

				return inst.GraphManager.Update(ctx, func(trans graph.Trans) error {
					edges, err := view.Set(trans, targets)

					if err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "Relation of %v has %v nodes\n", args[0], len(edges))
					}

					return err
				})
			})
		},
	}

	setFlags.register(set)

	cmd.AddCommand(get, set)

	return cmd
}

// Search command
// ==============

func newSearchCmd() *cobra.Command {
	var kinds []string
	var exclude, subtypes bool

	cmd := &cobra.Command{
		Use:   "search <attr> <phrase>",
		Short: "Find nodes where an attribute contains a phrase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				ids, err := inst.GraphManager.Search(args[0], args[1], kinds, exclude, subtypes)

				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}

				return err
			})
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "Only return nodes of these kinds")
	cmd.Flags().BoolVar(&exclude, "exclude", false, "Exclude nodes of the given kinds instead")
	cmd.Flags().BoolVar(&subtypes, "subtypes", true, "Include subtypes of the given kinds")

	return cmd
}

// User commands
// =============

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	add := &cobra.Command{
		Use:   "add <name> <password>",
		Short: "Add a user or change the password of an existing user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				return inst.GraphManager.Update(ctx, func(trans graph.Trans) error {
					user, err := trans.FetchNodeByKey(args[0])
					if err != nil {
						return err
					}

					if user == nil {
						if user, err = auth.NewUser(args[0], args[1]); err != nil {
							return err
						}
					} else if user.Kind() != auth.UserKind {
						return &util.GraphError{Type: util.ErrTypeMismatch,
							Detail: fmt.Sprintf("Key %v is used by a node of kind %v", args[0], user.Kind())}
					} else if err := auth.SetPassword(user, args[1]); err != nil {
						return err
					}

					return trans.StoreNode(user)
				})
			})
		},
	}

	check := &cobra.Command{
		Use:   "check <name> <password>",
		Short: "Check the password of a user and record the login",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, inst *instance.Instance) error {
				return inst.GraphManager.Update(ctx, func(trans graph.Trans) error {
					user, err := auth.Authenticate(trans, args[0], args[1])

					if err == nil {
						fmt.Fprintln(cmd.OutOrStdout(), "Authenticated", user.Key())
					}

					return err
				})
			})
		},
	}

	cmd.AddCommand(add, check)

	return cmd
}
