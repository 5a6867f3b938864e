package main

import (
	"fmt"
	"strings"

	"branchpost/application/queries"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/infrastructure/di"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Run one generation job and print the tree",
	Long: `Run a generation job to completion without the interactive session.

The job goes through the same ledger as API jobs, so its outcome can be
inspected later with "postgen show".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		container, cleanup, err := openContainer(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		topic := strings.Join(args, " ")
		job, err := container.Ledger.Create(ctx, "", topic, uuid.New().String())
		if err != nil {
			return fmt.Errorf("create job: %w", err)
		}

		container.Runner.Run(ctx, job.ID(), job.Topic(), job.SessionID())

		job, err = container.Ledger.Get(ctx, job.ID())
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if job.Status() != entities.JobStatusCompleted {
			return fmt.Errorf("job %s %s: %s", job.ID(), job.Status(), job.ErrorText())
		}
		return printTree(cmd, container, job.TreeID())
	},
}

var showCmd = &cobra.Command{
	Use:   "show <tree-id>",
	Short: "Print a stored tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, cleanup, err := openContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		return printTree(cmd, container, valueobjects.TreeID(args[0]))
	},
}

func printTree(cmd *cobra.Command, container *di.Container, treeID valueobjects.TreeID) error {
	result, err := container.QueryBus.Ask(cmd.Context(), queries.GetTreeQuery{TreeID: treeID.String()})
	if err != nil {
		return err
	}
	tree, ok := result.(*queries.TreeView)
	if !ok {
		return fmt.Errorf("unexpected tree result %T", result)
	}
	NewRenderer(cmd.OutOrStdout(), container.Prompts).Tree(tree)
	return nil
}
