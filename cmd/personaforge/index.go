package main

import (
	"fmt"
	"strings"

	"github.com/personaforge/personaforge/pkg/retriever"
	"github.com/spf13/cobra"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect collection indexes",
	}
	cmd.AddCommand(newIndexBuildCmd(flags), newIndexSearchCmd(flags), newIndexListCmd(flags))
	return cmd
}

func newIndexBuildCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build <collection> <dir>",
		Short: "Index every .txt and .md file of dir into collection",
		Long:  "Long documents are split into paragraph chunks. Personas stored in the collection are indexed alongside them and the collection index is replaced.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, dir := args[0], args[1]

			chunks, err := retriever.LoadDirectory(dir)
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				return fmt.Errorf("no .txt or .md content found in %s", dir)
			}

			eng, stop, err := openEngine(cmd, flags)
			if err != nil {
				return err
			}
			defer stop()

			n, err := eng.BuildCollection(cmd.Context(), collection, chunks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks into %q\n", n, collection)
			return nil
		},
	}
}

func newIndexSearchCmd(flags *globalFlags) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <collection> <query...>",
		Short: "Show the chunks nearest to a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, stop, err := openEngine(cmd, flags)
			if err != nil {
				return err
			}
			defer stop()

			results, err := eng.Retriever().Search(cmd.Context(), strings.Join(args[1:], " "), args[0], k)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results (0 uses index.default_k)")
	return cmd
}

func newIndexListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, stop, err := openEngine(cmd, flags)
			if err != nil {
				return err
			}
			defer stop()

			names, err := eng.Index().Collections()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
