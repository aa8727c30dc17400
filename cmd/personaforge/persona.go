package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/personaforge/personaforge/pkg/persona"
	"github.com/spf13/cobra"
)

func newPersonaCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage persona records",
	}
	cmd.AddCommand(newPersonaPutCmd(flags), newPersonaGetCmd(flags))
	return cmd
}

// readPersonaFile loads a persona JSON document and binds it to collection.
func readPersonaFile(path, collection string) (*persona.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var st persona.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	st.Collection = collection
	return &st, nil
}

func newPersonaPutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put <collection> <file.json>",
		Short: "Create or replace a persona from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := readPersonaFile(args[1], args[0])
			if err != nil {
				return err
			}

			eng, stop, err := openEngine(cmd, flags)
			if err != nil {
				return err
			}
			defer stop()

			if err := eng.Turns().SavePersona(cmd.Context(), st); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newPersonaGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <persona>",
		Short: "Print a stored persona",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, stop, err := openEngine(cmd, flags)
			if err != nil {
				return err
			}
			defer stop()

			st, err := eng.Personas().Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
