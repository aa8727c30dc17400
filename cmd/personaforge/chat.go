package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/personaforge/personaforge/pkg/engine"
	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/turn"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	personaFile string
	debug       bool
}

func newChatCmd(flags *globalFlags) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat <collection> <persona>",
		Short: "Talk to a persona in an interactive shell",
		Long: "Reads one message per line from stdin and prints the persona's reply.\n" +
			"Type /clear to forget the conversation, /events to list recent events, /quit to leave.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, stop, err := openEngine(cmd, flags)
			if err != nil {
				return err
			}
			defer stop()
			return runChat(cmd, eng, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVar(&opts.personaFile, "persona-file", "", "Seed the persona from a JSON file before chatting")
	cmd.Flags().BoolVar(&opts.debug, "debug-turns", false, "Print retrieval and prompt details after each reply")
	return cmd
}

func runChat(cmd *cobra.Command, eng *engine.Engine, collection, personaID string, opts *chatOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.personaFile != "" {
		st, err := readPersonaFile(opts.personaFile, collection)
		if err != nil {
			return err
		}
		st.ID = personaID
		if err := eng.Turns().SavePersona(ctx, st); err != nil {
			return err
		}
	}

	st, err := eng.Personas().Get(ctx, collection, personaID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Talking to %s (%s). /quit to leave.\n", st.Name, st.Role)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := eng.Turns().ClearConversation(ctx, collection, personaID); err != nil {
				return err
			}
			fmt.Fprintln(out, "(conversation cleared)")
			continue
		case "/events":
			events, err := eng.Turns().Events(ctx, collection, personaID, memory.DefaultRecentEvents)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Fprintf(out, "  [%s] %s\n", e.Kind, e.Description)
			}
			continue
		}

		res, err := eng.Turns().HandleTurn(ctx, turn.Request{
			Query:        line,
			PersonaID:    personaID,
			CollectionID: collection,
			Debug:        opts.debug,
		})
		if err != nil {
			// Upstream outages end the turn, not the session.
			if errors.Is(err, errs.ErrUpstreamUnavailable) || errors.Is(err, errs.ErrInvalidInput) {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				continue
			}
			return err
		}
		printReply(out, res)
	}
}

func printReply(w io.Writer, res *turn.Result) {
	fmt.Fprintf(w, "%s: %s\n", res.Persona, res.Response)
	for _, c := range res.EmotionChanges {
		fmt.Fprintf(w, "  (mood: %s)\n", c.Emotion)
	}
	for _, c := range res.InventoryChanges {
		fmt.Fprintf(w, "  (%s %s)\n", c.Op, c.Item)
	}
	if res.Debug != nil {
		_ = printJSON(w, res.Debug)
	}
}
