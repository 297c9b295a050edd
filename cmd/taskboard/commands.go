package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/drag"
	"taskboard/session"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"board", "ls"},
		Short:   "Show the board, one column per category",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openBoard(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), renderBoard(a.board.Snapshot()))
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := draftFromFlags(cmd, args[0], time.Now())
			if err != nil {
				return err
			}
			a, err := openBoard(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.board.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOutcome("created", out))
			return nil
		},
	}
	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().StringP("category", "c", "", "Category (To-Do, In-Progress, Done)")
	cmd.Flags().String("date", "", "Completion date, YYYY-MM-DD (default today)")
	cmd.Flags().String("time", "", "Completion time, HH:MM:SS (default now)")
	return cmd
}

// draftFromFlags fills in today's date and the current time when they are not
// given.
func draftFromFlags(cmd *cobra.Command, title string, now time.Time) (domain.Draft, error) {
	desc, _ := cmd.Flags().GetString("description")
	rawCat, _ := cmd.Flags().GetString("category")
	date, _ := cmd.Flags().GetString("date")
	clock, _ := cmd.Flags().GetString("time")

	d := domain.Draft{Title: title, Description: desc, CompletionDate: date, CompletionTime: clock}
	if rawCat != "" {
		c, err := domain.ParseCategory(rawCat)
		if err != nil {
			return domain.Draft{}, err
		}
		d.Category = c
	}
	if d.CompletionDate == "" {
		d.CompletionDate = now.Format(domain.DateLayout)
	}
	if d.CompletionTime == "" {
		d.CompletionTime = now.Format("15:04:05")
	}
	return d, nil
}

func moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move [id] [category]",
		Short: "Drag a task onto another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseCategory(args[1])
			if err != nil {
				return err
			}
			a, err := openBoard(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			task, ok := a.board.Task(args[0])
			if !ok {
				return fmt.Errorf("task %s not found", args[0])
			}
			ctl := drag.New(a.sess, a.board)
			ctl.Start(task.ID, task.Category)
			out, err := ctl.Drop(cmd.Context(), target.String())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOutcome("moved", out))
			return nil
		},
	}
}

func editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			a, err := openBoard(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.board.Edit(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOutcome("updated", out))
			return nil
		},
	}
	cmd.Flags().StringP("title", "t", "", "New title")
	cmd.Flags().StringP("description", "d", "", "New description")
	cmd.Flags().StringP("category", "c", "", "New category")
	cmd.Flags().String("date", "", "New completion date, YYYY-MM-DD")
	cmd.Flags().String("time", "", "New completion time, HH:MM:SS")
	return cmd
}

// patchFromFlags only sets the fields whose flags were given.
func patchFromFlags(cmd *cobra.Command) (domain.Patch, error) {
	var p domain.Patch
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		p.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		p.Description = &v
	}
	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		c, err := domain.ParseCategory(v)
		if err != nil {
			return domain.Patch{}, err
		}
		p.Category = &c
	}
	if flags.Changed("date") {
		v, _ := flags.GetString("date")
		p.CompletionDate = &v
	}
	if flags.Changed("time") {
		v, _ := flags.GetString("time")
		p.CompletionTime = &v
	}
	if p.IsEmpty() {
		return domain.Patch{}, domain.ErrEmptyPatch
	}
	return p, nil
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id]",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openBoard(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.board.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out.Status == board.NoOp {
				fmt.Fprintf(cmd.OutOrStdout(), "task %s is already gone\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOutcome("deleted", out))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [email]",
		Short: "Sign a local identity token for a store running with LOCAL_AUTH_MODE=hs256",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
			if secret == "" {
				return errors.New("LOCAL_AUTH_SHARED_SECRET must be set")
			}
			audience, _ := cmd.Flags().GetString("audience")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			tok, err := session.SignLocalToken([]byte(secret), args[0], audience, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("audience", os.Getenv("AUTH_AUDIENCE"), "Audience claim")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
