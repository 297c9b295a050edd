package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskboard/board"
	"taskboard/config"
	"taskboard/remote"
	"taskboard/session"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskboard",
		Short:         "Kanban task board backed by a remote task store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("url", "", "Task store base URL (default $TASKSTORE_URL)")
	rootCmd.PersistentFlags().String("email", "", "Signed-in user email (default $TASKBOARD_EMAIL)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for the task store (default $TASKBOARD_TOKEN)")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(moveCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// app is what every subcommand works against.
type app struct {
	sess  *session.Session
	board *board.Board
}

// openBoard signs in with the configured identity and loads the board.
func openBoard(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	if v, _ := cmd.Flags().GetString("url"); v != "" {
		cfg.StoreURL = v
	}
	if v, _ := cmd.Flags().GetString("email"); v != "" {
		cfg.Email = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	if cfg.Email == "" {
		return nil, errors.New("not signed in: set --email or TASKBOARD_EMAIL")
	}

	sess := session.New(cfg.Email, cfg.Token)
	client := remote.New(cfg.StoreURL,
		remote.WithTokenSource(sess),
		remote.WithTimeout(cfg.HTTPTimeout),
		remote.WithLogger(log.StandardLogger()),
	)
	b := board.New(sess, client, board.WithLogger(log.StandardLogger()))
	if _, err := b.Load(ctx); err != nil {
		return nil, err
	}
	return &app{sess: sess, board: b}, nil
}

func (a *app) Close() {
	a.board.Close()
	a.sess.SignOut()
}
