package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/syncq/pkg/background"
	"github.com/bft-labs/syncq/pkg/log"
	"github.com/bft-labs/syncq/pkg/queue"
	"github.com/bft-labs/syncq/pkg/remote"
	"github.com/bft-labs/syncq/pkg/syncq"
)

func (a *app) openStore(ctx context.Context) (queue.Store, error) {
	s := syncq.NewStore(a.cfg.ClientConfig())
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// authorizer sends the credential reference as a bearer token, falling back
// to the configured auth token.
func (a *app) authorizer() remote.Authorizer {
	return remote.AuthorizerFunc(func(ctx context.Context, req *http.Request, credentialRef string) error {
		if credentialRef == "" {
			credentialRef = a.cfg.AuthToken
		}
		return remote.BearerAuthorizer{}.Authorize(ctx, req, credentialRef)
	})
}

func (a *app) newClient(cfg syncq.Config, opts ...syncq.Option) (*syncq.Client, error) {
	opts = append([]syncq.Option{
		syncq.WithLogger(log.NewZerologAdapterWithLogger(a.log)),
		syncq.WithCredentials(a.authorizer()),
	}, opts...)
	c, err := syncq.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch connectivity and replay queued mutations until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireService(); err != nil {
				return err
			}
			c, err := a.newClient(a.cfg.ClientConfig())
			if err != nil {
				return err
			}

			unsubStatus := c.OnConnectionChange(func(s syncq.Status) {
				if s.Drained {
					return
				}
				a.log.Info().Bool("online", s.Online).Msg("connectivity changed")
			})
			defer unsubStatus()
			unsubSync := c.OnSyncNotification(func(r syncq.Result) {
				a.log.Info().Int("synced", r.Synced).Int("failed", r.Failed).Msg("sync finished")
			})
			defer unsubSync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("start syncq: %w", err)
			}
			a.log.Info().Str("db", a.cfg.DBPath).Bool("online", c.GetOnlineStatus()).Msg("syncq running")

			<-sigCh
			a.log.Info().Msg("received signal, stopping...")

			if err := c.Stop(); err != nil {
				return fmt.Errorf("stop syncq: %w", err)
			}
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued mutations once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireService(); err != nil {
				return err
			}

			cfg := a.cfg.ClientConfig()
			cfg.SyncOnReconnect = false
			var opts []syncq.Option
			if cfg.SpoolDir != "" {
				// Register later retries without running the spool watcher.
				opts = append(opts, syncq.WithBackgroundAgent(background.NewSpool(cfg.SpoolDir)))
				cfg.SpoolDir = ""
			}

			c, err := a.newClient(cfg, opts...)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("start syncq: %w", err)
			}

			out := cmd.OutOrStdout()
			var res syncq.Result
			if c.GetOnlineStatus() {
				res, err = c.SyncNow(ctx)
			} else {
				fmt.Fprintln(out, "offline; nothing sent")
			}
			size, sizeErr := c.GetQueueSize(ctx)

			if stopErr := c.Stop(); stopErr != nil {
				return fmt.Errorf("stop syncq: %w", stopErr)
			}
			if err != nil {
				return err
			}
			if sizeErr != nil {
				return sizeErr
			}

			fmt.Fprintf(out, "synced %d, failed %d, %d left in queue\n", res.Synced, res.Failed, size)
			if res.Failed > 0 {
				return fmt.Errorf("%d mutations failed", res.Failed)
			}
			return nil
		},
	}
}

func newEnqueueCmd(a *app) *cobra.Command {
	var (
		m           queue.Mutation
		op          string
		payload     string
		payloadFile string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Persist a mutation for later replay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := queue.ParseOperation(op)
			if err != nil {
				return err
			}
			m.Operation = parsed

			body, err := readPayload(cmd.InOrStdin(), payload, payloadFile)
			if err != nil {
				return err
			}
			m.Payload = body

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.Add(ctx, m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&m.OwnerID, "owner", "", "owner (user or session) id")
	cmd.Flags().StringVar(&m.Resource, "resource", "", "remote resource path, e.g. todos/42")
	cmd.Flags().StringVar(&op, "op", string(queue.OpCreate), "operation: create, update or delete")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON body")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the JSON body from a file (- for stdin)")
	cmd.Flags().StringVar(&m.CredentialRef, "cred", "", "credential reference resolved at replay time")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("resource")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")
	return cmd
}

func readPayload(stdin io.Reader, inline, file string) (json.RawMessage, error) {
	switch {
	case inline != "":
		return json.RawMessage(inline), nil
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return json.RawMessage(b), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return json.RawMessage(b), nil
	}
	return nil, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		owner  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued mutations in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			var records []queue.Record
			if owner != "" {
				records, err = s.GetByOwner(ctx, owner)
			} else {
				records, err = s.GetAll(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return writeRecords(out, records, a.cfg.MaxRetries)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only list mutations created by this owner")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func writeRecords(out io.Writer, records []queue.Record, maxRetries int) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOP\tRESOURCE\tOWNER\tRETRIES\tENQUEUED")
	for _, r := range records {
		retries := fmt.Sprintf("%d", r.RetryCount)
		if r.Exhausted(maxRetries) {
			retries += " (parked)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Operation, r.Resource, r.OwnerID, retries, r.EnqueuedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total:     %d\n", st.Total)
			fmt.Fprintf(out, "pending:   %d\n", st.Pending)
			fmt.Fprintf(out, "retrying:  %d\n", st.Total-st.Pending-st.FailedPermanently)
			fmt.Fprintf(out, "parked:    %d\n", st.FailedPermanently)
			return nil
		},
	}
}

func newDiscardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Remove one queued mutation without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Remove(ctx, args[0]); err != nil {
				if errors.Is(err, queue.ErrNotFound) {
					return fmt.Errorf("no queued mutation with id %q", args[0])
				}
				return err
			}
			a.log.Info().Str("id", args[0]).Msg("mutation discarded")
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued mutation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the queue without --yes")
			}
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Clear(ctx); err != nil {
				return err
			}
			a.log.Info().Msg("queue cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the queue")
	return cmd
}
