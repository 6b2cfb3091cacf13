package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/roach88/storagepeer/internal/config"
	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/docstore"
	"github.com/roach88/storagepeer/internal/filestore"
	"github.com/roach88/storagepeer/internal/filestore/grpcfiles"
	"github.com/roach88/storagepeer/internal/link"
	"github.com/roach88/storagepeer/internal/registry"
	"github.com/roach88/storagepeer/internal/status"
)

const remoteTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	FileListen   string
	Port         int
	StatusListen string
	Peers        []string
	Heartbeat    time.Duration
	PollInterval time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storage peer",
		Long: `Run the storage peer until interrupted.

On first start the data directory is populated with a database, an
encryption key pair and a registry document. The peer's share link is
printed on every start; give it to clients so they can register workspaces.

Example:
  storagepeer serve --data ./.data
  storagepeer serve --file-listen :7000 --status-listen 127.0.0.1:8080
  storagepeer serve --peer files.example.com:7000 --heartbeat 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.FileListen, "file-listen", "", "address for the file server (empty disables it)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "port for the file server, shorthand for --file-listen :PORT")
	cmd.Flags().StringVar(&opts.StatusListen, "status-listen", "", "address for the status server (empty disables it)")
	cmd.Flags().StringSliceVar(&opts.Peers, "peer", nil, "remote file server to fetch missing files from (repeatable)")
	cmd.Flags().DurationVar(&opts.Heartbeat, "heartbeat", 0, "heartbeat interval (0 disables heartbeats)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll", 0, "database poll interval (default from config)")

	return cmd
}

func (o *ServeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("file-listen") {
		cfg.FileListen = o.FileListen
	}
	if flags.Changed("port") {
		cfg.FileListen = fmt.Sprintf(":%d", o.Port)
	}
	if flags.Changed("status-listen") {
		cfg.StatusListen = o.StatusListen
	}
	if flags.Changed("peer") {
		cfg.FilePeers = o.Peers
	}
	if flags.Changed("heartbeat") {
		cfg.Heartbeat = o.Heartbeat
	}
	if flags.Changed("poll") {
		cfg.PollInterval = o.PollInterval
	}
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("opening data dir", "path", cfg.DataDir)
	st, err := openPeerState(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open data dir", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	remotes := make([]filestore.NamedCAS, 0, len(cfg.FilePeers))
	for _, target := range cfg.FilePeers {
		client, err := grpcfiles.Dial(target, grpcfiles.DialOptions{Timeout: remoteTimeout})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure file peer "+target, err)
		}
		defer client.Close()
		remotes = append(remotes, filestore.NamedCAS{Name: target, CAS: client})
	}
	warmer := filestore.NewWarmer(st.files, remotes, filestore.WarmerConfig{
		Concurrency: int64(cfg.FetchConcurrency),
		Rate:        cfg.FetchRate,
		Burst:       cfg.FetchBurst,
	}, logger)

	events := status.NewBroadcaster(status.DefaultBuffer)
	peer := registry.New(st.store, st.keyring, st.keys, st.root,
		registry.WithLogger(logger),
		registry.WithFetcher(warmer),
		registry.WithObserver(events.Publish),
	)
	defer peer.Close()
	peer.Init()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.store.Dispatcher().Run(gctx) })
	g.Go(func() error { return st.store.Poll(gctx, cfg.PollInterval) })

	if cfg.FileListen != "" {
		lis, err := net.Listen("tcp", cfg.FileListen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for files", err)
		}
		srv := grpc.NewServer()
		grpcfiles.RegisterFilesServer(srv, &grpcfiles.Server{CAS: st.files})
		slog.Info("file server listening", "addr", lis.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			srv.GracefulStop()
			return nil
		})
	}

	if cfg.StatusListen != "" {
		lis, err := net.Listen("tcp", cfg.StatusListen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for status", err)
		}
		srv := &http.Server{
			Handler:           status.NewServer(peer, peer.Crawler(), events, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		slog.Info("status server listening", "addr", lis.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Heartbeat > 0 {
		g.Go(func() error {
			return heartbeat(gctx, st.store, st.root, cfg.Heartbeat, logger)
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Storage Peer Url: %s\n", peer.ShareLink())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "storage peer error", err)
	}
	slog.Info("storage peer stopped")
	return nil
}

// heartbeat announces the peer as online every interval until ctx is
// canceled.
func heartbeat(ctx context.Context, store *docstore.Store, root link.Link, every time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sendHeartbeats(ctx, store, root, logger)
		}
	}
}

// sendHeartbeats messages every registry key that names a document, then
// the registry document itself.
func sendHeartbeats(ctx context.Context, store *docstore.Store, root link.Link, logger *slog.Logger) {
	doc, err := store.Doc(ctx, root)
	if err != nil {
		logger.Warn("heartbeat skipped", "error", err)
		return
	}
	entries, _ := doc.Map("registry")
	for _, key := range entries.SortedKeys() {
		contact, err := link.Parse(key)
		if err != nil || contact.Kind == link.KindFile {
			continue
		}
		if err := store.Message(ctx, contact.Bare(), heartbeatMessage(contact.Bare(), root)); err != nil {
			logger.Warn("heartbeat failed", "contact_url", contact.Bare().String(), "error", err)
		}
	}
	if err := store.Message(ctx, root, heartbeatMessage(root, root)); err != nil {
		logger.Warn("heartbeat failed", "contact_url", root.String(), "error", err)
	}
}

func heartbeatMessage(contact, device link.Link) content.Map {
	return content.Map{
		"contact":   content.String(contact.String()),
		"device":    content.String(device.String()),
		"heartbeat": content.Bool(true),
		"data": content.Map{
			contact.String(): content.Map{"onlineStatus": content.Map{}},
		},
	}
}
