package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/storagepeer/internal/filestore"
	"github.com/roach88/storagepeer/internal/filestore/grpcfiles"
	"github.com/roach88/storagepeer/internal/link"
)

// FileResult is the output of the files subcommands.
type FileResult struct {
	URL   string `json:"url"`
	Bytes int    `json:"bytes"`
	Path  string `json:"path,omitempty"`
}

func (r FileResult) Text() string {
	return r.URL + "\n"
}

// NewFilesCommand creates the files command group.
func NewFilesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage the peer's local file store",
	}
	cmd.AddCommand(newFilesPutCommand(rootOpts))
	cmd.AddCommand(newFilesGetCommand(rootOpts))
	return cmd
}

func newFilesPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "put <path>",
		Short:         "Store a file and print its hyperfile URL",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read file", err)
			}
			files, err := openFiles(rootOpts)
			if err != nil {
				return err
			}
			id, err := files.Put(commandContext(cmd), data)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to store file", err)
			}
			return rootOpts.formatter(cmd).Success(FileResult{
				URL:   filestore.Link(id).String(),
				Bytes: len(data),
			})
		},
	}
}

func newFilesGetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		output string
		peers  []string
		keep   bool
	)
	cmd := &cobra.Command{
		Use:   "get <hyperfile-url>",
		Short: "Copy a stored file out, fetching it from peers if missing",
		Long: `Copy a stored file out of the local file store. When the file is not
present locally and --peer is given, it is fetched from those file servers
first and kept, unless --keep=false.

Example:
  storagepeer files get hyperfile:/bafk... -o photo.jpg
  storagepeer files get hyperfile:/bafk... --peer files.example.com:7000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			l, err := link.Parse(args[0])
			if err != nil || l.Kind != link.KindFile {
				return NewExitError(ExitCommandError, fmt.Sprintf("not a file URL: %q", args[0]))
			}
			id, err := filestore.CIDOf(l)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid file URL", err)
			}

			files, err := openFiles(rootOpts)
			if err != nil {
				return err
			}
			var source filestore.CAS = files
			if len(peers) > 0 {
				remotes := make([]filestore.NamedCAS, 0, len(peers))
				for _, target := range peers {
					client, err := grpcfiles.Dial(target, grpcfiles.DialOptions{Timeout: remoteTimeout})
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to configure file peer "+target, err)
					}
					defer client.Close()
					remotes = append(remotes, filestore.NamedCAS{Name: target, CAS: client})
				}
				if keep {
					warmer := filestore.NewWarmer(files, remotes, filestore.WarmerConfig{}, nil)
					if err := warmer.Fetch(ctx, l); err != nil {
						return WrapExitError(ExitFailure, "failed to fetch file", err)
					}
				} else {
					adapters := []filestore.CAS{files}
					for _, r := range remotes {
						adapters = append(adapters, r.CAS)
					}
					source = filestore.Multi{Adapters: adapters}
				}
			}

			data, err := source.Get(ctx, id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read file", err)
			}
			result := FileResult{URL: l.String(), Bytes: len(data)}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return WrapExitError(ExitFailure, "failed to write output", err)
			}
			result.Path = output
			return rootOpts.formatter(cmd).Success(result)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "file server to fetch from when missing (repeatable)")
	cmd.Flags().BoolVar(&keep, "keep", true, "store files fetched from peers locally")
	return cmd
}

// openFiles opens the local file store without touching the database.
func openFiles(opts *RootOptions) (*filestore.LocalFS, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	files, err := filestore.NewLocalFS(cfg.Path(filesDir))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open file store", err)
	}
	return files, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
