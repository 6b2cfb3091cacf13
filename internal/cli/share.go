package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// ShareResult is the output of the share command.
type ShareResult struct {
	ShareLink string `json:"share_link"`
	Registry  string `json:"registry"`
	PublicKey string `json:"public_key"`
}

func (r ShareResult) Text() string {
	return r.ShareLink + "\n"
}

// NewShareCommand creates the share command.
func NewShareCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "share",
		Short:         "Print the peer's share link",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := openPeerState(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open data dir", err)
			}
			defer st.Close()

			return rootOpts.formatter(cmd).Success(ShareResult{
				ShareLink: st.shareLink(),
				Registry:  st.root.String(),
				PublicKey: string(st.keys.PublicKey),
			})
		},
	}
}
