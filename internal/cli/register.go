package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/link"
)

// RegisterResult is the output of the register command.
type RegisterResult struct {
	Key       string `json:"key"`
	Workspace string `json:"workspace"`
	Registry  string `json:"registry"`
}

func (r RegisterResult) Text() string {
	return fmt.Sprintf("Registered %s as %s\n", r.Workspace, r.Key)
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <workspace-url>",
		Short: "Register a workspace with this peer",
		Long: `Seal a workspace URL to the peer's encryption key and add it to the
registry document, the same way a client does. A running peer picks the
entry up on its next poll.

Example:
  storagepeer register hypermerge:/6Xq...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, rootOpts, args[0])
		},
	}
}

func runRegister(cmd *cobra.Command, opts *RootOptions, workspaceURL string) error {
	out := opts.formatter(cmd)

	workspace, err := link.Parse(workspaceURL)
	if err != nil || workspace.Kind == link.KindFile {
		_ = out.Error(ErrCodeInvalidInput, "not a document URL", workspaceURL)
		return NewExitError(ExitCommandError, fmt.Sprintf("not a document URL: %q", workspaceURL))
	}
	workspace = workspace.Bare()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openPeerState(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg))
	if err != nil {
		_ = out.Error(ErrCodeDataDir, "failed to open data dir", err.Error())
		return WrapExitError(ExitCommandError, "failed to open data dir", err)
	}
	defer st.Close()

	sealed, err := st.keyring.SealedBox(ctx, st.keys.PublicKey, workspace.String())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to seal workspace", err)
	}
	key := uuid.Must(uuid.NewV7()).String()

	err = st.store.Change(ctx, st.root, func(doc content.Map) error {
		entries, ok := doc.Map("registry")
		if !ok {
			entries = content.Map{}
		}
		entries[key] = content.String(sealed)
		doc["registry"] = entries
		return nil
	})
	if err != nil {
		_ = out.Error(ErrCodeStore, "failed to update registry", err.Error())
		return WrapExitError(ExitFailure, "failed to update registry", err)
	}

	out.VerboseLog("sealed %s into %s", workspace, st.root)
	return out.Success(RegisterResult{
		Key:       key,
		Workspace: workspace.String(),
		Registry:  st.root.String(),
	})
}
