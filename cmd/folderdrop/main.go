package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FolderDrop/internal/access"
	"github.com/dharsanguruparan/FolderDrop/internal/api"
	"github.com/dharsanguruparan/FolderDrop/internal/app"
	"github.com/dharsanguruparan/FolderDrop/internal/config"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
	"github.com/dharsanguruparan/FolderDrop/internal/queue"
	"github.com/dharsanguruparan/FolderDrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "folderdrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folderdrop",
		Short: "FolderDrop service and admin CLI",
		Long: `folderdrop runs the FolderDrop API and worker, and administers folders,
tokens and archives directly against the configured metadata and object stores.
Configuration is read from FOLDERDROP_* environment variables.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newFolderCmd(),
		newTokenCmd(),
		newArchiveCmd(),
	)
	return cmd
}

// withApp loads configuration, wires the services and runs fn against them.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg, config.SetupLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return api.New(a).Run(cmd.Context())
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process purge and warm tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				p := worker.NewProcessor(a.Folders, a.Archives, a.Logger)
				return worker.Serve(cmd.Context(), queue.RedisOpt(a.Config), a.Config.Workers, p)
			})
		},
	}
}

func newFolderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}
	cmd.AddCommand(
		newFolderCreateCmd(),
		newFolderListCmd(),
		newFolderPauseCmd("pause", true),
		newFolderPauseCmd("resume", false),
		newFolderDeleteCmd(),
	)
	return cmd
}

func newFolderCreateCmd() *cobra.Command {
	var auto bool
	var password string
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a folder; with --auto the id is generated",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				f, err := a.Folders.Create(cmd.Context(), name, auto, password)
				if err != nil {
					return err
				}
				return printJSON(cmd, f)
			})
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "Generate a random six character folder id")
	cmd.Flags().StringVar(&password, "password", "", "Encrypt archives of this folder with a password")
	return cmd
}

func newFolderListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List folders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				list, err := a.Folders.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	}
}

func newFolderPauseCmd(use string, paused bool) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   use + " <folder-id>",
		Short: fmt.Sprintf("%s uploads or downloads for a folder", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return a.Folders.SetPause(cmd.Context(), args[0], model.PauseKind(kind), paused)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.PauseDownload), "Direction to toggle: upload or download")
	return cmd
}

func newFolderDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <folder-id>",
		Short: "Delete a folder, its files and its cached archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return a.Folders.DeleteFolder(cmd.Context(), args[0])
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}
	cmd.AddCommand(
		newTokenCreateCmd(),
		newTokenListCmd(),
		newTokenDeleteCmd(),
		newTokenScopeCmd("assign", true),
		newTokenScopeCmd("unassign", false),
		newTokenPurgeCmd(),
	)
	return cmd
}

func newTokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tokens, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				list, err := a.Access.ListTokens(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	}
}

func newTokenDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token-id>",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return a.Access.DeleteToken(cmd.Context(), args[0])
			})
		},
	}
}

func newTokenScopeCmd(use string, add bool) *cobra.Command {
	short := "Add a folder to a token's scope"
	if !add {
		short = "Remove a folder from a token's scope"
	}
	return &cobra.Command{
		Use:   use + " <token-id> <folder-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				change := a.Access.RemoveFolder
				if add {
					change = a.Access.AssignFolder
				}
				tok, err := change(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, tok)
			})
		},
	}
}

func newTokenPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-expired",
		Short: "Delete every expired token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Access.PurgeExpired(cmd.Context())
				if err != nil {
					return err
				}
				a.Logger.Info("expired tokens purged", slog.Int("count", n))
				return printJSON(cmd, map[string]int{"deleted": n})
			})
		},
	}
}

func newTokenCreateCmd() *cobra.Command {
	var (
		in            access.CustomToken
		permission    string
		maxUploadSize int64
	)
	cmd := &cobra.Command{
		Use:   "create <token>",
		Short: "Create a custom token scoped to folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Token = args[0]
			in.Permission = model.Permission(permission)
			if maxUploadSize > 0 {
				in.MaxUploadSize = &maxUploadSize
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				tok, err := a.Access.CreateCustom(cmd.Context(), in)
				if err != nil {
					return err
				}
				return printJSON(cmd, tok)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Label shown as the uploader name")
	cmd.Flags().DurationVar(&in.ExpiresIn, "expires", 24*time.Hour, "Token lifetime")
	cmd.Flags().IntVar(&in.MaxUses, "max-uses", 1, "Number of uses allowed")
	cmd.Flags().StringVar(&permission, "permission", string(model.PermBoth), "upload, download or both")
	cmd.Flags().StringSliceVar(&in.AllowedFolders, "folders", nil, "Folder ids the token may access")
	cmd.Flags().Int64Var(&maxUploadSize, "max-upload-size", 0, "Per-file upload cap in bytes (0 for none)")
	return cmd
}

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage folder archives",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "build <folder-id>",
		Short: "Build and cache a folder archive without download accounting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Archives.Warm(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.Logger.Info("archive built", slog.String("folder_id", args[0]), slog.String("source", string(res.Source)))
				return printJSON(cmd, res)
			})
		},
	})
	return cmd
}
