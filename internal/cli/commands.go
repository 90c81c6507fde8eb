// Package cli provides the control commands for a running Veil daemon.
package cli

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/veilnet/veil/internal/api"
	"github.com/veilnet/veil/internal/keystore"
	"github.com/veilnet/veil/internal/vpn"
)

const commandTimeout = 60 * time.Second

// NewCommands creates the daemon control commands.
func NewCommands() *cobra.Command {
	var apiAddr string
	var apiToken string

	root := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running Veil daemon",
	}

	root.PersistentFlags().StringVar(&apiAddr, "api", "127.0.0.1:7357", "daemon API address")
	root.PersistentFlags().StringVar(&apiToken, "token", "", "daemon API token")

	client := func() *api.Client {
		return api.NewClient(apiAddr, apiToken)
	}

	connectCmd := &cobra.Command{
		Use:   "connect [server-id]",
		Short: "Connect to a server from the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			status, err := client().Connect(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("State: %s\n", status.State)
			return nil
		},
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Tear the tunnel down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			status, err := client().Disconnect(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("State: %s\n", status.State)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			status, err := client().Status(ctx)
			if err != nil {
				return err
			}
			printStatus(status)
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show traffic statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			stats, err := client().Stats(ctx)
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}

	serversCmd := &cobra.Command{
		Use:   "servers",
		Short: "List available servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			servers, err := client().Servers(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOUNTRY\tCITY\tLOAD")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\n", s.ID, s.Name, s.Country, s.City, s.Load*100)
			}
			return w.Flush()
		},
	}

	root.AddCommand(connectCmd, disconnectCmd, statusCmd, statsCmd, serversCmd)
	return root
}

// NewAuthCommands creates the credential management commands. Tokens live in
// the OS credential store, never in the config file.
func NewAuthCommands() *cobra.Command {
	var account string

	root := &cobra.Command{
		Use:   "auth",
		Short: "Manage control-plane credentials",
	}

	root.PersistentFlags().StringVar(&account, "account", "default", "credential account name")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store the control-plane token",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("Token: ")
			token, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			if len(token) == 0 {
				return fmt.Errorf("token must not be empty")
			}

			if err := keystore.New().SaveToken(account, string(token)); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Printf("Token stored for account %q\n", account)
			return nil
		},
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := keystore.New().DeleteToken(account); err != nil {
				return fmt.Errorf("remove token: %w", err)
			}
			fmt.Printf("Token removed for account %q\n", account)
			return nil
		},
	}

	root.AddCommand(loginCmd, logoutCmd)
	return root
}

func printStatus(status vpn.Status) {
	fmt.Printf("State: %s\n", status.State)
	if status.Error != "" {
		fmt.Printf("Error: %s\n", status.Error)
	}
}

func printStats(stats vpn.Stats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Uploaded:\t%s\n", formatBytes(stats.TotalUploaded))
	fmt.Fprintf(w, "Downloaded:\t%s\n", formatBytes(stats.TotalDownloaded))
	fmt.Fprintf(w, "Upload speed:\t%s/s\n", formatBytes(stats.UploadSpeed))
	fmt.Fprintf(w, "Download speed:\t%s/s\n", formatBytes(stats.DownloadSpeed))
	if stats.ConnectedSince != nil {
		fmt.Fprintf(w, "Connected for:\t%s\n", time.Since(*stats.ConnectedSince).Round(time.Second))
	}
	w.Flush()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
