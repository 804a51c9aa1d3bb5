package cmd

import (
	"net"
	"os"
	"os/user"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/pkg/daemon"
)

// dialAddress turns a listen address into one a client can connect to.
// Wildcard hosts are replaced by the loopback address.
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// currentUser names the caller for daemon requests: $COWORK_USER, then the
// login name.
func currentUser() string {
	if name := os.Getenv("COWORK_USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

// newDaemonClient returns a client for the daemon described by the
// command's configuration. --listen, when registered and set, wins.
func newDaemonClient(cmd *cobra.Command) (*daemon.Client, *config.Config, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	client := daemon.NewClient(dialAddress(cfg.Server.Listen)).
		WithIdentity(currentUser(), "cli-"+uuid.NewString())
	return client, cfg, nil
}

// addListenFlag lets a client command reach a daemon on a non-default address.
func addListenFlag(cmd *cobra.Command) {
	cmd.Flags().String(config.FlagListen, "", "Daemon address (overrides server.listen)")
}
