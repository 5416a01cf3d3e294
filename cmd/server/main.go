// Command treedb-server serves a TreeDB repository over TCP.
//
// The protocol is line oriented. A client sends one request per line, either
// raw SQL, a JSON object {"query": "..."} or IDENTIFY Name <email>, and
// receives one JSON response per line. The first line the server sends on a
// new connection is a "hello" response carrying the connection id.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/attic-labs/kingpin"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB"
	"github.com/nickyhof/TreeDB/config"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/ps"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	app := kingpin.New("treedb-server", "Serve a TreeDB repository over a line oriented JSON protocol.")
	app.HelpFlag.Short('h')
	listen := app.Flag("listen", "address to listen on").Short('l').Default(":3306").String()
	repoDir := app.Flag("repo-dir", "repository directory; an in-memory repository when empty").String()
	userName := app.Flag("user-name", "author of commits from clients that do not IDENTIFY").Default("TreeDB Server").String()
	userEmail := app.Flag("user-email", "email of the default author").Default("server@treedb.local").String()
	requireIdentity := app.Flag("require-identity", "reject statements until the client sends IDENTIFY").Bool()
	certFile := app.Flag("tls-cert", "TLS certificate file").String()
	keyFile := app.Flag("tls-key", "TLS private key file").String()
	showVersion := app.Flag("version", "show version and exit").Bool()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *showVersion {
		fmt.Printf("TreeDB SQL Server v%s\n", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := config.NewLogger(config.Default().Log, os.Stderr)
	instance, err := openInstance(ctx, *repoDir, log)
	if err != nil {
		log.WithError(err).WithField("code", core.ErrorCode(err)).Fatal("failed to open repository")
	}
	defer instance.Close()

	opts := Options{
		Identity:        core.Identity{Name: *userName, Email: *userEmail},
		RequireIdentity: *requireIdentity,
		Logger:          log,
	}
	if *certFile != "" || *keyFile != "" {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load TLS key pair")
		}
		opts.TLS = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	server := NewServer(instance, opts)
	if err := server.Start(*listen); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}

	fmt.Println(color.New(color.FgCyan, color.Bold).Sprintf("TreeDB SQL Server v%s", Version))
	fmt.Printf("Listening on %s\n", server.Addr())
	fmt.Println("Send SQL queries (one per line), 'quit' to disconnect")

	<-ctx.Done()
	log.Info("shutting down")
	if err := server.Stop(); err != nil {
		log.WithError(err).Warn("listener close failed")
	}
	log.Info("server stopped")
}

// openInstance opens the repository in dir, or an in-memory repository when
// dir is empty.
func openInstance(ctx context.Context, dir string, log *logrus.Logger) (*TreeDB.Instance, error) {
	if dir == "" {
		log.Info("using in-memory repository")
		persistence, err := ps.NewMemoryPersistence(ps.Options{Logger: log})
		if err != nil {
			return nil, err
		}
		return TreeDB.Open(persistence), nil
	}
	cfg, err := config.Load(config.Path(dir))
	if err != nil {
		return nil, err
	}
	instance, err := TreeDB.OpenDir(ctx, dir, config.NewLogger(cfg.Log, os.Stderr))
	if err != nil {
		return nil, err
	}
	log.WithField("dir", instance.Persistence.Dir()).Info("opened repository")
	return instance, nil
}
