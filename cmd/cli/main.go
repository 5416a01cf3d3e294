package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/attic-labs/kingpin"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB"
	"github.com/nickyhof/TreeDB/config"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
)

// Version is set at build time via -ldflags
var Version = "dev"

type handler func(ctx context.Context) error

// registerFunc installs one command on app and records its handler under the
// command's full name.
type registerFunc func(app *kingpin.Application, c *cli, handlers map[string]handler)

var commands = []registerFunc{
	registerInit,
	registerSQL,
	registerAdd,
	registerReset,
	registerCommit,
	registerLog,
	registerStatus,
	registerBranch,
	registerCheckout,
	registerMerge,
	registerDiff,
	registerTable,
	registerGC,
	registerGitExport,
	registerVersion,
}

// cli holds the global flags and the repository opened for the selected
// command.
type cli struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader

	repoDir   *string
	userName  *string
	userEmail *string
	verbose   *bool

	log      *logrus.Logger
	instance *TreeDB.Instance
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newApp(c *cli) (*kingpin.Application, map[string]handler) {
	app := kingpin.New("treedb", "A version-controlled SQL table store.")
	app.HelpFlag.Short('h')
	app.UsageWriter(c.out).ErrorWriter(c.errOut)

	c.repoDir = app.Flag("repo-dir", "repository directory").Default(".").String()
	c.userName = app.Flag("user-name", "author name for commits, overrides the repository config").String()
	c.userEmail = app.Flag("user-email", "author email for commits, overrides the repository config").String()
	c.verbose = app.Flag("verbose", "log at debug level").Short('v').Bool()

	handlers := map[string]handler{}
	for _, register := range commands {
		register(app, c, handlers)
	}
	return app, handlers
}

// run parses args, runs the selected command and returns the process exit
// code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	c := &cli{in: in, out: out, errOut: errOut}
	app, handlers := newApp(c)

	selected, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(errOut, "%s %v\n", color.RedString("error:"), err)
		return 2
	}
	h, ok := handlers[selected]
	if !ok {
		app.Usage(args)
		return 2
	}

	c.log = config.NewLogger(config.Default().Log, errOut)
	if *c.verbose {
		c.log.SetLevel(logrus.DebugLevel)
	}
	defer c.close()

	if err := h(ctx); err != nil {
		c.log.WithError(err).Debug("command failed")
		fmt.Fprintf(errOut, "%s %v\n", color.RedString("error [%s]:", core.ErrorCode(err)), err)
		return 1
	}
	return 0
}

// open opens the repository in --repo-dir, logging the way its config says.
func (c *cli) open(ctx context.Context) (*TreeDB.Instance, error) {
	if c.instance != nil {
		return c.instance, nil
	}
	cfg, err := config.Load(config.Path(*c.repoDir))
	if err != nil {
		return nil, err
	}
	c.log = config.NewLogger(cfg.Log, c.errOut)
	if *c.verbose {
		c.log.SetLevel(logrus.DebugLevel)
	}
	instance, err := TreeDB.OpenDir(ctx, *c.repoDir, c.log)
	if err != nil {
		return nil, err
	}
	c.instance = instance
	return instance, nil
}

// engine opens the repository and returns an engine for the effective
// identity.
func (c *cli) engine(ctx context.Context) (*db.Engine, error) {
	instance, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	return instance.Engine(c.identity(instance.Config.User)), nil
}

func (c *cli) identity(configured core.Identity) core.Identity {
	identity := configured
	if *c.userName != "" {
		identity.Name = *c.userName
	}
	if *c.userEmail != "" {
		identity.Email = *c.userEmail
	}
	return identity
}

func (c *cli) close() {
	if c.instance == nil {
		return
	}
	if err := c.instance.Close(); err != nil {
		c.log.WithError(err).Warn("failed to close repository")
	}
	c.instance = nil
}

func (c *cli) success(format string, args ...any) {
	fmt.Fprintln(c.out, color.GreenString(format, args...))
}
