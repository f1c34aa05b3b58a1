// wsmount mounts the cloud storage resources of a workspace as FUSE
// directories under one root, following the workspace folder tree, and
// unmounts them again.
//
// Usage:
//
//	wsmount mount [--disable-cache] [flags]
//	wsmount unmount [flags]
//	wsmount status [--json] [flags]
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/wsmount/wsmount/pkg/errors"
)

// errHelp reports that usage was printed and nothing else should happen.
var errHelp = stderrors.New("help requested")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var wsErr *errors.WSMountError
		if errors.IsUserActionable(err) && stderrors.As(err, &wsErr) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", wsErr.GetRecommendation())
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return fmt.Errorf("subcommand required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "mount":
		err = runMount(ctx, args[1:], stdout)
	case "unmount":
		err = runUnmount(ctx, args[1:], stdout)
	case "status":
		err = runStatus(ctx, args[1:], stdout)
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
	if err == errHelp {
		return nil
	}
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: wsmount <subcommand> [flags]

Subcommands:
  mount      Mount every bucket and directory-like object of the workspace
  unmount    Unmount everything under the workspace root and prune empty directories
  status     Show mounted, failed and idle mount points

Failed mounts are left as directories named <resource>_NO_ACCESS,
<resource>_NOT_FOUND or <resource>_MOUNT_FAILED.

Run 'wsmount <subcommand> --help' for subcommand flags.
`)
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath  string
	catalogPath string
	logLevel    string
	rootDir     string
}

func (c *commonFlags) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "path to a YAML configuration file (default: ~/.wsmount/config.yaml if present)")
	flagSet.StringVar(&c.catalogPath, "catalog", "", "path to the workspace resource snapshot (overrides catalog.file)")
	flagSet.StringVar(&c.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	flagSet.StringVar(&c.rootDir, "root", "", "workspace root directory (overrides workspace.root_dir)")
}

func parseFlags(flagSet *pflag.FlagSet, args []string) error {
	flagSet.SetOutput(os.Stderr)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return errHelp
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return nil
}

func runMount(ctx context.Context, args []string, stdout io.Writer) error {
	var common commonFlags
	var disableCache bool

	flagSet := pflag.NewFlagSet("wsmount mount", pflag.ContinueOnError)
	common.addFlags(flagSet)
	flagSet.BoolVar(&disableCache, "disable-cache", false, "disable FUSE metadata caching so remote changes show up immediately")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	a, err := newApp(common, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if !flagSet.Changed("disable-cache") {
		disableCache = a.cfg.Mount.DisableCache
	}
	a.stdout = stdout
	return a.diagnose(a.mount(ctx, disableCache))
}

func runUnmount(ctx context.Context, args []string, stdout io.Writer) error {
	var common commonFlags

	flagSet := pflag.NewFlagSet("wsmount unmount", pflag.ContinueOnError)
	common.addFlags(flagSet)
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	a, err := newApp(common, nil)
	if err != nil {
		return err
	}
	defer a.close()

	a.stdout = stdout
	return a.diagnose(a.unmount(ctx))
}

func runStatus(ctx context.Context, args []string, stdout io.Writer) error {
	var common commonFlags
	var asJSON bool

	flagSet := pflag.NewFlagSet("wsmount status", pflag.ContinueOnError)
	common.addFlags(flagSet)
	flagSet.BoolVar(&asJSON, "json", false, "print the report as JSON")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	a, err := newApp(common, nil)
	if err != nil {
		return err
	}
	defer a.close()

	a.stdout = stdout
	return a.diagnose(a.status(ctx, asJSON))
}
