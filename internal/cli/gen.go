package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/interpose/internal/config"
	"github.com/ppiankov/interpose/internal/gen"
	"github.com/ppiankov/interpose/internal/watch"
)

var (
	genConfig string
	genDir    string
	genWatch  bool
)

func init() {
	rootCmd.AddCommand(genCmd)
	genCmd.Flags().StringVarP(&genConfig, "config", "c", "", "Config file (default interpose.yaml, interpose.yml or interpose.toml in --dir)")
	genCmd.Flags().StringVarP(&genDir, "dir", "C", ".", "Directory to resolve the package and config from")
	genCmd.Flags().BoolVarP(&genWatch, "watch", "w", false, "Regenerate whenever sources or config change")
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate typed proxies from the config file",
	Long: "Loads the configured package, analyzes every target type and writes one Go file\n" +
		"with a <Type>Proxy per target. With --watch, keeps running and regenerates on change.",
	Args: cobra.NoArgs,
	RunE: runGen,
}

func runGen(cmd *cobra.Command, args []string) error {
	path := config.Resolve(genDir, genConfig)
	if path == "" {
		return fmt.Errorf("no config file found in %s", genDir)
	}
	out, err := generate(path)
	if err != nil {
		return err
	}
	if !genWatch {
		return nil
	}

	w, err := watch.New([]string{filepath.Dir(out), path}, func() error {
		_, err := generate(path)
		return err
	}, watch.WithIgnore(out))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", filepath.Dir(out))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}

// generate reloads the config on every call so --watch picks up edits to it.
func generate(path string) (string, error) {
	cfg, hash, err := config.LoadConfigWithHash(path)
	if err != nil {
		return "", err
	}
	if len(cfg.Targets) == 0 {
		return "", fmt.Errorf("%s declares no targets", path)
	}
	out, err := gen.Generate(cfg.Request(genDir))
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d targets, config %s)\n", out, len(cfg.Targets), hash)
	return out, nil
}
