package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/trunkrs/trunk/internal/config"
	"github.com/trunkrs/trunk/internal/engine"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/serve"
	"github.com/trunkrs/trunk/internal/toolcache"
	"github.com/trunkrs/trunk/internal/watch"
)

var (
	cfgFile string
	log     = logx.Default()
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trunk",
		Short: "Build, watch, and serve WASM web applications",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to Trunk.toml (default: ./Trunk.toml)")

	root.AddCommand(
		newBuildCommand(),
		newWatchCommand(),
		newServeCommand(),
		newCleanCommand(),
		newConfigCommand(),
	)
	return root
}

// buildFlagKeys maps each CLI flag's idiomatic dashed name to the
// dotted Trunk.toml/viper key it overrides.
var buildFlagKeys = map[string]string{
	"target":     "build.target",
	"dist":       "build.dist",
	"public-url": "build.public_url",
	"release":    "build.release",
	"no-sri":     "build.no_sri",
	"offline":    "build.offline",
}

func bindBuildFlags(fs *pflag.FlagSet) {
	fs.String("target", "index.html", "index HTML file to drive the build")
	fs.String("dist", "dist", "output directory for all final assets")
	fs.String("public-url", "/", "public URL from which assets are served")
	fs.Bool("release", false, "build in release mode")
	fs.Bool("no-sri", false, "disable subresource integrity attributes")
	fs.Bool("offline", false, "run cargo without network access")
}

func loadBuildConfig(fs *pflag.FlagSet) (*config.Loaded, error) {
	return config.Load(config.Options{ConfigFile: cfgFile, Flags: fs, FlagKeys: buildFlagKeys})
}

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the application once",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadBuildConfig(cmd.Flags())
			if err != nil {
				return err
			}
			loaded.Build.StagingDist = stagingDirFor(loaded.Build.FinalDist)
			tools := toolcache.New(toolcacheDir(), log)
			eng := engine.New(&loaded.Build, tools, &loaded.Hooks, log, nil)
			if err := eng.Build(context.Background()); err != nil {
				return err
			}
			return promoteStaging(loaded.Build.StagingDist, loaded.Build.FinalDist)
		},
	}
	bindBuildFlags(cmd.Flags())
	return cmd
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild on every source change",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadBuildConfig(cmd.Flags())
			if err != nil {
				return err
			}
			loaded.Build.StagingDist = stagingDirFor(loaded.Build.FinalDist)
			return runWatch(loaded, nil)
		},
	}
	bindBuildFlags(cmd.Flags())
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, watch, and serve the application with autoreload",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(config.Options{ConfigFile: cfgFile, Flags: cmd.Flags(), FlagKeys: serveFlagKeys})
			if err != nil {
				return err
			}
			loaded.Build.StagingDist = stagingDirFor(loaded.Build.FinalDist)

			wsPath := "/_trunk/ws"
			if !loaded.Serve.NoAutoreload {
				loaded.Build.AutoreloadWS = fmt.Sprintf("ws://%s:%d%s", loaded.Serve.Address, loaded.Serve.Port, wsPath)
			}

			srv, err := serve.New(loaded.Build.FinalDist, "/api", loaded.Serve.ProxyBackend, log)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:    fmt.Sprintf("%s:%d", loaded.Serve.Address, loaded.Serve.Port),
				Handler: srv.Handler(wsPath, "/api"),
			}
			go func() {
				log.Start("serving on http://%s", httpServer.Addr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("server failed: %v", err)
				}
			}()

			return runWatch(loaded, srv)
		},
	}
	bindBuildFlags(cmd.Flags())
	cmd.Flags().String("address", "127.0.0.1", "address to serve on")
	cmd.Flags().Int("port", 8080, "port to serve on")
	cmd.Flags().Bool("open", false, "set serve.open in the resolved config (serve does not launch a browser)")
	cmd.Flags().Bool("no-autoreload", false, "disable the autoreload WebSocket")
	cmd.Flags().String("proxy-backend", "", "URL to proxy /api requests to")
	return cmd
}

// serveFlagKeys extends buildFlagKeys with the serve-only flags.
var serveFlagKeys = mergedFlagKeys(buildFlagKeys, map[string]string{
	"address":       "serve.address",
	"port":          "serve.port",
	"open":          "serve.open",
	"no-autoreload": "serve.no_autoreload",
	"proxy-backend": "serve.proxy_backend",
})

func mergedFlagKeys(maps ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func newCleanCommand() *cobra.Command {
	var cargoClean bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(config.Options{ConfigFile: cfgFile, Flags: cmd.Flags(), FlagKeys: map[string]string{"dist": "build.dist"}})
			if err != nil {
				return err
			}
			if err := os.RemoveAll(loaded.Build.FinalDist); err != nil {
				return err
			}
			if cargoClean {
				if err := runCargoClean(loaded.Build.Target); err != nil {
					log.Error("cargo clean failed: %v", err)
				}
			}
			log.Success("cleaned %s", loaded.Build.FinalDist)
			return nil
		},
	}
	cmd.Flags().String("dist", "dist", "output directory for all final assets")
	cmd.Flags().BoolVar(&cargoClean, "cargo", false, "also run cargo clean")
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the fully resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadBuildConfig(cmd.Flags())
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", loaded.Build)
			return nil
		},
	}
	bindBuildFlags(cmd.Flags())
	return cmd
}

func runWatch(loaded *config.Loaded, srv *serve.Server) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tools := toolcache.New(toolcacheDir(), log)

	w, err := watch.New(loaded.Watch.Paths, loaded.Watch.Ignore, log)
	if err != nil {
		return err
	}
	defer w.Close()

	eng := engine.New(&loaded.Build, tools, &loaded.Hooks, log, w.Ignore)

	rebuild := func(ctx context.Context) {
		err := eng.Build(ctx)
		switch {
		case err != nil:
			log.Error("build failed: %v", err)
			if srv != nil {
				srv.BroadcastBuildFailure(err.Error())
			}
		default:
			if err := promoteStaging(loaded.Build.StagingDist, loaded.Build.FinalDist); err != nil {
				log.Error("promoting build output failed: %v", err)
				return
			}
			if srv != nil {
				srv.BroadcastReload()
			}
		}
	}

	rebuild(ctx)
	w.Run(ctx, rebuild)
	return nil
}

func stagingDirFor(finalDist string) string {
	return filepath.Join(filepath.Dir(finalDist), ".trunk-staging")
}

// promoteStaging atomically-ish replaces finalDist with the contents
// of stagingDist once a build completes, so a dev server never serves
// a half-written tree.
func promoteStaging(stagingDist, finalDist string) error {
	if err := os.RemoveAll(finalDist); err != nil {
		return err
	}
	return os.Rename(stagingDist, finalDist)
}

func toolcacheDir() string {
	home, err := os.UserCacheDir()
	if err != nil {
		return ".trunk-tools"
	}
	return filepath.Join(home, "trunk")
}

func runCargoClean(target string) error {
	manifestDir := filepath.Dir(target)
	cmd := exec.Command("cargo", "clean", "--manifest-path", filepath.Join(manifestDir, "Cargo.toml"))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
