package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/config"
	"github.com/mantonx/remuxer/internal/database"
	"github.com/mantonx/remuxer/internal/logger"
	"github.com/mantonx/remuxer/internal/modules/jobmodule"
	"github.com/mantonx/remuxer/internal/server"
)

const usage = `usage: remuxer [-config path] <command> [args]

commands:
  serve         run the job API until interrupted
  info <file>   print the identification of a media file as JSON
  version       print the ffmpeg and mkvmerge versions
`

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Get().Logging)
	cfg.AddWatcher(logger.Watch(log))

	switch cmd := flag.Arg(0); cmd {
	case "serve":
		err = serve(cfg, log)
	case "info":
		if flag.NArg() != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = info(cfg, log, flag.Arg(1))
	case "version":
		err = version(cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("REMUXER_CONFIG"); p != "" {
		return p
	}
	return "remuxer.yaml"
}

func serve(cfg *config.Manager, log hclog.Logger) error {
	current := cfg.Get()

	db, err := database.Open(current.Database, log)
	if err != nil {
		return err
	}
	module := jobmodule.NewModule(cfg, log, jobmodule.WithDatabase(db))

	watcher, err := config.NewWatcher(cfg, config.DefaultDebounce, log)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		log.Warn("config file not watched", "error", err)
	} else {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		srv   *server.Server
		errCh <-chan error
	)
	if current.Server.Enabled {
		srv = server.New(current.Server, module, log)
		errCh = srv.Start()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown error", "error", err)
		}
	}
	return module.Shutdown(shutdownCtx)
}

func info(cfg *config.Manager, log hclog.Logger, path string) error {
	module := jobmodule.NewModule(cfg, log)
	defer module.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	j := module.LoadInfo(path)
	go func() {
		<-ctx.Done()
		j.Abort()
	}()

	fileInfo, err := jobmodule.Run(context.Background(), module, j)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(fileInfo)
}

func version(cfg *config.Manager, log hclog.Logger) error {
	module := jobmodule.NewModule(cfg, log)
	defer module.Shutdown(context.Background())

	versions := module.Versions(context.Background())
	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		v := versions[name]
		if v.Error != "" {
			failed++
			fmt.Printf("%-10s %s (unavailable: %s)\n", name, v.Path, v.Error)
			continue
		}
		fmt.Printf("%-10s %s (%s)\n", name, v.Version, v.Path)
	}
	if failed > 0 {
		return fmt.Errorf("%d tool(s) unavailable", failed)
	}
	return nil
}
