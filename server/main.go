package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"
	"github.com/redis/go-redis/v9"

	"github.com/Anshjain123/Code-N-Collab/backend"
	"github.com/Anshjain123/Code-N-Collab/runner"
	"github.com/Anshjain123/Code-N-Collab/store"
)

// Version is set at build time.
var Version = "0.0.0-local"

const usage = `Code-N-Collab server.

Serves the collaboration socket (/collab), the compile socket (/socket)
and model snapshots. Without redis, programs run in this process; with
redis, runs go through a job queue consumed by workers.

Usage:
    server [--config=<path>] [--listen=<addr>] [--advertise] [--verbosity=<level>]
    server worker [--config=<path>] [--workers=<n>] [--verbosity=<level>]
    server -h | --help
    server --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --config=<path>      YAML configuration file.
    --listen=<addr>      Listen address, overrides the config.
    --advertise          Announce the server over mDNS.
    --workers=<n>        Queue consumers to run [default: 4].
    --verbosity=<level>  Log verbosity [default: 0].`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	if v, _ := opts.String("--verbosity"); v != "" {
		flag.Set("v", v)
	}
	defer glog.Flush()

	path, _ := opts.String("--config")
	cfg, err := LoadConfig(path)
	if err != nil {
		glog.Errorf("[server]config: %v", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if worker, _ := opts.Bool("worker"); worker {
		n, err := opts.Int("--workers")
		if err != nil || n <= 0 {
			glog.Errorf("[server]--workers must be a positive number")
			os.Exit(2)
		}
		if err := runWorker(ctx, cfg, n); err != nil {
			glog.Errorf("[server]%v", err)
			os.Exit(1)
		}
		return
	}

	if listen, _ := opts.String("--listen"); listen != "" {
		cfg.Listen = listen
	}
	if advertise, _ := opts.Bool("--advertise"); advertise {
		cfg.Advertise.Enabled = true
	}
	if err := serve(ctx, cfg); err != nil {
		glog.Errorf("[server]%v", err)
		os.Exit(1)
	}
}

func newLocal(cfg Config) *runner.Local {
	local := runner.NewLocal()
	local.Timeout = cfg.Compile.Timeout
	local.MaxOutput = cfg.Compile.MaxOutput
	return local
}

func connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	glog.Infof("[server]connected to redis at %s", addr)
	return rdb, nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		glog.Infof("[server]no database configured, models live in memory")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	glog.Infof("[server]connected to postgres")
	return pg, nil
}

func serve(ctx context.Context, cfg Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var exec runner.Executor = newLocal(cfg)
	if cfg.Redis.Addr != "" {
		rdb, err := connectRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if cfg.Compile.Workers > 0 {
			w := runner.NewWorker(rdb, cfg.Compile.Queue, exec)
			go w.Run(ctx, cfg.Compile.Workers)
		}
		exec = runner.NewQueue(rdb, cfg.Compile.Queue)
	}

	hub := backend.NewHub(st)
	gw := backend.NewGateway(exec, st, cfg.Compile.Timeout+5*time.Second)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	if cfg.Advertise.Enabled {
		shutdown, err := advertise(cfg.Advertise, ln.Addr())
		if err != nil {
			glog.Warningf("[server]mdns: %v", err)
		} else {
			defer shutdown()
		}
	}

	srv := &http.Server{Handler: backend.NewRouter(hub, gw)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	glog.Infof("[server]Code-N-Collab %s listening on %s", Version, ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	glog.Infof("[server]stopped")
	return nil
}

func runWorker(ctx context.Context, cfg Config, n int) error {
	if cfg.Redis.Addr == "" {
		return errors.New("worker mode needs redis.addr or REDIS_ADDR")
	}
	rdb, err := connectRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	glog.Infof("[server]running %d compile workers on %s", n, cfg.Compile.Queue)
	runner.NewWorker(rdb, cfg.Compile.Queue, newLocal(cfg)).Run(ctx, n)
	return nil
}

func advertise(cfg AdvertiseConfig, addr net.Addr) (func(), error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	instance := cfg.Instance
	if instance == "" {
		host, _ := os.Hostname()
		instance = "Code-N-Collab-" + host
	}
	server, err := zeroconf.Register(instance, cfg.Service, "local.", port,
		[]string{"collab=/collab", "socket=/socket", "version=" + Version}, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", cfg.Service, err)
	}
	glog.Infof("[server]mdns service %s registered as %q on port %d", cfg.Service, instance, port)
	return server.Shutdown, nil
}
