// Command sudagureum runs the IRC gateway: per-user IRC connections, an
// archive store, and an HTTP/WebSocket control surface (spec §1).
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/nitric1/SudaGureum/internal/applog"
	"github.com/nitric1/SudaGureum/internal/archive"
	"github.com/nitric1/SudaGureum/internal/auth"
	"github.com/nitric1/SudaGureum/internal/config"
	"github.com/nitric1/SudaGureum/internal/httpmsg"
	"github.com/nitric1/SudaGureum/internal/httpserver"
	"github.com/nitric1/SudaGureum/internal/ircclient"
	"github.com/nitric1/SudaGureum/internal/ircpool"
	"github.com/nitric1/SudaGureum/internal/orchestrator"
	"github.com/nitric1/SudaGureum/internal/reactor"
	"github.com/nitric1/SudaGureum/internal/session"
	"github.com/nitric1/SudaGureum/internal/userdb"
	"github.com/nitric1/SudaGureum/internal/wsconn"
)

// version is stamped at release time; left as a plain constant here.
const version = "0.1.0"

type options struct {
	Help    bool   `short:"h" long:"help" description:"show help message"`
	Version bool   `short:"V" long:"version" description:"show version info"`
	Config  string `short:"c" long:"config" description:"specify configure file"`
	Daemon  bool   `short:"d" long:"daemon" description:"run as daemonized mode"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		return 0
	}
	if opts.Version {
		fmt.Println("sudagureum", version)
		return 0
	}

	cfg := config.New()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to load the configure file:", err)
			return 1
		}
		cfg = loaded
	}

	if opts.Daemon {
		daemonize()
	}

	dataPath := cfg.Get("data_path", "./Data")
	logPath := cfg.Get("log_path", "./Data/Log")

	logger, err := applog.Init(logPath, !opts.Daemon)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		return 1
	}

	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create data path")
		return 1
	}

	archiveStore, err := archive.Open(filepath.Join(dataPath, "Archive.db"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to open archive store")
		return 1
	}
	defer archiveStore.Close()

	users, err := userdb.Open(filepath.Join(dataPath, "User.db"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to open user store")
		return 1
	}
	defer users.Close()

	checker := auth.NewChecker(users)
	sessions := session.New()

	pool := ircpool.New(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := connectUsers(ctx, users, pool, archiveStore, logger); err != nil {
		logger.Error().Err(err).Msg("failed to connect registered users' IRC servers")
		return 1
	}

	httpCfg := buildHTTPServerConfig(cfg)
	server := buildHTTPServer(httpCfg, pool.Reactor(), logger, checker, sessions)

	go func() {
		if err := server.Serve(ctx); err != nil {
			logger.Warn().Err(err).Msg("http server stopped")
		}
	}()

	watchSignals(pool)
	if !opts.Daemon {
		shellLoop(pool)
	}

	pool.Shutdown()
	return 0
}

// connectUsers loads every registered user and stands up their per-user
// orchestrator (spec §1 "always-on IRC connections"; SPEC_FULL.md §9 init
// order "DBs → Users → Reactor → Servers"). Each orchestrator registers
// IRC event handlers and issues connects for all of that user's
// configured servers.
func connectUsers(ctx context.Context, users *userdb.DB, pool *ircpool.Pool, store *archive.Store, logger zerolog.Logger) error {
	userIDs, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		servers, err := users.Servers(ctx, userID)
		if err != nil {
			return err
		}

		userLog := applog.ForUser(logger, userID)

		entry := orchestrator.UserEntry{UserID: userID}
		for _, s := range servers {
			entry.Servers = append(entry.Servers, orchestrator.ServerConfig{
				Name:     s.Name,
				Channels: s.Channels,
				Config: ircclient.Config{
					Host:     s.Host,
					Port:     s.Port,
					Encoding: s.Encoding,
					Nicks:    s.Nicks,
					SSL:      s.SSL,
					Logger:   applog.ForServer(userLog, s.Name),
				},
			})
		}

		orchestrator.New(entry, pool, store, userLog)
	}
	return nil
}

func buildHTTPServerConfig(cfg *config.Config) httpserver.Config {
	keepAliveTimeout := time.Duration(config.GetAs(cfg, "http_server_keep_alive_timeout_sec", 5)) * time.Second
	keepAliveMax := config.GetAs(cfg, "http_server_keep_alive_max_count", 20)

	var tlsCfg *tls.Config
	certFile := cfg.Get("ssl_certificate_file", "")
	chainFile := cfg.Get("ssl_certificate_chain_file", "")
	keyFile := cfg.Get("ssl_private_key_file", "")
	if keyFile != "" {
		cert := chainFile
		if cert == "" {
			cert = certFile
		}
		if pair, err := tls.LoadX509KeyPair(cert, keyFile); err == nil {
			tlsCfg = &tls.Config{Certificates: []tls.Certificate{pair}}
		}
	}

	return httpserver.Config{
		Addr:              ":44444",
		TLS:               tlsCfg,
		KeepAliveTimeout:  keepAliveTimeout,
		KeepAliveMaxCount: keepAliveMax,
	}
}

// buildHTTPServer wires the WebSocket Upgrade handoff (spec §4.4 step 2) to
// a fresh wsconn.Conn exposing the heartbeat RPC method (spec §4.5).
func buildHTTPServer(cfg httpserver.Config, pool *reactor.Pool, logger zerolog.Logger, checker *auth.Checker, sessions *session.Store) *httpserver.Server {
	upgrade := func(sock net.Conn, writer *reactor.Writer, pending []byte) {
		conn := wsconn.New(writer, sock, logger)
		conn.Handle("heartbeat", func(req *wsconn.Request) (map[string]any, error) {
			return map[string]any{}, nil
		})

		if len(pending) > 0 {
			_ = conn.Feed(pending)
		}

		buf := make([]byte, 64*1024)
		for {
			n, err := sock.Read(buf)
			if n > 0 {
				if ferr := conn.Feed(buf[:n]); ferr != nil {
					conn.InitiateClose()
					return
				}
			}
			if err != nil {
				return
			}
		}
	}

	srv := httpserver.New(cfg, pool, upgrade, logger)
	srv.Handle("/", func(req *httpmsg.Request) (int, []byte) {
		return 200, []byte("SudaGureum gateway")
	})
	srv.Handle("/login", func(req *httpmsg.Request) (int, []byte) {
		userID := req.Queries.Get("user")
		password := req.Queries.Get("password")
		if !checker.Check(context.Background(), userID, password) {
			return 403, []byte(`{"success":false}`)
		}
		key := sessions.Alloc(userID)
		return 200, []byte(`{"success":true,"sessionKey":"` + key + `"}`)
	})
	return srv
}

func watchSignals(pool *ircpool.Pool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigCh
		pool.CloseAll()
	}()
}

// shellLoop is the minimal interactive REPL (spec's Supplemented features):
// "quit" or EOF triggers graceful shutdown.
func shellLoop(pool *ircpool.Pool) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" {
			break
		}
	}
	pool.CloseAll()
}

// daemonize detaches stdio and re-execs itself with a marker env var,
// matching the spirit of the original -d flag without a double fork.
func daemonize() {
	if os.Getenv("SUDAGUREUM_DAEMONIZED") == "1" {
		return
	}

	env := append(os.Environ(), "SUDAGUREUM_DAEMONIZED=1")
	attr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{nil, nil, nil},
	}
	proc, err := os.StartProcess(os.Args[0], os.Args, attr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to daemonize:", err)
		os.Exit(1)
	}
	_ = proc.Release()
	os.Exit(0)
}
