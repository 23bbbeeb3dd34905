package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Cray-HPE/sat-sub000/cmd/app"
	"github.com/Cray-HPE/sat-sub000/internal/api/v1/handler"
	"github.com/Cray-HPE/sat-sub000/internal/api/v1/middleware"
	"github.com/Cray-HPE/sat-sub000/internal/common"
	"github.com/Cray-HPE/sat-sub000/internal/features/checks/bos"
	"github.com/Cray-HPE/sat-sub000/internal/features/checks/kube"
	"github.com/Cray-HPE/sat-sub000/internal/features/checks/rest"
	sshcheck "github.com/Cray-HPE/sat-sub000/internal/features/checks/ssh"
	"github.com/Cray-HPE/sat-sub000/internal/features/checks/storage"
	"github.com/Cray-HPE/sat-sub000/internal/features/session"
	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

// Run starts the application
func Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load configuration
	cfg, err := app.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Set up logging
	logger := common.NewLogger(common.LoggerConfig{
		Level:  common.LogLevel(cfg.App.LogLevel),
		Format: common.LogFormat(cfg.App.LogFormat),
	})
	slog.SetDefault(logger)

	// 3. Handle termination signals
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// 4. Register wait metrics
	metrics := waiting.NewMetrics()
	metrics.Register()

	// 5. Launch the configured wait sessions
	coordinator := session.NewCoordinator(logger)
	if err := launchSessions(ctx, cfg, logger, metrics, coordinator); err != nil {
		logger.Error("failed to launch wait sessions", "error", err)
		os.Exit(1)
	}

	// 6. Serve the status API while the sessions run
	srv := startHTTPServer(cfg, logger, coordinator)

	done := make(chan struct{})
	go func() {
		coordinator.Wait()
		close(done)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("terminated before all sessions finished")
		exitCode = 1
	case <-done:
		if coordinator.Failed() {
			logger.Error("one or more wait sessions failed")
			exitCode = 1
		} else {
			logger.Info("all wait sessions completed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	os.Exit(exitCode)
}

// waiterOptions builds the option set shared by every session's waiter.
func waiterOptions(cfg *app.Config, logger *slog.Logger, metrics *waiting.Metrics) []waiting.Option {
	return []waiting.Option{
		waiting.WithTimeout(cfg.Waiter.Timeout),
		waiting.WithPollInterval(cfg.Waiter.PollInterval),
		waiting.WithRetries(cfg.Waiter.Retries),
		waiting.WithLogger(logger),
		waiting.WithMetrics(metrics),
	}
}

// launchSessions starts one wait session per configured check.
func launchSessions(
	ctx context.Context,
	cfg *app.Config,
	logger *slog.Logger,
	metrics *waiting.Metrics,
	coordinator *session.Coordinator,
) error {
	opts := waiterOptions(cfg, logger, metrics)

	launch := func(name string, cond waiting.Condition) error {
		w, err := waiting.NewWaiter(cond, opts...)
		if err != nil {
			return err
		}
		return coordinator.Launch(ctx, name, w)
	}

	if cfg.Checks.Storage {
		client, err := rest.NewClient(rest.ClientConfig{
			Timeout:            cfg.Storage.Timeout,
			InsecureSkipVerify: cfg.Storage.InsecureSkipVerify,
			EnableHTTP2:        true,
		})
		if err != nil {
			return err
		}
		cond := storage.NewHealthCondition(client, cfg.Storage.BaseURL, logger)
		if err := launch("storage-health", cond); err != nil {
			return err
		}
	}

	if len(cfg.Checks.BootSessions) > 0 {
		client, err := rest.NewClient(rest.ClientConfig{
			Timeout:            cfg.BOS.Timeout,
			InsecureSkipVerify: cfg.BOS.InsecureSkipVerify,
			EnableHTTP2:        true,
		})
		if err != nil {
			return err
		}
		poller := bos.NewPoller(client, cfg.BOS.BaseURL, cfg.Checks.BootSessions, logger)
		group, err := waiting.NewGroup[string](poller, cfg.Checks.BootSessions, opts...)
		if err != nil {
			return err
		}
		if err := launch("boot-sessions", group); err != nil {
			return err
		}
	}

	if len(cfg.Checks.Hosts) > 0 || len(cfg.Checks.HostsDown) > 0 {
		signer, err := sshcheck.LoadSigner(cfg.SSH.KeyPath)
		if err != nil {
			return err
		}
		sshConfig := sshcheck.Config{
			User:        cfg.SSH.User,
			KeyPath:     cfg.SSH.KeyPath,
			Port:        cfg.SSH.Port,
			DialTimeout: cfg.SSH.DialTimeout,
		}

		if len(cfg.Checks.Hosts) > 0 {
			cond := sshcheck.NewReachableCondition(sshConfig, signer, cfg.Checks.Hosts, logger)
			if err := launch("hosts-reachable", cond); err != nil {
				return err
			}
		}

		if len(cfg.Checks.HostsDown) > 0 {
			cond := sshcheck.NewUnreachableCondition(sshConfig, signer, cfg.Checks.HostsDown, logger)
			if err := launch("hosts-unreachable", cond); err != nil {
				return err
			}
		}
	}

	if len(cfg.Checks.Nodes) > 0 || len(cfg.Checks.Pods) > 0 {
		clients, err := app.NewKubeClients(&cfg.Kubernetes)
		if err != nil {
			return err
		}

		if len(cfg.Checks.Nodes) > 0 {
			cond := kube.NewNodeReadyCondition(clients.ClientSet, cfg.Checks.Nodes, logger)
			if err := launch("nodes-ready", cond); err != nil {
				return err
			}
		}

		if len(cfg.Checks.Pods) > 0 {
			keys := podKeys(cfg.Checks.Pods, cfg.Kubernetes.Namespace)
			cond := kube.NewPodsRunningCondition(clients.ClientSet, keys, logger)
			if err := launch("pods-running", cond); err != nil {
				return err
			}
		}
	}

	return nil
}

// podKeys parses namespace/name pod references, defaulting the namespace.
func podKeys(refs []string, defaultNamespace string) []kube.PodKey {
	keys := make([]kube.PodKey, 0, len(refs))
	for _, ref := range refs {
		namespace, name, found := strings.Cut(ref, "/")
		if !found {
			namespace, name = defaultNamespace, ref
		}
		keys = append(keys, kube.PodKey{Namespace: namespace, Name: name})
	}
	return keys
}

// startHTTPServer serves the status API and metrics in the background.
func startHTTPServer(cfg *app.Config, logger *slog.Logger, coordinator *session.Coordinator) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Logging(logger), middleware.Recovery(logger))

	handler.NewHealthHandler(cfg.App.Component).SetupRoutes(router)
	handler.NewStatusHandler(coordinator).SetupRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("status API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status API failed", "error", err)
		}
	}()

	return srv
}
