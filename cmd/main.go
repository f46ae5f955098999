package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	dbm "github.com/tendermint/tm-db"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/cis2/cis2test"
	"github.com/josidbobo/IDConcordiumDEX/internal/config"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency"
	"github.com/josidbobo/IDConcordiumDEX/internal/currency/tbtest"
	"github.com/josidbobo/IDConcordiumDEX/internal/exchange"
	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	ledgerRepository "github.com/josidbobo/IDConcordiumDEX/internal/repository/ledger"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	userRepository "github.com/josidbobo/IDConcordiumDEX/internal/repository/user"
	"github.com/josidbobo/IDConcordiumDEX/internal/router"
	"github.com/josidbobo/IDConcordiumDEX/internal/router/middleware"
	"github.com/josidbobo/IDConcordiumDEX/internal/usecase/user"
	"github.com/josidbobo/IDConcordiumDEX/internal/websocket"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"

	_ "github.com/lib/pq"
)

// The deployed instance lists u8 token ids with u64 amounts.
type (
	tokenID = model.TokenIDU8
	amount  = uint64
)

const metricsNamespace = "market"

// app is everything one market instance runs on.
type app struct {
	exchange *exchange.Exchange[tokenID, amount]
	journal  settlement.Journal
	currency *currency.Ledger
	users    userRepository.UserRepository
	hub      *websocket.Hub
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, conf *config.Config, logger log.Logger, metrics *exchange.Metrics) (*app, error) {
	a := &app{hub: websocket.NewHub(logger)}
	self := model.ContractOf(conf.Instance())

	var (
		state     host.Beginner[listing.Txn[tokenID, amount]]
		tbClient  currency.Client
		directory currency.Directory
		invoker   cis2.Invoker
		sandbox   *cis2test.Ledger
	)

	if conf.StoreBackend == config.StoreMemory {
		logger.Info("running on in-memory backends")
		state = listing.NewMemoryStore[tokenID, amount]()
		tbClient = tbtest.NewClient()
		directory = currency.NewMemoryDirectory()
		a.journal = settlement.NewMemoryJournal()
		a.users = userRepository.NewMemoryRepository()
		if conf.GatewayURL == "" {
			sandbox = cis2test.NewLedger(self)
			invoker = sandbox
		}
	} else {
		db, err := sqlx.Connect("postgres", conf.DSN())
		if err != nil {
			return nil, fmt.Errorf("error connecting postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		client, err := tb.NewClient(tbTypes.ToUint128(conf.TBClusterID), conf.TBReplicas())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("tigerbeetle client init: %w", err)
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		tbClient = client

		directory = currency.NewPostgresDirectory(db, ledgerRepository.NewLedgerRepository())
		a.journal = settlement.NewPostgresJournal(db)
		a.users = userRepository.NewUserRepository(db)

		switch conf.StoreBackend {
		case config.StorePostgres:
			state = listing.NewPostgresStore[tokenID, amount](db)
		case config.StoreKV:
			kv, err := dbm.NewDB("listings", dbm.BackendType(conf.KVBackend), filepath.Clean(conf.KVDir))
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("open kv store: %w", err)
			}
			a.closers = append(a.closers, kv.Close)
			state = listing.NewKVStore[tokenID, amount](kv, 0)
		}
	}
	if invoker == nil {
		if conf.GatewayURL == "" {
			a.Close()
			return nil, errors.New("cis2 gateway url is required")
		}
		invoker = cis2.NewHTTPInvoker(conf.GatewayURL, self, &http.Client{Timeout: 10 * time.Second})
	}

	a.currency = currency.NewLedger(currency.LedgerOpts{
		Client:    tbClient,
		Directory: directory,
		Logger:    logger,
	})
	if err := a.currency.OpenTreasury(ctx); err != nil {
		a.Close()
		return nil, err
	}
	for _, addr := range []model.Address{self, model.AccountOf(conf.Owner())} {
		if err := a.currency.Open(ctx, addr); err != nil {
			a.Close()
			return nil, err
		}
	}

	rt := host.NewRuntime(host.RuntimeOpts[listing.Txn[tokenID, amount]]{
		Self:     conf.Instance(),
		Owner:    conf.Owner(),
		State:    state,
		Currency: a.currency,
		Logger:   logger,
	})
	a.exchange = exchange.New(exchange.Opts[tokenID, amount]{
		Runtime: rt,
		Ledger:  cis2.NewClient[tokenID, amount](invoker, logger),
		Journal: a.journal,
		Events:  a.hub,
		Metrics: metrics,
		Logger:  logger,
	})
	if sandbox != nil {
		sandbox.OnReceive(func(ctx context.Context, ledger, to model.ContractAddress, entrypoint string, param []byte) error {
			return a.exchange.OnReceivingCIS2(ctx, model.ContractOf(ledger), param)
		})
	}
	return a, nil
}

func (a *app) worker(conf *config.Config, logger log.Logger) *settlement.Worker {
	return settlement.NewWorker(settlement.WorkerOpts{
		Journal:        a.journal,
		Settler:        a.exchange,
		Interval:       conf.SettleInterval,
		BatchSize:      conf.SettleBatch,
		ReserveTimeout: conf.ReserveTimeout,
		Logger:         logger,
	})
}

func loadConfig(cmd *cobra.Command) (*config.Config, log.Logger, error) {
	conf, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return conf, logger, nil
}

func serve(cmd *cobra.Command, args []string) error {
	rootCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if conf.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	a, err := newApp(rootCtx, conf, logger, exchange.PrometheusMetrics(metricsNamespace))
	if err != nil {
		return err
	}
	defer a.Close()

	go a.hub.Run(rootCtx)
	go func() {
		if err := a.worker(conf, logger).Run(rootCtx); err != nil {
			logger.Error("settlement worker stopped", "err", err)
		}
	}()

	serveMux := http.NewServeMux()
	router.BindRouter(router.BindRouterOpts[tokenID, amount]{
		ServerRouter: serveMux,
		Market:       a.exchange,
		TokenMaker:   middleware.NewJWTMaker(conf.JWTSecret),
		UserUseCase: user.NewUserUseCase(user.UserUseCaseOpts{
			UserRepo: a.users,
			Currency: a.currency,
			Logger:   logger,
		}),
		Hub:    http.HandlerFunc(a.hub.ServeWS),
		Logger: logger,
	})
	logger.Info("finished binding router")

	server := http.Server{
		Addr:    conf.ListenAddr,
		Handler: router.Cors(serveMux),
	}
	servers := []*http.Server{&server}
	if conf.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: conf.MetricsAddr, Handler: metricsMux})
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("listen error", "addr", srv.Addr, "err", err)
				stop()
			}
		}()
	}

	<-rootCtx.Done()
	logger.Info("shutdown signal received")

	// Give in-flight requests up to 10s to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed; forcing close", "addr", srv.Addr, "err", err)
			_ = srv.Close()
		}
	}

	logger.Info("server stopped")
	return nil
}

func settleOnce(cmd *cobra.Command, args []string) error {
	conf, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), conf, logger, exchange.NopMetrics())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.worker(conf, logger).RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "settled %d intents, %d failed, %d released\n", report.Settled, report.Failed, report.Released)
	if report.Failed > 0 {
		return fmt.Errorf("%d payouts still escrowed", report.Failed)
	}
	return nil
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "market",
		Short:         "CIS-2 token listings marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, event feed and settlement worker",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   "settle",
			Short: "Retry the payouts of escrowed settlement intents once",
			Args:  cobra.NoArgs,
			RunE:  settleOnce,
		},
	)
	return root
}

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
