// Package main запускает HTTP-сервер сервиса краудсейла.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/crowdsale-system/internal/config"
	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/handler"
	"github.com/mmeshcher/crowdsale-system/internal/logger"
	"github.com/mmeshcher/crowdsale-system/internal/middleware"
	"github.com/mmeshcher/crowdsale-system/internal/repository"
	"github.com/mmeshcher/crowdsale-system/internal/service"
	"github.com/mmeshcher/crowdsale-system/internal/task"
	"github.com/mmeshcher/crowdsale-system/internal/token"
	"github.com/mmeshcher/crowdsale-system/internal/validation"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	sale, err := config.LoadSale(cfg.SaleConfig)
	if err != nil {
		sugar.Fatalw("sale configuration error", "error", err.Error(), "path", cfg.SaleConfig)
	}

	ledger, opts, err := openLedger(cfg, sale, log)
	if err != nil {
		sugar.Fatalw("token ledger initialization error", "error", err.Error())
	}

	repo, err := openRepository(cfg, log)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.NewService(ctx, repo, sale.NewSale, ledger, log, opts...)
	if err != nil {
		repo.Close()
		sugar.Fatalw("sale restore error", "error", err.Error())
	}
	defer svc.Close()

	watcher, err := task.NewPhaseWatcher(svc, cfg.PhaseWatchInterval, log)
	if err != nil {
		sugar.Fatalw("phase watcher initialization error", "error", err.Error())
	}

	auth := middleware.NewSignatureAuth(cfg.AuthMaxSkew)
	h := handler.NewHandler(svc, log, auth)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Наблюдение за фазой продажи
	g.Go(func() error {
		if err := watcher.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		return watcher.Stop()
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting crowdsale server", "addr", cfg.RunAddress, "mode", sale.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openLedger выбирает реестр токена: ERC-20 контракт при заданном TOKEN_RPC_URL,
// иначе реестр в памяти с начальными балансами из описания продажи.
func openLedger(cfg *config.Config, sale *config.SaleConfig, log *zap.Logger) (crowdsale.TokenLedger, []service.Option, error) {
	if cfg.TokenRPCURL == "" {
		genesis, err := sale.GenesisBalances()
		if err != nil {
			return nil, nil, err
		}
		ledger := token.NewMemoryLedger()
		for addr, amount := range genesis {
			if err := ledger.Mint(addr, amount); err != nil {
				return nil, nil, fmt.Errorf("genesis %s: %w", addr.Hex(), err)
			}
		}
		log.Info("using in-memory token ledger", zap.Int("genesis_accounts", len(genesis)))
		return ledger, nil, nil
	}

	account, err := validation.ParseAddress(sale.SaleAccount)
	if err != nil {
		return nil, nil, fmt.Errorf("sale_account: %w", err)
	}
	tokenAddr, err := validation.ParseAddress(cfg.TokenAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("TOKEN_ADDRESS: %w", err)
	}

	ledger, err := token.DialERC20(cfg.TokenRPCURL, tokenAddr, cfg.TokenSignerKey, big.NewInt(cfg.TokenChainID))
	if err != nil {
		return nil, nil, err
	}
	if ledger.Address() != account {
		return nil, nil, fmt.Errorf("signer %s does not match sale account %s", ledger.Address().Hex(), account.Hex())
	}

	log.Info("using erc20 token ledger",
		zap.String("token", tokenAddr.Hex()),
		zap.String("sale_account", account.Hex()),
		zap.Int64("chain_id", cfg.TokenChainID),
	)
	return ledger, []service.Option{service.WithExternalLedger()}, nil
}

func openRepository(cfg *config.Config, log *zap.Logger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		log.Warn("DATABASE_URI is not set, journal is kept in memory and lost on restart")
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
