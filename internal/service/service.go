// Package service реализует бизнес-логику сервиса краудсейла: сериализует операции над продажей,
// ведёт журнал команд и восстанавливает состояние из него при запуске.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/model"
	"github.com/mmeshcher/crowdsale-system/internal/repository"
	"github.com/mmeshcher/crowdsale-system/internal/token"
)

// ErrJournalUnavailable возвращается, если запись в журнал не удалась.
// После такой ошибки сервис отклоняет изменения до перезапуска.
var ErrJournalUnavailable = errors.New("journal unavailable")

// Repository описывает контракт журнала, используемый сервисом.
type Repository interface {
	Close() error
	AppendCommand(ctx context.Context, cmd model.Command, events []model.Event) (int64, error)
	LoadCommands(ctx context.Context) ([]model.Command, error)
	GetPurchases(ctx context.Context, addr common.Address) ([]model.Purchase, error)
}

// SaleFactory строит новую продажу над реестром токена.
type SaleFactory func(ledger crowdsale.TokenLedger) (*crowdsale.Sale, error)

// Service владеет продажей и выполняет операции над ней по одной.
type Service struct {
	mu       sync.Mutex
	sale     *crowdsale.Sale
	ledger   crowdsale.TokenLedger
	external bool
	repo     Repository
	clock    func() time.Time
	logger   *zap.Logger
	failed   error
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithExternalLedger указывает, что реестр внешний: при восстановлении из журнала
// переводы в нём не повторяются.
func WithExternalLedger() Option {
	return func(s *Service) { s.external = true }
}

// NewService создаёт сервис и восстанавливает продажу из журнала repo.
func NewService(ctx context.Context, repo Repository, build SaleFactory, ledger crowdsale.TokenLedger, logger *zap.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		ledger: ledger,
		repo:   repo,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.restore(ctx, build); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) restore(ctx context.Context, build SaleFactory) error {
	replayLedger := s.ledger
	if s.external {
		replayLedger = token.ReplayLedger{}
	}

	sale, err := build(replayLedger)
	if err != nil {
		return fmt.Errorf("build sale: %w", err)
	}

	cmds, err := s.repo.LoadCommands(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	s.sale = sale
	for _, cmd := range cmds {
		if _, err := s.apply(cmd, replayLedger); err != nil {
			return fmt.Errorf("%w: replay command %d (%s): %v", repository.ErrJournalCorrupt, cmd.Seq, cmd.Op, err)
		}
		sale.Drain()
	}
	sale.UseLedger(s.ledger)

	s.logger.Info("sale restored from journal", zap.Int("commands", len(cmds)))
	return nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// execute применяет команду к продаже и записывает её в журнал вместе с событиями.
// Отклонённые команды в журнал не попадают.
func (s *Service) execute(ctx context.Context, op string, caller common.Address, args commandArgs) (*big.Int, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return nil, ErrJournalUnavailable
	}

	cmd := model.Command{Op: op, Caller: caller, Args: raw, At: s.clock()}
	res, err := s.apply(cmd, s.ledger)
	events := s.sale.Drain()
	if err != nil {
		var partial *crowdsale.PartialReleaseError
		if !errors.As(err, &partial) {
			return nil, err
		}
		// Выполненные переводы необратимы: в журнал попадает выплата только им.
		s.logger.Error("token release interrupted by ledger failure",
			zap.Int("paid", len(partial.Paid)), zap.String("moved", partial.Moved.String()), zap.Error(partial.Err))
		cmd.Args, _ = json.Marshal(commandArgs{Addresses: hexList(partial.Paid)})
		if jerr := s.journal(ctx, cmd, events); jerr != nil {
			return nil, jerr
		}
		return nil, err
	}

	if err := s.journal(ctx, cmd, events); err != nil {
		return nil, err
	}

	s.logger.Debug("command executed", zap.String("op", op), zap.String("caller", caller.Hex()), zap.Int("events", len(events)))
	return res, nil
}

// journal записывает применённую команду. При отказе сервис перестаёт принимать изменения.
func (s *Service) journal(ctx context.Context, cmd model.Command, events []model.Event) error {
	for i := range events {
		events[i].At = cmd.At
	}
	if _, err := s.repo.AppendCommand(context.WithoutCancel(ctx), cmd, events); err != nil {
		s.failed = err
		s.logger.Error("journal append failed, mutations are disabled until restart",
			zap.String("op", cmd.Op), zap.String("caller", cmd.Caller.Hex()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrJournalUnavailable, err)
	}
	return nil
}

// Status возвращает снимок состояния продажи.
func (s *Service) Status(_ context.Context) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sale.Status(s.clock())
}

// IsWhitelisted сообщает, состоит ли адрес в белом списке.
func (s *Service) IsWhitelisted(_ context.Context, addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sale.IsWhitelisted(addr)
}

// ContributionOf возвращает взнос адреса и невыплаченные токены.
func (s *Service) ContributionOf(_ context.Context, addr common.Address) model.Contribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sale.ContributionOf(addr)
}

// GetPurchases возвращает историю покупок адреса.
func (s *Service) GetPurchases(ctx context.Context, addr common.Address) ([]model.Purchase, error) {
	return s.repo.GetPurchases(ctx, addr)
}

// Contribute принимает взнос от purchaser в его пользу.
func (s *Service) Contribute(ctx context.Context, purchaser common.Address, wei *big.Int) error {
	_, err := s.execute(ctx, opContribute, purchaser, commandArgs{Amount: wei.String()})
	return err
}

// BuyTokens принимает взнос от purchaser в пользу beneficiary.
func (s *Service) BuyTokens(ctx context.Context, purchaser, beneficiary common.Address, wei *big.Int) error {
	_, err := s.execute(ctx, opBuyTokens, purchaser, commandArgs{Address: beneficiary.Hex(), Amount: wei.String()})
	return err
}

// ClaimRefund возвращает вкладчику его сумму из хранилища.
func (s *Service) ClaimRefund(ctx context.Context, investor common.Address) (*big.Int, error) {
	return s.execute(ctx, opClaimRefund, investor, commandArgs{})
}

// AddToWhitelist добавляет адреса в белый список.
func (s *Service) AddToWhitelist(ctx context.Context, caller common.Address, addrs []common.Address) error {
	_, err := s.execute(ctx, opAddToWhitelist, caller, commandArgs{Addresses: hexList(addrs)})
	return err
}

// RemoveFromWhitelist исключает адрес из белого списка.
func (s *Service) RemoveFromWhitelist(ctx context.Context, caller, addr common.Address) error {
	_, err := s.execute(ctx, opRemoveFromWhitelist, caller, commandArgs{Address: addr.Hex()})
	return err
}

// StartCrowdsale включает приём взносов.
func (s *Service) StartCrowdsale(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opStartCrowdsale, caller, commandArgs{})
	return err
}

// StopCrowdsale приостанавливает приём взносов.
func (s *Service) StopCrowdsale(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opStopCrowdsale, caller, commandArgs{})
	return err
}

// ChangePrivateContribution задаёт сумму частных взносов.
func (s *Service) ChangePrivateContribution(ctx context.Context, caller common.Address, amount *big.Int) error {
	_, err := s.execute(ctx, opChangePrivateContribution, caller, commandArgs{Amount: amount.String()})
	return err
}

// EnableTokenRelease разрешает выплату токенов.
func (s *Service) EnableTokenRelease(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opEnableTokenRelease, caller, commandArgs{})
	return err
}

// DisableTokenRelease запрещает выплату токенов.
func (s *Service) DisableTokenRelease(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opDisableTokenRelease, caller, commandArgs{})
	return err
}

// ReleaseTokens выплачивает токены адресам списка и возвращает выплаченную сумму.
func (s *Service) ReleaseTokens(ctx context.Context, caller common.Address, addrs []common.Address) (*big.Int, error) {
	return s.execute(ctx, opReleaseTokens, caller, commandArgs{Addresses: hexList(addrs)})
}

// CloseSale возвращает владельцу остаток токенов продажи.
func (s *Service) CloseSale(ctx context.Context, caller common.Address) (*big.Int, error) {
	return s.execute(ctx, opClose, caller, commandArgs{})
}

// Finalize завершает продажу.
func (s *Service) Finalize(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opFinalize, caller, commandArgs{})
	return err
}

// TransferOwnership передаёт права владельца.
func (s *Service) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	_, err := s.execute(ctx, opTransferOwnership, caller, commandArgs{Address: newOwner.Hex()})
	return err
}

// EnableSettlement закрывает хранилище и пересылает средства на кошелёк.
func (s *Service) EnableSettlement(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opEnableSettlement, caller, commandArgs{})
	return err
}

// EnableRefunds переводит хранилище в режим возврата.
func (s *Service) EnableRefunds(ctx context.Context, caller common.Address) error {
	_, err := s.execute(ctx, opEnableRefunds, caller, commandArgs{})
	return err
}

// FundInventory переводит токены вызывающего на счёт продажи.
func (s *Service) FundInventory(ctx context.Context, caller common.Address, amount *big.Int) error {
	_, err := s.execute(ctx, opFundInventory, caller, commandArgs{Amount: amount.String()})
	return err
}

func hexList(addrs []common.Address) []string {
	res := make([]string, len(addrs))
	for i, a := range addrs {
		res[i] = a.Hex()
	}
	return res
}
