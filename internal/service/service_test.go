package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdsale-system/internal/crowdsale"
	"github.com/mmeshcher/crowdsale-system/internal/model"
	"github.com/mmeshcher/crowdsale-system/internal/repository"
	"github.com/mmeshcher/crowdsale-system/internal/token"
)

var (
	owner       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wallet      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	saleAccount = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000e5")

	prefundStart = time.Date(2018, time.July, 8, 12, 0, 0, 0, time.UTC)
	startTime    = prefundStart.Add(14 * 24 * time.Hour)
	endTime      = prefundStart.Add(42 * 24 * time.Hour)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), crowdsale.Ether)
}

func factory(custody model.CustodyMode) SaleFactory {
	return func(ledger crowdsale.TokenLedger) (*crowdsale.Sale, error) {
		return crowdsale.New(crowdsale.Params{
			Owner:        owner,
			Wallet:       wallet,
			Token:        ledger,
			SaleAccount:  saleAccount,
			PrefundStart: prefundStart,
			StartTime:    startTime,
			EndTime:      endTime,
			Rate:         10000,
			FundingGoal:  ether(100),
			Custody:      custody,
		})
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func genesisLedger(t *testing.T) *token.MemoryLedger {
	t.Helper()
	l := token.NewMemoryLedger()
	require.NoError(t, l.Mint(owner, ether(10_000_000)))
	return l
}

func newTestService(t *testing.T, repo Repository, ledger crowdsale.TokenLedger, c *clock, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(c.Now)}, opts...)
	svc, err := NewService(context.Background(), repo, factory(model.CustodyDirect), ledger, zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func openSale(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.AddToWhitelist(ctx, owner, []common.Address{alice, bob}))
	require.NoError(t, svc.StartCrowdsale(ctx, owner))
}

func TestService_ReplayRestoresState(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := &clock{now: prefundStart}

	svc := newTestService(t, repo, genesisLedger(t), c)
	openSale(t, svc)
	require.NoError(t, svc.Contribute(ctx, alice, ether(2)))

	c.now = startTime
	require.NoError(t, svc.BuyTokens(ctx, alice, bob, ether(1)))
	require.NoError(t, svc.FundInventory(ctx, owner, ether(1_000_000)))
	require.NoError(t, svc.EnableTokenRelease(ctx, owner))
	_, err := svc.ReleaseTokens(ctx, owner, []common.Address{alice})
	require.NoError(t, err)

	before := svc.Status(ctx)

	// Новый процесс: свежий реестр с тем же генезисом и тот же журнал.
	ledger := genesisLedger(t)
	restored := newTestService(t, repo, ledger, c)

	assert.Equal(t, before, restored.Status(ctx))
	assert.True(t, restored.IsWhitelisted(ctx, bob))
	assert.Equal(t, "0", restored.ContributionOf(ctx, alice).Tokens.String())
	assert.Equal(t, new(big.Int).Mul(ether(1), big.NewInt(11500)), restored.ContributionOf(ctx, bob).Tokens)

	got, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(ether(2), big.NewInt(12000)), got)

	// Повторная выплата после восстановления ничего не меняет.
	moved, err := restored.ReleaseTokens(ctx, owner, []common.Address{alice})
	require.NoError(t, err)
	assert.Equal(t, "0", moved.String())
}

type countingLedger struct {
	*token.MemoryLedger
	transfers int
}

func (l *countingLedger) Transfer(from, to common.Address, amount *big.Int) error {
	l.transfers++
	return l.MemoryLedger.Transfer(from, to, amount)
}

func TestService_ExternalLedgerIsNotReplayed(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := &clock{now: startTime}

	chain := &countingLedger{MemoryLedger: genesisLedger(t)}
	require.NoError(t, chain.MemoryLedger.Transfer(owner, saleAccount, ether(1_000_000)))

	svc := newTestService(t, repo, chain, c, WithExternalLedger())
	openSale(t, svc)
	require.NoError(t, svc.Contribute(ctx, alice, ether(1)))
	require.NoError(t, svc.EnableTokenRelease(ctx, owner))
	_, err := svc.ReleaseTokens(ctx, owner, []common.Address{alice})
	require.NoError(t, err)
	require.Equal(t, 1, chain.transfers)

	restored := newTestService(t, repo, chain, c, WithExternalLedger())
	assert.Equal(t, 1, chain.transfers, "replay must not touch the external ledger")
	assert.Equal(t, "0", restored.ContributionOf(ctx, alice).Tokens.String())

	// После восстановления используется настоящий реестр.
	require.NoError(t, restored.Contribute(ctx, alice, ether(1)))
	_, err = restored.ReleaseTokens(ctx, owner, []common.Address{alice})
	require.NoError(t, err)
	assert.Equal(t, 2, chain.transfers)
}

// flakyLedger отказывает в переводах на адрес down, пока он задан.
type flakyLedger struct {
	*token.MemoryLedger
	down common.Address
}

func (l *flakyLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if to == l.down {
		return errors.New("rpc timeout")
	}
	return l.MemoryLedger.Transfer(from, to, amount)
}

func TestService_InterruptedReleaseIsJournaledOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := &clock{now: startTime}

	chain := &flakyLedger{MemoryLedger: genesisLedger(t)}
	require.NoError(t, chain.MemoryLedger.Transfer(owner, saleAccount, ether(1_000_000)))

	svc := newTestService(t, repo, chain, c, WithExternalLedger())
	openSale(t, svc)
	require.NoError(t, svc.Contribute(ctx, alice, ether(1)))
	require.NoError(t, svc.Contribute(ctx, bob, ether(1)))
	require.NoError(t, svc.EnableTokenRelease(ctx, owner))

	owed := new(big.Int).Mul(ether(1), big.NewInt(11500))

	chain.down = bob
	_, err := svc.ReleaseTokens(ctx, owner, []common.Address{alice, bob})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJournalUnavailable)

	paid, err := chain.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, owed, paid)
	assert.Equal(t, "0", svc.ContributionOf(ctx, alice).Tokens.String())
	assert.Equal(t, owed, svc.ContributionOf(ctx, bob).Tokens)

	// После перезапуска выплата alice не восстанавливается как долг.
	chain.down = common.Address{}
	restored := newTestService(t, repo, chain, c, WithExternalLedger())
	assert.Equal(t, "0", restored.ContributionOf(ctx, alice).Tokens.String())
	assert.Equal(t, owed, restored.ContributionOf(ctx, bob).Tokens)

	moved, err := restored.ReleaseTokens(ctx, owner, []common.Address{alice, bob})
	require.NoError(t, err)
	assert.Equal(t, owed, moved)

	paid, err = chain.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, owed, paid, "alice is paid exactly once")
	paid, err = chain.BalanceOf(bob)
	require.NoError(t, err)
	assert.Equal(t, owed, paid)
}

func TestService_RejectedCommandsAreNotJournaled(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newTestService(t, repo, genesisLedger(t), &clock{now: startTime})

	err := svc.StartCrowdsale(ctx, alice)
	assert.True(t, crowdsale.IsKind(err, crowdsale.KindAuthorization))

	err = svc.Contribute(ctx, alice, ether(1))
	assert.True(t, crowdsale.IsKind(err, crowdsale.KindState))

	cmds, err := repo.LoadCommands(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestService_EventsAreStampedWithCommandTime(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := &clock{now: startTime.Add(time.Hour)}
	svc := newTestService(t, repo, genesisLedger(t), c)
	openSale(t, svc)

	require.NoError(t, svc.BuyTokens(ctx, alice, bob, ether(1)))

	purchases, err := svc.GetPurchases(ctx, bob)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, alice, purchases[0].Purchaser)
	assert.True(t, purchases[0].At.Equal(c.now))
}

func TestService_FundInventory(t *testing.T) {
	ctx := context.Background()
	ledger := genesisLedger(t)
	svc := newTestService(t, repository.NewMemoryRepository(), ledger, &clock{now: startTime})

	require.NoError(t, svc.FundInventory(ctx, owner, ether(5)))
	got, _ := ledger.BalanceOf(saleAccount)
	assert.Equal(t, ether(5), got)

	err := svc.FundInventory(ctx, alice, ether(5))
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
}

type failingRepo struct {
	*repository.MemoryRepository
	appendErr error
}

func (r *failingRepo) AppendCommand(ctx context.Context, cmd model.Command, events []model.Event) (int64, error) {
	if r.appendErr != nil {
		return 0, r.appendErr
	}
	return r.MemoryRepository.AppendCommand(ctx, cmd, events)
}

func TestService_JournalFailureDisablesMutations(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{MemoryRepository: repository.NewMemoryRepository()}
	svc := newTestService(t, repo, genesisLedger(t), &clock{now: startTime})

	repo.appendErr = errors.New("connection reset by peer")
	err := svc.StartCrowdsale(ctx, owner)
	require.ErrorIs(t, err, ErrJournalUnavailable)

	repo.appendErr = nil
	err = svc.StopCrowdsale(ctx, owner)
	require.ErrorIs(t, err, ErrJournalUnavailable)

	// Чтение продолжает работать.
	assert.Equal(t, owner, svc.Status(ctx).Owner)
}

type corruptRepo struct {
	*repository.MemoryRepository
	cmds []model.Command
}

func (r *corruptRepo) LoadCommands(context.Context) ([]model.Command, error) {
	return r.cmds, nil
}

func TestService_CorruptJournal(t *testing.T) {
	repo := &corruptRepo{
		MemoryRepository: repository.NewMemoryRepository(),
		cmds: []model.Command{
			{Seq: 1, Op: "startCrowdsale", Caller: owner, At: startTime},
			{Seq: 2, Op: "startCrowdsale", Caller: owner, At: startTime},
		},
	}

	_, err := NewService(context.Background(), repo, factory(model.CustodyDirect), genesisLedger(t), zap.NewNop())
	require.ErrorIs(t, err, repository.ErrJournalCorrupt)

	repo.cmds = []model.Command{{Seq: 1, Op: "mint", Caller: owner, At: startTime}}
	_, err = NewService(context.Background(), repo, factory(model.CustodyDirect), genesisLedger(t), zap.NewNop())
	require.ErrorIs(t, err, repository.ErrJournalCorrupt)
}

func TestService_VaultRefundFlow(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := &clock{now: startTime}
	svc, err := NewService(ctx, repo, factory(model.CustodyVault), genesisLedger(t), zap.NewNop(), WithClock(c.Now))
	require.NoError(t, err)
	openSale(t, svc)

	require.NoError(t, svc.Contribute(ctx, alice, ether(3)))
	c.now = endTime.Add(time.Hour)
	require.NoError(t, svc.Finalize(ctx, owner))

	amount, err := svc.ClaimRefund(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, ether(3), amount)

	st := svc.Status(ctx)
	assert.True(t, st.Closed)
	assert.Equal(t, model.VaultRefunding, st.VaultState)
}
