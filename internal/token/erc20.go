package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20ABI содержит подмножество EIP-20, нужное продаже.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf",
	 "outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
	 "name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ErrForeignSender возвращается при попытке перевести токены не с адреса подписанта.
var ErrForeignSender = errors.New("transfer sender is not the signer")

// Backend описывает часть JSON-RPC клиента, нужную ERC20Ledger. Её реализует *ethclient.Client.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ERC20Ledger работает с развёрнутым ERC-20 контрактом. Переводы подписываются ключом
// продажи, поэтому отправителем может быть только адрес этого ключа.
type ERC20Ledger struct {
	backend      Backend
	contract     common.Address
	abi          abi.ABI
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	timeout      time.Duration
	pollInterval time.Duration
}

// DialERC20 подключается к узлу по rpcURL и создаёт реестр для контракта tokenAddr.
func DialERC20(rpcURL string, tokenAddr common.Address, hexKey string, chainID *big.Int) (*ERC20Ledger, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial token rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return NewERC20Ledger(client, tokenAddr, key, chainID)
}

// NewERC20Ledger создаёт реестр поверх произвольного Backend.
func NewERC20Ledger(b Backend, tokenAddr common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*ERC20Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20Ledger{
		backend:      b,
		contract:     tokenAddr,
		abi:          parsed,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		timeout:      2 * time.Minute,
		pollInterval: 2 * time.Second,
	}, nil
}

// Address возвращает адрес подписанта, то есть счёт продажи в контракте.
func (l *ERC20Ledger) Address() common.Address {
	return l.from
}

// BalanceOf читает balanceOf(addr) на последнем блоке.
func (l *ERC20Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	data, err := l.abi.Pack("balanceOf", addr)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := l.backend.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	values, err := l.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", values[0])
	}
	return balance, nil
}

// Transfer отправляет transfer(to, amount) и ждёт успешной квитанции.
func (l *ERC20Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if from != l.from {
		return fmt.Errorf("transfer from %s: %w", from.Hex(), ErrForeignSender)
	}
	if to == (common.Address{}) || amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer: %w", ErrInvalidTransfer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	data, err := l.abi.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}

	tx, err := l.buildTx(ctx, data)
	if err != nil {
		return err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}
	if err := l.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send transfer: %w", err)
	}
	return l.waitMined(ctx, signed.Hash())
}

func (l *ERC20Ledger) buildTx(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := l.backend.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	tip, err := l.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := l.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := l.backend.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &l.contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &l.contract,
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

func (l *ERC20Ledger) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transfer %s reverted", hash.Hex())
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
