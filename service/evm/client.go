package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// Transactions are treated as final after this many confirmations.
	requiredConfirmations = 2

	receiptPollInterval = 2 * time.Second
)

// ContractAddresses are the deployed protocol contracts for one network.
type ContractAddresses struct {
	FeeProxy         common.Address
	BatchProxy       common.Address
	Escrow           common.Address
	ForwarderFactory common.Address
}

// ClientConfig configures the on-chain transaction client.
type ClientConfig struct {
	RPCURL        string
	PrivateKeyHex string
	Contracts     ContractAddresses
}

// Client implements TxClient against a JSON-RPC node with a single
// keyed signer.
type Client struct {
	eth       *ethclient.Client
	chainID   *big.Int
	opts      *bind.TransactOpts
	from      common.Address
	contracts ContractAddresses
	logger    *slog.Logger

	erc20Parsed   abi.ABI
	feeProxy      *bind.BoundContract
	batchProxy    *bind.BoundContract
	escrow        *bind.BoundContract
	factory       *bind.BoundContract
	factoryParsed abi.ABI
}

// NewClient dials the node and prepares bound contracts and the keyed
// transactor.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}

	erc20Parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	feeParsed, err := abi.JSON(strings.NewReader(feeProxyABI))
	if err != nil {
		return nil, fmt.Errorf("parse fee proxy abi: %w", err)
	}
	batchParsed, err := abi.JSON(strings.NewReader(batchProxyABI))
	if err != nil {
		return nil, fmt.Errorf("parse batch proxy abi: %w", err)
	}
	escrowParsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	factoryParsed, err := abi.JSON(strings.NewReader(forwarderFactoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse forwarder factory abi: %w", err)
	}

	return &Client{
		eth:           eth,
		chainID:       chainID,
		opts:          opts,
		from:          crypto.PubkeyToAddress(pk.PublicKey),
		contracts:     cfg.Contracts,
		logger:        logger,
		erc20Parsed:   erc20Parsed,
		feeProxy:      bind.NewBoundContract(cfg.Contracts.FeeProxy, feeParsed, eth, eth, eth),
		batchProxy:    bind.NewBoundContract(cfg.Contracts.BatchProxy, batchParsed, eth, eth, eth),
		escrow:        bind.NewBoundContract(cfg.Contracts.Escrow, escrowParsed, eth, eth, eth),
		factory:       bind.NewBoundContract(cfg.Contracts.ForwarderFactory, factoryParsed, eth, eth, eth),
		factoryParsed: factoryParsed,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *Client) Address() common.Address         { return c.from }
func (c *Client) FeeProxyAddress() common.Address { return c.contracts.FeeProxy }
func (c *Client) BatchProxyAddress() common.Address {
	return c.contracts.BatchProxy
}
func (c *Client) EscrowAddress() common.Address { return c.contracts.Escrow }

func (c *Client) token(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, c.erc20Parsed, c.eth, c.eth, c.eth)
}

func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out []any
	err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out []any
	err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance %s: %w", token.Hex(), err)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.token(token).Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("approve tx: %w", err)
	}
	c.logger.Debug("approval submitted", "token", token.Hex(), "spender", spender.Hex(), "tx", tx.Hash().Hex())
	return c.waitMined(ctx, tx)
}

func (c *Client) PayRequest(ctx context.Context, p PayParams) (*Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.feeProxy.Transact(opts, "transferFromWithReferenceAndFee",
		p.TokenAddress, p.To, p.Amount, p.PaymentReference, p.FeeAmount, p.FeeAddress)
	if err != nil {
		return nil, fmt.Errorf("pay request tx: %w", err)
	}
	c.logger.Debug("payment submitted", "to", p.To.Hex(), "tx", tx.Hash().Hex())
	return c.waitMined(ctx, tx)
}

func (c *Client) PayBatch(ctx context.Context, token common.Address, lines []BatchLine, feeAddress common.Address) (*Receipt, error) {
	recipients := make([]common.Address, len(lines))
	amounts := make([]*big.Int, len(lines))
	refs := make([][]byte, len(lines))
	fees := make([]*big.Int, len(lines))
	for i, l := range lines {
		recipients[i] = l.To
		amounts[i] = l.Amount
		refs[i] = l.PaymentReference
		fees[i] = l.FeeAmount
	}

	opts := c.txOpts(ctx)
	tx, err := c.batchProxy.Transact(opts, "batchERC20PaymentsWithReference",
		token, recipients, amounts, refs, fees, feeAddress)
	if err != nil {
		return nil, fmt.Errorf("batch payment tx: %w", err)
	}
	c.logger.Debug("batch payment submitted", "recipients", len(lines), "tx", tx.Hash().Hex())
	return c.waitMined(ctx, tx)
}

func (c *Client) PayEscrow(ctx context.Context, p PayParams) (*Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.escrow.Transact(opts, "payEscrow",
		p.TokenAddress, p.To, p.Amount, p.PaymentReference, p.FeeAmount, p.FeeAddress)
	if err != nil {
		return nil, fmt.Errorf("pay escrow tx: %w", err)
	}
	return c.waitMined(ctx, tx)
}

func (c *Client) PayRequestFromEscrow(ctx context.Context, ref []byte) (*Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.escrow.Transact(opts, "payRequestFromEscrow", ref)
	if err != nil {
		return nil, fmt.Errorf("release escrow tx: %w", err)
	}
	return c.waitMined(ctx, tx)
}

func (c *Client) FreezeRequest(ctx context.Context, ref []byte) (*Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.escrow.Transact(opts, "freezeRequest", ref)
	if err != nil {
		return nil, fmt.Errorf("freeze request tx: %w", err)
	}
	return c.waitMined(ctx, tx)
}

func (c *Client) InitiateEmergencyClaim(ctx context.Context, ref []byte) (*Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.escrow.Transact(opts, "initiateEmergencyClaim", ref)
	if err != nil {
		return nil, fmt.Errorf("emergency claim tx: %w", err)
	}
	return c.waitMined(ctx, tx)
}

func (c *Client) DeployForwarder(ctx context.Context, payee, token common.Address, ref []byte) (common.Address, *Receipt, error) {
	opts := c.txOpts(ctx)
	tx, err := c.factory.Transact(opts, "createERC20SingleRequestProxy", payee, token, ref)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy forwarder tx: %w", err)
	}

	receipt, raw, err := c.waitMinedRaw(ctx, tx)
	if err != nil {
		return common.Address{}, nil, err
	}

	addr, err := c.forwarderAddressFromLogs(raw.Logs)
	if err != nil {
		return common.Address{}, nil, err
	}
	c.logger.Debug("forwarder deployed", "address", addr.Hex(), "tx", tx.Hash().Hex())
	return addr, receipt, nil
}

func (c *Client) forwarderAddressFromLogs(logs []*types.Log) (common.Address, error) {
	event := c.factoryParsed.Events["ERC20SingleRequestProxyCreated"]
	for _, lg := range logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		var out struct {
			ProxyAddress common.Address
		}
		if err := c.factoryParsed.UnpackIntoInterface(&out, event.Name, lg.Data); err != nil {
			return common.Address{}, fmt.Errorf("decode forwarder event: %w", err)
		}
		return out.ProxyAddress, nil
	}
	return common.Address{}, fmt.Errorf("forwarder creation event not found in receipt logs")
}

func (c *Client) txOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.opts
	opts.Context = ctx
	return &opts
}

// waitMined blocks until tx is mined with the required number of
// confirmations and returns an error for reverted transactions.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	r, _, err := c.waitMinedRaw(ctx, tx)
	return r, err
}

func (c *Client) waitMinedRaw(ctx context.Context, tx *types.Transaction) (*Receipt, *types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	var raw *types.Receipt
	for raw == nil {
		r, err := c.eth.TransactionReceipt(ctx, tx.Hash())
		if r != nil {
			raw = r
			break
		}
		if err != nil && !strings.Contains(err.Error(), "not found") {
			return nil, nil, fmt.Errorf("fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	if raw.Status != types.ReceiptStatusSuccessful {
		return nil, nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}

	// Wait out the confirmation depth so a shallow reorg cannot undo
	// the payment.
	target := raw.BlockNumber.Uint64() + requiredConfirmations - 1
	for {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch head: %w", err)
		}
		if head >= target {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return &Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: raw.BlockNumber.Uint64(),
		GasUsed:     raw.GasUsed,
	}, raw, nil
}
