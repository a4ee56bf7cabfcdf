// Package amm implements the AMM venue adapter on top of an EVM RPC:
// QuoterV2 single-hop quotes, network-fee estimation and router swaps.
package amm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/rates"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
)

const quoterV2ABI = `[
  {"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactOutputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactOutputSingle","outputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const routerABI = `[
  {"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct ISwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],"name":"exactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"},
  {"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint256","name":"amountInMaximum","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct ISwapRouter.ExactOutputSingleParams","name":"params","type":"tuple"}],"name":"exactOutputSingle","outputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

const (
	receiptPollInterval = 2 * time.Second
	receiptPollBudget   = 3 * time.Minute
)

type Adapter struct {
	cfg   *config.VenueCfg
	log   *zap.Logger
	ec    *ethclient.Client
	rates rates.Service

	qabi abi.ABI
	rabi abi.ABI

	quoter common.Address
	router common.Address
	base   common.Address
	quote  common.Address

	pk     *ecdsa.PrivateKey
	sender common.Address

	events chan venue.OrderEvent
}

// NewAdapter dials the RPC and prepares the ABIs. The wallet key is only
// required for trading; quoting works without it.
func NewAdapter(cfg *config.VenueCfg, rs rates.Service, log *zap.Logger) (*Adapter, error) {
	ec, err := ethclient.Dial(cfg.RPCHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	qabi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter v2 abi: %w", err)
	}
	rabi, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	quoter := common.HexToAddress(cfg.QuoterV2)
	if quoter == (common.Address{}) {
		return nil, fmt.Errorf("venue %s: quoter_v2 address is not configured", cfg.Name)
	}

	a := &Adapter{
		cfg:    cfg,
		log:    log,
		ec:     ec,
		rates:  rs,
		qabi:   qabi,
		rabi:   rabi,
		quoter: quoter,
		router: common.HexToAddress(cfg.Router),
		base:   common.HexToAddress(cfg.BaseToken),
		quote:  common.HexToAddress(cfg.QuoteToken),
		events: make(chan venue.OrderEvent, 64),
	}
	if cfg.WalletPK != "" {
		pk, err := crypto.HexToECDSA(cfg.WalletPK)
		if err != nil {
			return nil, fmt.Errorf("bad private key: %w", err)
		}
		a.pk = pk
		a.sender = crypto.PubkeyToAddress(pk.PublicKey)
	}
	return a, nil
}

func (a *Adapter) Name() string { return a.cfg.Name }

// Fees returns the gas-based cost model for this venue, converting through
// the given rate service.
func (a *Adapter) Fees(rs rates.Service) venue.FeeModel {
	return venue.GasFee{Source: a, Rates: rs}
}

// QuotePrice derives a per-unit execution price from a QuoterV2 simulation
// of the whole order amount, so pool depth is already priced in.
func (a *Adapter) QuotePrice(ctx context.Context, _ string, side types.Side, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero amount", types.ErrQuoteUnavailable)
	}
	baseWei := toWei(amount, a.cfg.BaseDecimals)

	var (
		input []byte
		err   error
	)
	if side == types.SideSell {
		// base -> quote, exact input
		input, err = a.qabi.Pack("quoteExactInputSingle", struct {
			TokenIn           common.Address
			TokenOut          common.Address
			AmountIn          *big.Int
			Fee               *big.Int
			SqrtPriceLimitX96 *big.Int
		}{a.base, a.quote, baseWei, big.NewInt(int64(a.cfg.FeeTier)), big.NewInt(0)})
	} else {
		// quote -> base, exact output
		input, err = a.qabi.Pack("quoteExactOutputSingle", struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Amount            *big.Int
			Fee               *big.Int
			SqrtPriceLimitX96 *big.Int
		}{a.quote, a.base, baseWei, big.NewInt(int64(a.cfg.FeeTier)), big.NewInt(0)})
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack quote: %w", err)
	}

	res, err := a.ec.CallContract(ctx, ethereum.CallMsg{To: &a.quoter, Data: input}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: quoter call: %v", types.ErrQuoteUnavailable, err)
	}
	method := "quoteExactInputSingle"
	if side == types.SideBuy {
		method = "quoteExactOutputSingle"
	}
	outs, err := a.qabi.Methods[method].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: decode quote: %v", types.ErrQuoteUnavailable, err)
	}
	quoteWei, ok := outs[0].(*big.Int)
	if !ok || quoteWei.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: empty quote", types.ErrQuoteUnavailable)
	}

	quoteAmount := fromWei(quoteWei, a.cfg.QuoteDecimals)
	return quoteAmount.Div(amount), nil
}

// NetworkFee estimates the cost of one swap at the current gas price,
// denominated in the chain's gas asset.
func (a *Adapter) NetworkFee(ctx context.Context) (decimal.Decimal, string, error) {
	gp, err := a.ec.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("suggest gas price: %w", err)
	}
	gasWei := new(big.Int).Mul(gp, new(big.Int).SetUint64(a.cfg.GasLimitSwap))
	return fromWei(gasWei, 18), a.cfg.GasAsset, nil
}

// SubmitOrder sends the swap transaction and reports the outcome through
// Events once the receipt lands. The tx hash doubles as the order ID.
func (a *Adapter) SubmitOrder(ctx context.Context, _ string, side types.Side, amount, refPrice decimal.Decimal) (string, error) {
	if a.pk == nil {
		return "", fmt.Errorf("%w: venue %s has no wallet configured", types.ErrOrderSubmission, a.cfg.Name)
	}
	if a.router == (common.Address{}) {
		return "", fmt.Errorf("%w: venue %s has no router configured", types.ErrOrderSubmission, a.cfg.Name)
	}

	slip := decimal.NewFromFloat(a.cfg.MaxSlippage)
	deadline := big.NewInt(time.Now().Add(2 * time.Minute).Unix())
	baseWei := toWei(amount, a.cfg.BaseDecimals)

	var (
		input []byte
		err   error
	)
	if side == types.SideSell {
		minOut := toWei(refPrice.Mul(amount).Mul(decimal.NewFromInt(1).Sub(slip)), a.cfg.QuoteDecimals)
		input, err = a.rabi.Pack("exactInputSingle", struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Fee               *big.Int
			Recipient         common.Address
			Deadline          *big.Int
			AmountIn          *big.Int
			AmountOutMinimum  *big.Int
			SqrtPriceLimitX96 *big.Int
		}{a.base, a.quote, big.NewInt(int64(a.cfg.FeeTier)), a.sender, deadline, baseWei, minOut, big.NewInt(0)})
	} else {
		maxIn := toWei(refPrice.Mul(amount).Mul(decimal.NewFromInt(1).Add(slip)), a.cfg.QuoteDecimals)
		input, err = a.rabi.Pack("exactOutputSingle", struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Fee               *big.Int
			Recipient         common.Address
			Deadline          *big.Int
			AmountOut         *big.Int
			AmountInMaximum   *big.Int
			SqrtPriceLimitX96 *big.Int
		}{a.quote, a.base, big.NewInt(int64(a.cfg.FeeTier)), a.sender, deadline, baseWei, maxIn, big.NewInt(0)})
	}
	if err != nil {
		return "", fmt.Errorf("%w: pack swap: %v", types.ErrOrderSubmission, err)
	}

	signedTx, err := a.signTx(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrOrderSubmission, err)
	}
	if err := a.ec.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: send transaction: %v", types.ErrOrderSubmission, err)
	}

	hash := signedTx.Hash().Hex()
	go a.watchReceipt(signedTx.Hash(), side, amount, refPrice)
	return hash, nil
}

func (a *Adapter) Events() <-chan venue.OrderEvent { return a.events }

// watchReceipt polls for the swap receipt and emits the order event. A
// reverted or expired transaction counts as a failed order.
func (a *Adapter) watchReceipt(hash common.Hash, side types.Side, amount, refPrice decimal.Decimal) {
	ctx, cancel := context.WithTimeout(context.Background(), receiptPollBudget)
	defer cancel()

	t := time.NewTicker(receiptPollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Warn("swap receipt timed out", zap.String("tx", hash.Hex()))
			a.push(venue.OrderEvent{Venue: a.cfg.Name, OrderID: hash.Hex(), Failed: true})
			return
		case <-t.C:
			rcpt, err := a.ec.TransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			if rcpt.Status != 1 {
				a.log.Warn("swap reverted", zap.String("tx", hash.Hex()))
				a.push(venue.OrderEvent{Venue: a.cfg.Name, OrderID: hash.Hex(), Failed: true})
				return
			}

			gasWei := new(big.Int).Mul(rcpt.EffectiveGasPrice, new(big.Int).SetUint64(rcpt.GasUsed))
			feeQuote := a.gasFeeInQuote(ctx, fromWei(gasWei, 18))

			a.push(venue.OrderEvent{
				Venue:   a.cfg.Name,
				OrderID: hash.Hex(),
				Snapshot: &types.OrderSnapshot{
					ExecutedAmount: amount,
					AveragePrice:   refPrice,
					CumFeeQuote:    feeQuote,
					Filled:         true,
					Ts:             time.Now(),
				},
			})
			return
		}
	}
}

// gasFeeInQuote converts the paid gas into quote-asset terms. With no rate
// available it falls back to zero and the PnL comes out optimistic.
func (a *Adapter) gasFeeInQuote(ctx context.Context, gasAmount decimal.Decimal) decimal.Decimal {
	rate, err := a.rates.ConversionRate(ctx, a.cfg.GasAsset, a.cfg.QuoteAsset)
	if err != nil {
		a.log.Warn("gas fee left out of PnL, no conversion rate",
			zap.String("gas_asset", a.cfg.GasAsset), zap.Error(err))
		return decimal.Zero
	}
	return gasAmount.Mul(rate)
}

func (a *Adapter) signTx(ctx context.Context, input []byte) (*ethtypes.Transaction, error) {
	chainID, err := a.ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := a.ec.PendingNonceAt(ctx, a.sender)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasTipCap, err := a.ec.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	header, err := a.ec.HeaderByNumber(ctx, nil)
	if err != nil || header.BaseFee == nil {
		return nil, fmt.Errorf("get header/base fee: %w", err)
	}
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), gasTipCap)

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       a.cfg.GasLimitSwap,
		To:        &a.router,
		Value:     big.NewInt(0),
		Data:      input,
	})
	return ethtypes.SignTx(tx, ethtypes.NewLondonSigner(chainID), a.pk)
}

func (a *Adapter) push(ev venue.OrderEvent) {
	select {
	case a.events <- ev:
	default:
	}
}

func toWei(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

func fromWei(wei *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Shift(-int32(decimals))
}
