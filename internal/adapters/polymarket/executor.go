package polymarket

// executor.go — Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderExecutor using AuthClient for L1/L2 auth. Every order
// is submitted fill-or-kill: the CLOB either crosses the full size at or
// better than the limit price, or kills the order without touching state.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
)

var (
	balanceOfERC20   abi.ABI
	balanceOfERC1155 abi.ABI
)

func init() {
	var err error
	balanceOfERC20, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
	balanceOfERC1155, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf erc1155 abi: " + err.Error())
	}
}

// LiveExecutor implements ports.OrderExecutor against the real CLOB.
type LiveExecutor struct {
	auth     *AuthClient
	rpc      *ethclient.Client
	redeemer ports.PositionRedeemer // nil → settlement is book-kept only
}

// NewLiveExecutor creates a live executor. rpcURL is a Polygon RPC used for
// on-chain balance checks; redeemer may be nil to skip on-chain redemption.
func NewLiveExecutor(auth *AuthClient, rpcURL string, redeemer ports.PositionRedeemer) (*LiveExecutor, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("executor: dial rpc: %w", err)
	}
	return &LiveExecutor{auth: auth, rpc: rpc, redeemer: redeemer}, nil
}

// Balance returns the on-chain USDC.e balance of the wallet.
func (le *LiveExecutor) Balance(ctx context.Context) (float64, error) {
	callData, err := balanceOfERC20.Pack("balanceOf", le.auth.address)
	if err != nil {
		return 0, fmt.Errorf("executor: balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := le.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("executor: balance: rpc call: %w", err)
	}

	vals, err := balanceOfERC20.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("executor: balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}

// BuyFOK submits a fill-or-kill buy of shares at limitPrice.
func (le *LiveExecutor) BuyFOK(ctx context.Context, tokenID string, shares int, limitPrice float64) (domain.Fill, error) {
	return le.submitFOK(ctx, tokenID, gomodel.BUY, shares, limitPrice)
}

// SellFOK submits a fill-or-kill sell of shares at limitPrice. Holdings are
// checked on-chain first so a fat-fingered size fails locally.
func (le *LiveExecutor) SellFOK(ctx context.Context, tokenID string, shares int, limitPrice float64) (domain.Fill, error) {
	held, err := le.TokenBalance(ctx, tokenID)
	if err != nil {
		slog.Warn("could not verify holdings before sell", "token", shortID(tokenID), "err", err)
	} else if held+1e-9 < float64(shares) {
		return domain.Fill{}, fmt.Errorf("executor.SellFOK: have %.2f want %d: %w", held, shares, domain.ErrNoHoldings)
	}

	return le.submitFOK(ctx, tokenID, gomodel.SELL, shares, limitPrice)
}

// submitFOK signs and posts a FOK order, mapping CLOB failures onto the
// domain sentinel errors the strategies act on.
func (le *LiveExecutor) submitFOK(ctx context.Context, tokenID string, side gomodel.Side, shares int, limitPrice float64) (domain.Fill, error) {
	if err := le.auth.EnsureCreds(ctx); err != nil {
		return domain.Fill{}, fmt.Errorf("executor: creds: %w", err)
	}

	negRisk, err := le.auth.isNegRisk(ctx, tokenID)
	if err != nil {
		slog.Warn("neg-risk check failed, assuming standard exchange", "token", shortID(tokenID), "err", err)
	}

	feeBps, err := le.auth.FeeBps(ctx, tokenID)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("executor: %w", err)
	}

	signed, err := le.auth.buildSignedOrder(tokenID, side, limitPrice, shares, int64(math.Round(feeBps)), negRisk)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("executor: sign: %w", err)
	}

	sideStr := "BUY"
	if side == gomodel.SELL {
		sideStr = "SELL"
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          sideStr,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     le.auth.creds.APIKey,
		OrderType: "FOK",
	}

	var resp clobOrderResponse
	if err := le.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("executor: post order: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.Fill{}, classifyOrderError(resp.ErrorMsg)
	}

	return mapFOKFill(side, shares, limitPrice, resp)
}

// mapFOKFill converts the CLOB response of a matched FOK order into a Fill.
// The CLOB nets the taker fee into the matched amounts, so Fee stays zero and
// Total carries what actually moved.
func mapFOKFill(side gomodel.Side, shares int, limitPrice float64, resp clobOrderResponse) (domain.Fill, error) {
	var usdc, tokens float64
	if side == gomodel.BUY {
		usdc, tokens = parseUSDC(resp.MakingAmount), parseUSDC(resp.TakingAmount)
	} else {
		tokens, usdc = parseUSDC(resp.MakingAmount), parseUSDC(resp.TakingAmount)
	}

	if !strings.EqualFold(resp.Status, "matched") || tokens+0.5 < float64(shares) {
		return domain.Fill{}, fmt.Errorf("executor: status %q, matched %.2f of %d: %w",
			resp.Status, tokens, shares, domain.ErrOrderRejected)
	}

	fill := domain.Fill{
		Shares:     shares,
		Notional:   usdc,
		Total:      usdc,
		WorstPrice: limitPrice,
	}
	if tokens > 0 {
		fill.AvgPrice = usdc / tokens
	}

	slog.Info("order matched",
		"side", side, "shares", shares,
		"limit", limitPrice, "avg", fill.AvgPrice,
		"order_id", resp.OrderID,
	)
	return fill, nil
}

// classifyOrderError maps CLOB error messages onto domain sentinels.
func classifyOrderError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "balance"), strings.Contains(lower, "allowance"):
		return fmt.Errorf("executor: clob: %s: %w", msg, domain.ErrInsufficientBalance)
	case strings.Contains(lower, "liquidity"), strings.Contains(lower, "size"):
		return fmt.Errorf("executor: clob: %s: %w", msg, domain.ErrInsufficientDepth)
	default:
		return fmt.Errorf("executor: clob: %s: %w", msg, domain.ErrOrderRejected)
	}
}

// Redeem converts settled shares into collateral. The losing side expires
// worthless with nothing to claim; the winning side is redeemed on-chain when
// a redeemer is configured, otherwise the proceeds are book-kept and claimed
// manually.
func (le *LiveExecutor) Redeem(ctx context.Context, tokenID string, shares int, payoutPerShare float64) (float64, error) {
	if shares <= 0 || payoutPerShare <= 0 {
		return 0, nil
	}

	proceeds := float64(shares) * payoutPerShare

	if le.redeemer == nil {
		slog.Warn("on-chain redemption disabled, claim positions manually",
			"token", shortID(tokenID), "proceeds", proceeds)
		return proceeds, nil
	}

	cond, ok := le.auth.conditionFor(tokenID)
	if !ok {
		return 0, fmt.Errorf("executor.Redeem: unknown condition for token %s", shortID(tokenID))
	}

	res, err := le.redeemer.RedeemPositions(ctx, cond, proceeds)
	if err != nil {
		return 0, fmt.Errorf("executor.Redeem: %w", err)
	}
	return res.USDCReceived, nil
}

// TokenBalance returns the on-chain ERC-1155 balance for a conditional token,
// in shares.
func (le *LiveExecutor) TokenBalance(ctx context.Context, tokenID string) (float64, error) {
	tid := new(big.Int)
	if _, ok := tid.SetString(tokenID, 10); !ok {
		tidBytes, err := hex.DecodeString(strings.TrimPrefix(tokenID, "0x"))
		if err != nil {
			return 0, fmt.Errorf("executor: token balance: invalid token ID: %s", tokenID)
		}
		tid.SetBytes(tidBytes)
	}

	callData, err := balanceOfERC1155.Pack("balanceOf", le.auth.address, tid)
	if err != nil {
		return 0, fmt.Errorf("executor: token balance: pack: %w", err)
	}

	ctf := common.HexToAddress(ctfAddress)
	result, err := le.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &ctf,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("executor: token balance: call: %w", err)
	}

	vals, err := balanceOfERC1155.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("executor: token balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	shares, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return shares, nil
}

// parseUSDC converts a micro-unit amount string (e.g. "1000000") to a float.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n := new(big.Int)
	if _, ok := n.SetString(s, 10); !ok {
		var f float64
		fmt.Sscanf(s, "%f", &f)
		return f
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}
