package onchain

// redeem.go — On-chain CTF redemption executor for Polymarket.
//
// Once an interval resolves, redeemPositions() on the CTF (Conditional Token
// Framework) contract pays out the winning tokens 1:1 in USDC.e and burns the
// losing ones:
//   100 winning tokens → $100 USDC.e
//
// This file handles:
//   - Dynamic gas estimation
//   - ERC1155/ERC20 approval checks for the exchange contracts
//   - The redemption transaction itself

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// CTF contract — holds conditional tokens (ERC1155)
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// Exchange contracts that need ERC1155 setApprovalForAll
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	// Gas limits (conservative upper bounds)
	redeemGasLimit   = uint64(200_000)
	approvalGasLimit = uint64(80_000)

	// POL price fallback (USD) — used when no oracle available
	polPriceFallbackUSD = 0.12

	// Gas price update interval
	gasPriceUpdateInterval = 5 * time.Minute
)

// Contract ABIs
var (
	ctfABI     abi.ABI
	erc1155ABI abi.ABI
	erc20ABI   abi.ABI
)

func init() {
	var err error

	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "redeemPositions",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSets", "type": "uint256[]"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}

	erc1155ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "setApprovalForAll",
			"type": "function",
			"inputs": [
				{"name": "operator", "type": "address"},
				{"name": "approved", "type": "bool"}
			],
			"outputs": []
		},
		{
			"name": "isApprovedForAll",
			"type": "function",
			"inputs": [
				{"name": "account", "type": "address"},
				{"name": "operator", "type": "address"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`))
	if err != nil {
		panic("erc1155 abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// RedeemClient implements ports.PositionRedeemer.
type RedeemClient struct {
	client     *ethclient.Client
	privateKey []byte
	address    common.Address
	rpcURL     string
	httpClient *http.Client

	mu             sync.RWMutex
	cachedGasWei   *big.Int
	gasUpdatedAt   time.Time
	cachedPOLPrice float64
	polPriceAt     time.Time
}

// NewRedeemClient creates a redeem executor connected to the given Polygon RPC.
// privateKeyHex is without 0x prefix.
func NewRedeemClient(rpcURL, privateKeyHex string) (*RedeemClient, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("redeem: decode private key: %w", err)
	}

	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("redeem: invalid private key: %w", err)
	}

	addr := crypto.PubkeyToAddress(privKey.PublicKey)

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("redeem: dial rpc %s: %w", rpcURL, err)
	}

	return &RedeemClient{
		client:     client,
		privateKey: pkBytes,
		address:    addr,
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// EstimateGasCostUSD returns the estimated gas cost in USD for a redemption.
func (rc *RedeemClient) EstimateGasCostUSD(ctx context.Context) (float64, error) {
	gasPrice, err := rc.getGasPrice(ctx)
	if err != nil {
		return rc.polPriceUSD() * float64(redeemGasLimit) * 100e-9, nil
	}

	gasCostPOL := new(big.Float).SetInt(new(big.Int).Mul(gasPrice, big.NewInt(int64(redeemGasLimit))))
	gasCostPOL.Quo(gasCostPOL, new(big.Float).SetFloat64(1e18))

	gasCostPOLf, _ := gasCostPOL.Float64()
	return gasCostPOLf * rc.polPriceUSD(), nil
}

// polPriceUSD returns the cached POL price, refreshing from CoinGecko if stale.
func (rc *RedeemClient) polPriceUSD() float64 {
	rc.mu.RLock()
	price := rc.cachedPOLPrice
	updatedAt := rc.polPriceAt
	rc.mu.RUnlock()

	if price > 0 && time.Since(updatedAt) < 15*time.Minute {
		return price
	}

	fetched, err := rc.fetchPOLPrice()
	if err != nil {
		slog.Warn("redeem: failed to fetch POL price, using fallback", "err", err)
		if price > 0 {
			return price
		}
		return polPriceFallbackUSD
	}

	rc.mu.Lock()
	rc.cachedPOLPrice = fetched
	rc.polPriceAt = time.Now()
	rc.mu.Unlock()

	return fetched
}

// fetchPOLPrice queries CoinGecko for the current POL/USD price.
func (rc *RedeemClient) fetchPOLPrice() (float64, error) {
	const url = "https://api.coingecko.com/api/v3/simple/price?ids=polygon-ecosystem-token&vs_currencies=usd"

	resp, err := rc.httpClient.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, body)
	}

	var data map[string]map[string]float64
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, err
	}

	price, ok := data["polygon-ecosystem-token"]["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("POL price not found in response")
	}

	slog.Debug("redeem: fetched POL price", "usd", price)
	return price, nil
}

// RedeemPositions executes an on-chain redemption for the given condition.
// amount is the expected USDC payout, used only for reporting; the contract
// pays out whatever winning tokens the wallet actually holds.
func (rc *RedeemClient) RedeemPositions(ctx context.Context, conditionID string, amount float64) (domain.RedeemResult, error) {
	result := domain.RedeemResult{
		ConditionID: conditionID,
		ExecutedAt:  time.Now().UTC(),
	}

	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		result.Error = fmt.Sprintf("invalid conditionID: %v", err)
		return result, err
	}

	// Both index sets: redeems the winning side, burns the worthless one.
	indexSets := []*big.Int{big.NewInt(1), big.NewInt(2)}

	callData, err := ctfABI.Pack("redeemPositions",
		common.HexToAddress(usdcEAddress),
		[32]byte{},
		condBytes,
		indexSets,
	)
	if err != nil {
		result.Error = fmt.Sprintf("pack calldata: %v", err)
		return result, fmt.Errorf("redeem: pack: %w", err)
	}

	privKey, err := crypto.ToECDSA(rc.privateKey)
	if err != nil {
		result.Error = "invalid private key"
		return result, fmt.Errorf("redeem: private key: %w", err)
	}

	nonce, err := rc.client.PendingNonceAt(ctx, rc.address)
	if err != nil {
		result.Error = fmt.Sprintf("get nonce: %v", err)
		return result, fmt.Errorf("redeem: nonce: %w", err)
	}

	gasPrice, err := rc.getGasPrice(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("get gas price: %v", err)
		return result, fmt.Errorf("redeem: gas price: %w", err)
	}

	ctfAddr := common.HexToAddress(ctfAddress)

	// Estimate actual gas
	gasEstimate, err := rc.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     rc.address,
		To:       &ctfAddr,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		// Fall back to conservative limit
		gasEstimate = redeemGasLimit
		slog.Warn("redeem: gas estimate failed, using default", "err", err, "limit", redeemGasLimit)
	}
	// Add 20% buffer
	gasEstimate = gasEstimate * 12 / 10

	tx := types.NewTransaction(
		nonce,
		ctfAddr,
		big.NewInt(0), // no ETH value
		gasEstimate,
		gasPrice,
		callData,
	)

	chainID := big.NewInt(polygonChainID)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privKey)
	if err != nil {
		result.Error = fmt.Sprintf("sign tx: %v", err)
		return result, fmt.Errorf("redeem: sign tx: %w", err)
	}

	if err := rc.client.SendTransaction(ctx, signedTx); err != nil {
		result.Error = fmt.Sprintf("send tx: %v", err)
		return result, fmt.Errorf("redeem: send tx: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	result.TxHash = txHash
	slog.Info("redeem: transaction sent", "condition", shortCondition(conditionID), "amount", amount, "tx", txHash)

	// Wait for receipt (up to 60s)
	receiptCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	receipt, err := rc.waitForReceipt(receiptCtx, signedTx.Hash())
	if err != nil {
		// TX sent but we couldn't confirm — mark as potentially succeeded
		slog.Warn("redeem: could not confirm receipt, tx may still succeed", "tx", txHash, "err", err)
		result.Success = true // optimistic
		result.USDCReceived = amount
		return result, nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		result.Error = "transaction reverted on-chain"
		return result, fmt.Errorf("redeem: tx reverted: %s", txHash)
	}

	// Calculate gas cost
	gasUsedPOL := new(big.Float).SetUint64(receipt.GasUsed)
	gasPriceF := new(big.Float).SetInt(gasPrice)
	gasCostWei := new(big.Float).Mul(gasUsedPOL, gasPriceF)
	gasCostPOL, _ := new(big.Float).Quo(gasCostWei, new(big.Float).SetFloat64(1e18)).Float64()
	gasCostUSD := gasCostPOL * rc.polPriceUSD()

	result.Success = true
	result.GasCostUSD = gasCostUSD
	result.USDCReceived = amount

	slog.Info("redeem: confirmed",
		"condition", shortCondition(conditionID),
		"tx", txHash,
		"gas_usdc", fmt.Sprintf("$%.4f", gasCostUSD),
		"usdc_received", amount,
	)

	return result, nil
}

// EnsureApprovals checks and sets both:
//   - ERC1155 setApprovalForAll on the three exchange contracts (for token transfers)
//   - ERC20 USDC.e approve for both exchange contracts (for BUY collateral)
func (rc *RedeemClient) EnsureApprovals(ctx context.Context) error {
	operators := []string{normalExchange, negRiskExchange, negRiskAdapter}

	for _, op := range operators {
		approved, err := rc.isApprovedForAll(ctx, common.HexToAddress(op))
		if err != nil {
			return fmt.Errorf("check ERC1155 approval for %s: %w", op, err)
		}
		if approved {
			slog.Debug("redeem: ERC1155 approval already set", "operator", op)
			continue
		}

		slog.Info("redeem: setting ERC1155 approval", "operator", op)
		if err := rc.setApprovalForAll(ctx, common.HexToAddress(op)); err != nil {
			return fmt.Errorf("set ERC1155 approval for %s: %w", op, err)
		}
		slog.Info("redeem: ERC1155 approval set", "operator", op)
	}

	exchanges := []string{normalExchange, negRiskExchange}
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minAllowance := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)) // 1M USDC.e

	for _, ex := range exchanges {
		allowance, err := rc.erc20Allowance(ctx, common.HexToAddress(usdcEAddress), common.HexToAddress(ex))
		if err != nil {
			return fmt.Errorf("check USDC.e allowance for %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			slog.Debug("redeem: USDC.e allowance sufficient", "exchange", ex)
			continue
		}

		slog.Info("redeem: setting USDC.e approval", "exchange", ex)
		if err := rc.erc20Approve(ctx, common.HexToAddress(usdcEAddress), common.HexToAddress(ex), maxUint256); err != nil {
			return fmt.Errorf("set USDC.e approval for %s: %w", ex, err)
		}
		slog.Info("redeem: USDC.e approval set", "exchange", ex)
	}

	return nil
}

// isApprovedForAll checks ERC1155 approval for an operator on the CTF contract.
func (rc *RedeemClient) isApprovedForAll(ctx context.Context, operator common.Address) (bool, error) {
	callData, err := erc1155ABI.Pack("isApprovedForAll", rc.address, operator)
	if err != nil {
		return false, err
	}

	ctfAddr := common.HexToAddress(ctfAddress)
	result, err := rc.client.CallContract(ctx, ethereum.CallMsg{
		To:   &ctfAddr,
		Data: callData,
	}, nil)
	if err != nil {
		return false, err
	}

	vals, err := erc1155ABI.Unpack("isApprovedForAll", result)
	if err != nil || len(vals) == 0 {
		return false, err
	}
	return vals[0].(bool), nil
}

// setApprovalForAll sends a setApprovalForAll transaction on the CTF contract.
func (rc *RedeemClient) setApprovalForAll(ctx context.Context, operator common.Address) error {
	callData, err := erc1155ABI.Pack("setApprovalForAll", operator, true)
	if err != nil {
		return err
	}

	privKey, err := crypto.ToECDSA(rc.privateKey)
	if err != nil {
		return err
	}

	nonce, err := rc.client.PendingNonceAt(ctx, rc.address)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := rc.getGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	ctfAddr := common.HexToAddress(ctfAddress)
	tx := types.NewTransaction(nonce, ctfAddr, big.NewInt(0), approvalGasLimit, gasPrice, callData)

	chainID := big.NewInt(polygonChainID)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privKey)
	if err != nil {
		return err
	}

	if err := rc.client.SendTransaction(ctx, signed); err != nil {
		return err
	}

	receiptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	receipt, err := rc.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("setApprovalForAll tx reverted")
	}
	return nil
}

// erc20Allowance queries the current ERC20 allowance.
func (rc *RedeemClient) erc20Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("allowance", rc.address, spender)
	if err != nil {
		return nil, err
	}

	result, err := rc.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, err
	}

	vals, err := erc20ABI.Unpack("allowance", result)
	if err != nil || len(vals) == 0 {
		return big.NewInt(0), err
	}
	return vals[0].(*big.Int), nil
}

// erc20Approve sends an ERC20 approve transaction.
func (rc *RedeemClient) erc20Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	callData, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return err
	}

	privKey, err := crypto.ToECDSA(rc.privateKey)
	if err != nil {
		return err
	}

	nonce, err := rc.client.PendingNonceAt(ctx, rc.address)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := rc.getGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, token, big.NewInt(0), approvalGasLimit, gasPrice, callData)

	chainID := big.NewInt(polygonChainID)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privKey)
	if err != nil {
		return err
	}

	if err := rc.client.SendTransaction(ctx, signed); err != nil {
		return err
	}

	receiptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	receipt, err := rc.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("ERC20 approve tx reverted")
	}
	return nil
}

// getGasPrice returns the current gas price, with caching to avoid excessive RPC calls.
func (rc *RedeemClient) getGasPrice(ctx context.Context) (*big.Int, error) {
	rc.mu.RLock()
	cached := rc.cachedGasWei
	updatedAt := rc.gasUpdatedAt
	rc.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := rc.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil // 30 gwei fallback
	}

	// Add 10% buffer for faster inclusion (copy to avoid mutating SuggestGasPrice return)
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))
	price = buffered

	rc.mu.Lock()
	rc.cachedGasWei = price
	rc.gasUpdatedAt = time.Now()
	rc.mu.Unlock()

	return price, nil
}

// waitForReceipt polls for a transaction receipt until confirmed or timeout.
func (rc *RedeemClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := rc.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

// shortCondition truncates a condition ID for logs.
func shortCondition(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}

// hexToBytes32 converts a 0x-prefixed hex string to [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
