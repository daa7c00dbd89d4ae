package client

import "context"

// Method names providers register under. Capability interfaces below give
// the typed form of each group; the string names exist for resolution,
// validation, and generic forwarding.
const (
	// Node query capability.
	MethodGetUnspentTransactions = "getUnspentTransactions"
	MethodGetTransactionHex      = "getTransactionHex"
	MethodGetTransactionByHash   = "getTransactionByHash"
	MethodGetAddressTransactions = "getAddressTransactions"
	MethodIsAddressUsed          = "isAddressUsed"
	MethodBroadcastTransaction   = "broadcastTransaction"
	MethodGetBlockHeight         = "getBlockHeight"
	MethodGetFeePerByte          = "getFeePerByte"

	// Wallet capability.
	MethodGetUnusedAddress        = "getUnusedAddress"
	MethodGetUsedAddresses        = "getUsedAddresses"
	MethodGenerateSecret          = "generateSecret"
	MethodSendToAddress           = "sendToAddress"
	MethodSignSwapInput           = "signSwapInput"
	MethodCreateSignedTransaction = "createSignedTransaction"

	// Swap capability.
	MethodCreateSwapScript               = "createSwapScript"
	MethodInitiateSwap                   = "initiateSwap"
	MethodFindInitiateSwapTransaction    = "findInitiateSwapTransaction"
	MethodVerifyInitiateSwapTransaction  = "verifyInitiateSwapTransaction"
	MethodClaimSwap                      = "claimSwap"
	MethodFindClaimSwapTransaction       = "findClaimSwapTransaction"
	MethodRefundSwap                     = "refundSwap"
)

// ChainQuery is the node-query capability: read-only chain access plus
// transaction broadcast. Implemented by the backend query provider.
type ChainQuery interface {
	GetUnspentTransactions(ctx context.Context, address string) ([]UTXO, error)
	GetTransactionHex(ctx context.Context, txHash string) (string, error)
	GetTransactionByHash(ctx context.Context, txHash string) (*Transaction, error)
	GetAddressTransactions(ctx context.Context, address string) ([]Transaction, error)
	IsAddressUsed(ctx context.Context, address string) (bool, error)
	BroadcastTransaction(ctx context.Context, rawHex string) (string, error)
	GetBlockHeight(ctx context.Context) (int64, error)
	GetFeePerByte(ctx context.Context) (uint64, error)
}

// Wallet is the key-owning capability: address discovery, coin selection and
// signing, with all private-key operations delegated to a signing device.
type Wallet interface {
	GetUnusedAddress(ctx context.Context) (Address, error)
	GetUsedAddresses(ctx context.Context) ([]Address, error)
	GenerateSecret(ctx context.Context, seed string) ([]byte, error)
	SendToAddress(ctx context.Context, address string, value uint64) (string, error)

	// SignSwapInput signs input index of the serialized transaction rawTx,
	// which spends an output locked by redeemScript, with the key behind
	// addr. Returns the DER signature and the compressed public key.
	SignSwapInput(ctx context.Context, rawTx []byte, index int, redeemScript []byte, addr Address) (sig, pubKey []byte, err error)
}

// Swap is the HTLC lifecycle capability.
type Swap interface {
	CreateSwapScript(params SwapParams) (script []byte, address Address, err error)
	InitiateSwap(ctx context.Context, value uint64, params SwapParams) (string, error)
	FindInitiateSwapTransaction(ctx context.Context, value uint64, params SwapParams) (*Transaction, error)
	VerifyInitiateSwapTransaction(ctx context.Context, txID string, value uint64, params SwapParams) (bool, error)
	ClaimSwap(ctx context.Context, initiationTxID string, params SwapParams, secret []byte) (string, error)
	FindClaimSwapTransaction(ctx context.Context, initiationTxID string, params SwapParams) (*Transaction, []byte, error)
	RefundSwap(ctx context.Context, initiationTxID string, params SwapParams) (string, error)
}

// query resolves the chain-query capability.
func (c *Client) query(method string) (ChainQuery, error) {
	p, err := c.Resolve(method)
	if err != nil {
		return nil, err
	}
	q, ok := p.(ChainQuery)
	if !ok {
		return nil, ErrMethodNotImplemented
	}
	return q, nil
}

// wallet resolves the wallet capability.
func (c *Client) wallet(method string) (Wallet, error) {
	p, err := c.Resolve(method)
	if err != nil {
		return nil, err
	}
	w, ok := p.(Wallet)
	if !ok {
		return nil, ErrMethodNotImplemented
	}
	return w, nil
}

// swap resolves the swap capability.
func (c *Client) swap(method string) (Swap, error) {
	p, err := c.Resolve(method)
	if err != nil {
		return nil, err
	}
	s, ok := p.(Swap)
	if !ok {
		return nil, ErrMethodNotImplemented
	}
	return s, nil
}

// Typed convenience surface. Each method resolves the implementing provider
// and forwards; semantics are the provider's.

func (c *Client) GetUnusedAddress(ctx context.Context) (Address, error) {
	w, err := c.wallet(MethodGetUnusedAddress)
	if err != nil {
		return Address{}, err
	}
	return w.GetUnusedAddress(ctx)
}

func (c *Client) GenerateSecret(ctx context.Context, seed string) ([]byte, error) {
	w, err := c.wallet(MethodGenerateSecret)
	if err != nil {
		return nil, err
	}
	return w.GenerateSecret(ctx, seed)
}

func (c *Client) GetUnspentTransactions(ctx context.Context, address string) ([]UTXO, error) {
	q, err := c.query(MethodGetUnspentTransactions)
	if err != nil {
		return nil, err
	}
	return q.GetUnspentTransactions(ctx, address)
}

func (c *Client) BroadcastTransaction(ctx context.Context, rawHex string) (string, error) {
	q, err := c.query(MethodBroadcastTransaction)
	if err != nil {
		return "", err
	}
	return q.BroadcastTransaction(ctx, rawHex)
}

func (c *Client) CreateSwapScript(params SwapParams) ([]byte, Address, error) {
	s, err := c.swap(MethodCreateSwapScript)
	if err != nil {
		return nil, Address{}, err
	}
	return s.CreateSwapScript(params)
}

func (c *Client) InitiateSwap(ctx context.Context, value uint64, params SwapParams) (string, error) {
	s, err := c.swap(MethodInitiateSwap)
	if err != nil {
		return "", err
	}
	return s.InitiateSwap(ctx, value, params)
}

func (c *Client) FindInitiateSwapTransaction(ctx context.Context, value uint64, params SwapParams) (*Transaction, error) {
	s, err := c.swap(MethodFindInitiateSwapTransaction)
	if err != nil {
		return nil, err
	}
	return s.FindInitiateSwapTransaction(ctx, value, params)
}

func (c *Client) VerifyInitiateSwapTransaction(ctx context.Context, txID string, value uint64, params SwapParams) (bool, error) {
	s, err := c.swap(MethodVerifyInitiateSwapTransaction)
	if err != nil {
		return false, err
	}
	return s.VerifyInitiateSwapTransaction(ctx, txID, value, params)
}

func (c *Client) ClaimSwap(ctx context.Context, initiationTxID string, params SwapParams, secret []byte) (string, error) {
	s, err := c.swap(MethodClaimSwap)
	if err != nil {
		return "", err
	}
	return s.ClaimSwap(ctx, initiationTxID, params, secret)
}

func (c *Client) FindClaimSwapTransaction(ctx context.Context, initiationTxID string, params SwapParams) (*Transaction, []byte, error) {
	s, err := c.swap(MethodFindClaimSwapTransaction)
	if err != nil {
		return nil, nil, err
	}
	return s.FindClaimSwapTransaction(ctx, initiationTxID, params)
}

func (c *Client) RefundSwap(ctx context.Context, initiationTxID string, params SwapParams) (string, error) {
	s, err := c.swap(MethodRefundSwap)
	if err != nil {
		return "", err
	}
	return s.RefundSwap(ctx, initiationTxID, params)
}
