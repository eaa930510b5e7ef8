package hyperliquid

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	zeroAddress        = "0x0000000000000000000000000000000000000000"
	userSignedChainID  = 421614
	userSignedChainHex = "0x66eee"
)

// Signer produces exchange signatures with a secp256k1 key (the account key
// or an approved API wallet).
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := parseECDSAPrivateKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *Signer) Address() string {
	return strings.ToLower(s.address.Hex())
}

// ActionHash is keccak256(msgpack(action) || nonce_be64 || vault flag [|| vault]).
func ActionHash(action any, vault string, nonce uint64) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(action); err != nil {
		return nil, fmt.Errorf("msgpack action: %w", err)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	buf.Write(n[:])
	vault = strings.TrimSpace(vault)
	if vault == "" {
		buf.WriteByte(0x00)
	} else {
		if !common.IsHexAddress(vault) {
			return nil, fmt.Errorf("invalid vault address %q", vault)
		}
		buf.WriteByte(0x01)
		buf.Write(common.HexToAddress(vault).Bytes())
	}
	return crypto.Keccak256(buf.Bytes()), nil
}

// SignL1Action signs a trading action through the phantom-agent scheme.
func (s *Signer) SignL1Action(action any, vault string, nonce uint64, mainnet bool) (Signature, error) {
	hash, err := ActionHash(action, vault, nonce)
	if err != nil {
		return Signature{}, err
	}
	source := "b"
	if mainnet {
		source = "a"
	}
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: zeroAddress,
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hash,
		},
	}
	return s.signTypedData(td)
}

// SignApproveBuilderFee signs the user-level approval that lets a builder
// charge up to the action's max fee rate on this account's orders.
func (s *Signer) SignApproveBuilderFee(action ApproveBuilderFeeAction) (Signature, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"HyperliquidTransaction:ApproveBuilderFee": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "maxFeeRate", Type: "string"},
				{Name: "builder", Type: "address"},
				{Name: "nonce", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:ApproveBuilderFee",
		Domain: apitypes.TypedDataDomain{
			Name:              "HyperliquidSignTransaction",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(userSignedChainID),
			VerifyingContract: zeroAddress,
		},
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": action.HyperliquidChain,
			"maxFeeRate":       action.MaxFeeRate,
			"builder":          action.Builder,
			"nonce":            new(big.Int).SetUint64(action.Nonce),
		},
	}
	return s.signTypedData(td)
}

var eip712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func (s *Signer) signTypedData(td apitypes.TypedData) (Signature, error) {
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return Signature{}, fmt.Errorf("eip712 hash: %w", err)
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

func parseECDSAPrivateKeyHex(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "0x")
	if raw == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
