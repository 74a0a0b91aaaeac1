package tx

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs finalized transaction bytes on behalf of one address.
type Signer interface {
	Address() string
	SignTransaction(ctx context.Context, txBytes []byte) (string, error)
}

// KeySigner holds a secp256k1 key in memory.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr string
}

// NewKeySigner loads a hex private key, with or without the 0x prefix.
func NewKeySigner(privKeyHex string) (*KeySigner, error) {
	pkHex := strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	if pkHex == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := ethcrypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return newKeySigner(key), nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeySigner(key), nil
}

func newKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:  key,
		addr: NormalizeAddress(ethcrypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

func (s *KeySigner) Address() string {
	return s.addr
}

func (s *KeySigner) SignTransaction(ctx context.Context, txBytes []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(txBytes), s.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that produced sigHex over txBytes.
func RecoverSigner(txBytes []byte, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	pub, err := ethcrypto.SigToPub(ethcrypto.Keccak256(txBytes), sig)
	if err != nil {
		return "", fmt.Errorf("recover pubkey: %w", err)
	}
	return NormalizeAddress(ethcrypto.PubkeyToAddress(*pub).Hex()), nil
}

// NormalizeAddress lower-cases a hex address so comparisons ignore checksum case.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex())
	}
	return strings.ToLower(addr)
}

// SameAddress compares two addresses after normalisation.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
