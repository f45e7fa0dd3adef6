package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// personalMessagePrefix is the EIP-191 prefix for a 32-byte payload.
const personalMessagePrefix = "\x19Ethereum Signed Message:\n32"

// Signer produces secp256k1 signatures over trade intents and settlement
// payloads. Digests use Solidity packed encoding so they can be recomputed
// and verified on-chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignIntent signs a trade intent and returns the hex-encoded 65-byte
// signature. The digest packs (sessionId, marketId, side, size, nonce,
// timestamp) with strings as raw bytes and integers as uint256.
func (s *Signer) SignIntent(intent domain.TradeIntent) (string, error) {
	digest := IntentDigest(intent)
	sig, err := s.signPersonal(digest)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: intent: %w", domain.ErrSigningFailed)
	}
	return sig, nil
}

// SignSettlement signs the final session state for on-chain settlement. The
// signature is over the EIP-191 personal-message hash of SettlementDigest.
func (s *Signer) SignSettlement(sessionID string, finalBalanceUnits, totalPnLUnits, timestamp int64) (string, error) {
	digest := SettlementDigest(sessionID, finalBalanceUnits, totalPnLUnits, timestamp)
	sig, err := s.signPersonal(digest)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: settlement: %w", domain.ErrSigningFailed)
	}
	return sig, nil
}

// SettlementDigest computes keccak256 of the packed settlement payload:
// the session id as raw bytes, then final balance, total P&L, and timestamp
// as 32-byte words. Negative P&L is encoded as two's complement int256.
func SettlementDigest(sessionID string, finalBalanceUnits, totalPnLUnits, timestamp int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte(sessionID),
			bigIntTo32Bytes(big.NewInt(finalBalanceUnits)),
			int256To32Bytes(big.NewInt(totalPnLUnits)),
			bigIntTo32Bytes(big.NewInt(timestamp)),
		),
	)
}

// IntentDigest computes keccak256 of the packed trade intent.
func IntentDigest(intent domain.TradeIntent) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte(intent.SessionID),
			[]byte(intent.Market.ID),
			[]byte(intent.Side),
			bigIntTo32Bytes(big.NewInt(intent.SizeUnits)),
			bigIntTo32Bytes(new(big.Int).SetUint64(intent.Nonce)),
			bigIntTo32Bytes(big.NewInt(intent.Timestamp)),
		),
	)
}

// VerifyPersonal recovers the signer of an EIP-191 personal-message signature
// over digest and reports whether it matches addr.
func VerifyPersonal(digest []byte, sigHex string, addr common.Address) (bool, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return false, fmt.Errorf("crypto/signer: decoding signature: %w", err)
	}
	if len(sig) != 65 {
		return false, fmt.Errorf("crypto/signer: expected 65-byte signature, got %d", len(sig))
	}

	// Undo the v offset before recovery.
	rs := make([]byte, 65)
	copy(rs, sig)
	if rs[64] >= 27 {
		rs[64] -= 27
	}

	hash := personalHash(digest)
	pub, err := ethcrypto.SigToPub(hash, rs)
	if err != nil {
		return false, fmt.Errorf("crypto/signer: recovering pubkey: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub) == addr, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// signPersonal signs the EIP-191 personal-message hash of a 32-byte digest
// and returns the hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signPersonal(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(personalHash(digest), s.privateKey)
	if err != nil {
		return "", err
	}

	// go-ethereum returns v in {0,1}; wallets expect v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// personalHash computes keccak256("\x19Ethereum Signed Message:\n32" || digest).
func personalHash(digest []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes([]byte(personalMessagePrefix), digest),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// int256To32Bytes encodes n as a 32-byte int256, two's complement for
// negative values.
func int256To32Bytes(n *big.Int) []byte {
	if n.Sign() >= 0 {
		return bigIntTo32Bytes(n)
	}
	// 2^256 + n
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	return bigIntTo32Bytes(new(big.Int).Add(mod, n))
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
