package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidKeyFormat = errors.New("invalid_relayer_private_key_format")
	ErrInvalidKey       = errors.New("invalid_relayer_private_key")
)

// Key is a secp256k1 signing key. The relayer uses it only to sign the outer
// network transaction, never request contents.
type Key struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NormalizeKeyHex trims the key and adds the 0x prefix. The result must be
// exactly 66 characters long.
func NormalizeKeyHex(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if len(s) != 2+2*common.HashLength {
		return "", ErrInvalidKeyFormat
	}
	return s, nil
}

func LoadKey(hexKey string) (*Key, error) {
	s, err := NormalizeKeyHex(hexKey)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.HexToECDSA(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKey(priv), nil
}

// LoadKeyFile reads a hex encoded key, as written by the init command.
func LoadKeyFile(keyFilePath string) (*Key, error) {
	dat, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	return LoadKey(string(dat))
}

func GenerateKey() (*Key, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKey(priv), nil
}

func NewKey(priv *ecdsa.PrivateKey) *Key {
	return &Key{
		privateKey: priv,
		address:    crypto.PubkeyToAddress(priv.PublicKey),
	}
}

func (k *Key) PrivateKey() *ecdsa.PrivateKey {
	return k.privateKey
}

func (k *Key) Address() common.Address {
	return k.address
}

func (k *Key) Hex() string {
	return common.Bytes2Hex(crypto.FromECDSA(k.privateKey))
}

// Sign signs a 32 byte digest. V is shifted to 27/28 as Solidity's ecrecover
// expects.
func (k *Key) Sign(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, k.privateKey)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the signer of a 27/28 style signature over hash.
func Recover(hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d", len(sig))
	}
	s := common.CopyBytes(sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, s)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Save writes the key as hex, readable by LoadKeyFile. Existing files are
// never overwritten.
func (k *Key) Save(keyFilePath string) error {
	if _, err := os.Stat(keyFilePath); err == nil {
		return fmt.Errorf("key file %s already exists", keyFilePath)
	}
	if err := os.MkdirAll(filepath.Dir(keyFilePath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(keyFilePath, []byte(k.Hex()), 0o600)
}
