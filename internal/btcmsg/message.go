// Package btcmsg implements the Bitcoin signed-message scheme used by
// Electrum, Bitcoin Core and bitcoinjs-message: a double SHA-256 over a
// magic-prefixed message and a 65-byte compact recoverable signature.
package btcmsg

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const magic = "Bitcoin Signed Message:\n"

var (
	ErrBadSignature    = errors.New("btcmsg: malformed signature")
	ErrBadAddress      = errors.New("btcmsg: malformed address")
	ErrWrongNetwork    = errors.New("btcmsg: address belongs to another network")
	ErrAddressMismatch = errors.New("btcmsg: signature does not match address")
	ErrUnsupportedAddr = errors.New("btcmsg: unsupported address type")
	ErrUnknownNetwork  = errors.New("btcmsg: unknown network")
)

// AddressType selects the output script an address commits to.
type AddressType int

const (
	P2PKH AddressType = iota
	P2SHP2WPKH
	P2WPKH
)

// MessageHash returns sha256d(varstr(magic) || varstr(message)).
func MessageHash(message string) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarString(&buf, 0, magic); err != nil {
		return nil, err
	}
	if err := wire.WriteVarString(&buf, 0, message); err != nil {
		return nil, err
	}
	return chainhash.DoubleHashB(buf.Bytes()), nil
}

// Address encodes pub as an address of the given type on net.
func Address(pub *btcec.PublicKey, kind AddressType, compressed bool, net *chaincfg.Params) (string, error) {
	serialized := pub.SerializeUncompressed()
	if compressed {
		serialized = pub.SerializeCompressed()
	}
	keyHash := btcutil.Hash160(serialized)

	switch kind {
	case P2PKH:
		addr, err := btcutil.NewAddressPubKeyHash(keyHash, net)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil
	case P2WPKH:
		if !compressed {
			return "", fmt.Errorf("%w: segwit requires a compressed key", ErrUnsupportedAddr)
		}
		addr, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, net)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil
	case P2SHP2WPKH:
		if !compressed {
			return "", fmt.Errorf("%w: segwit requires a compressed key", ErrUnsupportedAddr)
		}
		redeem := append([]byte{0x00, 0x14}, keyHash...)
		addr, err := btcutil.NewAddressScriptHash(redeem, net)
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil
	default:
		return "", ErrUnsupportedAddr
	}
}

// NetParams resolves a network name.
func NetParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}
