// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package sec

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// minHMACSecretLength is the shortest HS256 secret accepted.
const minHMACSecretLength = 32

// SigningKeys bundles the algorithm and key material used by [TokenService].
//
// Key material is process-wide configuration; build it once at startup with
// [LoadRSAKeys], [RSAKeys] or [HMACKey].
type SigningKeys struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// Algorithm returns the JWS "alg" value, e.g. "RS256".
func (k SigningKeys) Algorithm() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// RSAKeys builds RS256 signing keys from an in-memory key pair.
func RSAKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) SigningKeys {
	return SigningKeys{method: jwt.SigningMethodRS256, signKey: privateKey, verifyKey: publicKey}
}

// HMACKey builds HS256 signing keys from a shared secret of at least 32 bytes.
func HMACKey(secret []byte) (SigningKeys, error) {
	if len(secret) < minHMACSecretLength {
		return SigningKeys{}, fmt.Errorf("sec: hmac secret must be at least %d bytes, got %d", minHMACSecretLength, len(secret))
	}
	return SigningKeys{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret}, nil
}

// LoadRSAKeys reads a PEM encoded RSA key pair from the provided filesystem paths.
func LoadRSAKeys(privateKeyPath, publicKeyPath string) (SigningKeys, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return SigningKeys{}, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return SigningKeys{}, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return SigningKeys{}, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return SigningKeys{}, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return RSAKeys(privateKey, publicKey), nil
}
