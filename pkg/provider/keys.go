package provider

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// PasswordFunc supplies the passphrase of an encrypted keystore file.
type PasswordFunc func(prompt string) (string, error)

// ExpandHome resolves a leading "~/" against the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home dir: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// LoadKey reads either a hex-encoded private key file or an encrypted
// keystore (v3 JSON) file. The password is read from passwordFile when set,
// otherwise requested through password.
func LoadKey(keyFile string, passwordFile string, password PasswordFunc) (*ecdsa.PrivateKey, error) {
	path, err := ExpandHome(keyFile)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file at: %s, %w", path, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(buf), []byte("{")) {
		key, err := crypto.LoadECDSA(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		return key, nil
	}

	var pass string
	switch {
	case passwordFile != "":
		pwPath, err := ExpandHome(passwordFile)
		if err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(pwPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read password file at: %s, %w", pwPath, err)
		}
		pass = strings.TrimRight(string(raw), "\r\n")
	case password != nil:
		pass, err = password(fmt.Sprintf("Password for %s: ", filepath.Base(path)))
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
	default:
		return nil, fmt.Errorf("keystore %s is encrypted and no password source is configured", path)
	}

	key, err := keystore.DecryptKey(buf, pass)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore %s: %w", path, err)
	}
	return key.PrivateKey, nil
}

func addressFromKey(privateKey *ecdsa.PrivateKey) common.Address {
	pubKeyBytes := crypto.FromECDSAPub(&privateKey.PublicKey)
	hash := sha3.NewLegacyKeccak256()
	hash.Write(pubKeyBytes[1:])
	return common.BytesToAddress(hash.Sum(nil)[12:])
}
