// Package wallet resolves named accounts to marketplace signers.
package wallet

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/R3E-Network/listing_marketplace/internal/algorand"
	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
	"github.com/R3E-Network/listing_marketplace/internal/simnet"
)

// ErrUnknownAccount is returned for names the keyring cannot resolve.
var ErrUnknownAccount = errors.New("unknown account")

// DefaultAccount is used when no default is configured.
const DefaultAccount = "seller"

// Config names the accounts available to the service.
type Config struct {
	Default string `yaml:"default"`
	// Mnemonics maps an account name to the environment variable holding its
	// 25-word mnemonic. Only used on a real network.
	Mnemonics map[string]string `yaml:"mnemonics"`
}

// Keyring holds named signers.
type Keyring struct {
	mu        sync.RWMutex
	signers   map[string]mp.Signer
	def       string
	simulated bool
}

// NewSimulated returns a keyring that derives an account for any name.
func NewSimulated(cfg Config) *Keyring {
	k := &Keyring{signers: make(map[string]mp.Signer), def: defaultName(cfg.Default), simulated: true}
	for name := range cfg.Mnemonics {
		k.signers[name] = simnet.NewAccount(name)
	}
	k.signers[k.def] = simnet.NewAccount(k.def)
	return k
}

// NewAlgorand restores every configured account from its environment
// variable.
func NewAlgorand(cfg Config) (*Keyring, error) {
	k := &Keyring{signers: make(map[string]mp.Signer), def: defaultName(cfg.Default)}
	for name, env := range cfg.Mnemonics {
		words := os.Getenv(env)
		if words == "" {
			return nil, fmt.Errorf("account %s: environment variable %s is empty", name, env)
		}
		acct, err := algorand.AccountFromMnemonic(words)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		k.signers[name] = acct
	}
	if _, ok := k.signers[k.def]; !ok && len(k.signers) > 0 {
		return nil, fmt.Errorf("default account %s is not configured", k.def)
	}
	return k, nil
}

func defaultName(name string) string {
	if name == "" {
		return DefaultAccount
	}
	return name
}

// Signer resolves name. An empty name selects the default account.
func (k *Keyring) Signer(name string) (mp.Signer, error) {
	if name == "" {
		name = k.def
	}

	k.mu.RLock()
	s, ok := k.signers[name]
	k.mu.RUnlock()
	if ok {
		return s, nil
	}
	if !k.simulated {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, name)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.signers[name]; ok {
		return s, nil
	}
	acct := simnet.NewAccount(name)
	k.signers[name] = acct
	return acct, nil
}

// Default returns the default account.
func (k *Keyring) Default() (mp.Signer, error) {
	return k.Signer("")
}

// Names lists the known account names in order.
func (k *Keyring) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.signers))
	for name := range k.signers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
