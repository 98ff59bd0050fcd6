package algorand

import (
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
)

// Account is a key-holding signer.
type Account struct {
	acct crypto.Account
}

var _ TxSigner = Account{}

// AccountFromMnemonic restores an account from its 25-word mnemonic.
func AccountFromMnemonic(words string) (Account, error) {
	sk, err := mnemonic.ToPrivateKey(strings.Join(strings.Fields(words), " "))
	if err != nil {
		return Account{}, fmt.Errorf("decode mnemonic: %w", err)
	}
	acct, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return Account{}, fmt.Errorf("restore account: %w", err)
	}
	return Account{acct: acct}, nil
}

// Address implements marketplace.Signer.
func (a Account) Address() string { return a.acct.Address.String() }

// TransactionSigner implements TxSigner.
func (a Account) TransactionSigner() transaction.TransactionSigner {
	return transaction.BasicAccountTransactionSigner{Account: a.acct}
}
