package escrow

import (
	"github.com/gagliardetto/solana-go"
)

// AccountRef is one entry of the per-invocation account table the host hands
// to the program. Every field is untrusted until a handler validates it:
// the same account list is re-checked on each invocation because cross
// account consistency cannot be assumed from the instruction alone.
type AccountRef struct {
	Key      solana.PublicKey
	Owner    solana.PublicKey // program that owns the account data
	IsSigner bool
	Data     []byte
	Lamports uint64
}

// accountTable walks the ordered account list of an invocation. Running off
// the end means the caller supplied too few accounts.
type accountTable struct {
	accounts []*AccountRef
	next     int
}

func newAccountTable(accounts []*AccountRef) *accountTable {
	return &accountTable{accounts: accounts}
}

func (t *accountTable) nextAccount() (*AccountRef, error) {
	if t.next >= len(t.accounts) {
		return nil, ErrAccountLengthMismatch
	}
	account := t.accounts[t.next]
	t.next++
	if account == nil {
		return nil, ErrAccountLengthMismatch
	}
	return account, nil
}
