// Package nonce issues strictly sequential transaction nonces per address.
// Every transaction the bot signs, including approvals and fee bumps for
// exits, must draw from here; mixing in nonces fetched ad hoc from the node
// would fork the sequence and strand transactions.
package nonce

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TxCounter supplies the network's transaction count for an address. A nil
// block number means the latest state.
type TxCounter interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Sequencer hands out gap-free nonces for one address. The first Next call
// seeds the counter from the network; every later call increments locally
// without touching the node, so concurrent callers serialise on the mutex
// and each receives a distinct value.
type Sequencer struct {
	rpc     TxCounter
	account common.Address

	mu     sync.Mutex
	next   uint64
	seeded bool
}

func NewSequencer(rpc TxCounter, account common.Address) *Sequencer {
	return &Sequencer{rpc: rpc, account: account}
}

func (s *Sequencer) Account() common.Address { return s.account }

// Next returns the next nonce for the account. The network lookup happens
// at most once; a failed seed leaves the sequencer unseeded so the next
// caller retries.
func (s *Sequencer) Next(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		n, err := s.rpc.NonceAt(ctx, s.account, nil)
		if err != nil {
			return 0, fmt.Errorf("nonce: seed for %s: %w", s.account.Hex(), err)
		}
		s.next = n
		s.seeded = true
	}

	n := s.next
	s.next++
	return n, nil
}

// Registry hands out one Sequencer per address so all signers for an
// account share a sequence.
type Registry struct {
	rpc TxCounter

	mu   sync.Mutex
	seqs map[common.Address]*Sequencer
}

func NewRegistry(rpc TxCounter) *Registry {
	return &Registry{rpc: rpc, seqs: make(map[common.Address]*Sequencer)}
}

// For returns the sequencer for account, creating it on first use. Repeated
// calls return the same instance.
func (r *Registry) For(account common.Address) *Sequencer {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, ok := r.seqs[account]
	if !ok {
		seq = NewSequencer(r.rpc, account)
		r.seqs[account] = seq
	}
	return seq
}
