package middleware

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type seenKey struct {
	signer common.Address
	nonce  string
}

// replayGuard помнит принятые пары (подписавший, nonce), пока их метка времени
// не выйдет за допустимое отклонение.
type replayGuard struct {
	mu        sync.Mutex
	seen      map[seenKey]time.Time
	nextPrune time.Time
}

func newReplayGuard() *replayGuard {
	return &replayGuard{seen: make(map[seenKey]time.Time)}
}

// accept регистрирует запрос и возвращает false для уже виденного.
func (g *replayGuard) accept(signer common.Address, nonce string, expires, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !now.Before(g.nextPrune) {
		for k, exp := range g.seen {
			if now.After(exp) {
				delete(g.seen, k)
			}
		}
		g.nextPrune = now.Add(time.Minute)
	}

	k := seenKey{signer: signer, nonce: nonce}
	if _, ok := g.seen[k]; ok {
		return false
	}
	g.seen[k] = expires
	return true
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
