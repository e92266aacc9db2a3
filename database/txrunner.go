package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// LockDomain is the base offset for a family of advisory lock keys. The bases
// are spaced so that domain + id never collides across domains.
type LockDomain int64

const (
	LockDomainLeague  LockDomain = 1_0000_0000
	LockDomainRoster  LockDomain = 2_0000_0000
	LockDomainTrade   LockDomain = 3_0000_0000
	LockDomainWaiver  LockDomain = 4_0000_0000
	LockDomainAuction LockDomain = 5_0000_0000
	LockDomainLineup  LockDomain = 6_0000_0000
	LockDomainDraft   LockDomain = 7_0000_0000
	LockDomainJob     LockDomain = 9_0000_0000
)

// LockKey computes the advisory lock integer for a domain-scoped id.
func LockKey(domain LockDomain, id int64) int64 {
	return int64(domain) + id
}

// RunInTransaction runs fn inside a single database transaction. Commit on
// nil return, rollback on error or panic; the connection always goes back to
// the pool.
func RunInTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}

// RunWithLock runs fn inside a transaction that holds the transaction-scoped
// advisory lock for (domain, id). The lock is granted before fn sees the tx
// and is released by Postgres at commit/rollback, so fn observes a serialized
// view for that key. Use cases hold a single lock domain at a time; nested
// acquisition is disallowed by convention.
func RunWithLock(ctx context.Context, db *gorm.DB, domain LockDomain, id int64, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", LockKey(domain, id)).Error; err != nil {
			return fmt.Errorf("acquire advisory lock %d: %w", LockKey(domain, id), err)
		}
		return fn(tx)
	})
}
