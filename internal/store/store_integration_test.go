// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accounts/internal/store"
)

var _ = Describe("Migrator", func() {
	It("applies, steps and rolls back the embedded migrations", func() {
		migrator, err := store.NewMigrator(databaseURL)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()

		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(Equal(uint(2)))

		pending, err := migrator.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		// Leave the schema in place for other specs.
		Expect(migrator.Up()).To(Succeed())
	})
})

var _ = Describe("Pool", func() {
	var pool *store.Pool

	BeforeEach(func() {
		var err error
		pool, err = store.Connect(context.Background(), store.PoolConfig{
			URL:             databaseURL,
			MaxConns:        1,
			AcquireTimeout:  200 * time.Millisecond,
			ConnectAttempts: 3,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		pool.Close()
	})

	It("runs queries and releases connections", func() {
		ctx := context.Background()
		for range 5 {
			var n int
			Expect(pool.QueryRow(ctx, `SELECT 1`).Scan(&n)).To(Succeed())
			Expect(n).To(Equal(1))
		}

		rows, err := pool.Query(ctx, `SELECT generate_series(1, 3)`)
		Expect(err).NotTo(HaveOccurred())
		count := 0
		for rows.Next() {
			count++
		}
		rows.Close()
		Expect(count).To(Equal(3))

		Expect(pool.Ping(ctx)).To(Succeed())
	})

	It("fails with pool exhaustion instead of waiting forever", func() {
		ctx := context.Background()

		// Hold the only connection open.
		rows, err := pool.Query(ctx, `SELECT 1`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		start := time.Now()
		_, err = pool.Exec(ctx, `SELECT 1`)
		Expect(errors.Is(err, store.ErrPoolExhausted)).To(BeTrue())
		Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
	})
})
