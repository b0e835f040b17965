// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

//go:build integration

package store_test

import (
	"context"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/pinvent/pinvent/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(migrator.Close)
	})

	It("starts at version 0 with everything pending", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		applied, pending, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeEmpty())
		Expect(pending).To(HaveLen(2))
	})

	It("applies all migrations", func() {
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed(), "second Up is a no-op")
	})

	It("steps down and up again", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(migrator.Up()).To(Succeed())
	})
})

var _ = Describe("Connect", func() {
	It("opens a pool against a migrated database", func(ctx SpecContext) {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())

		pool, err := store.Connect(ctx, store.PostgresConfig{URL: connStr, MaxConns: 2, Attempts: 3},
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)

		var n int
		Expect(pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n)).To(Succeed())
		Expect(pool.Config().MaxConns).To(Equal(int32(2)))
	})

	It("gives up on an unreachable server", func() {
		_, err := store.Connect(context.Background(),
			store.PostgresConfig{URL: "postgres://nobody@127.0.0.1:1/none", Attempts: 2},
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		Expect(err).To(HaveOccurred())
	})
})
