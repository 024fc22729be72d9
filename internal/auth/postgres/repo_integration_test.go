// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
	})

	It("creates and looks up users", func() {
		created, err := users.Create(ctx, auth.NewUser{Name: "alice", Email: "a@x.com", PasswordHash: "h"})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).To(BeNumerically(">", 0))

		byID, err := users.GetByID(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Email).To(Equal("a@x.com"))

		byEmail, err := users.GetByEmail(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(created.ID))

		_, err = users.GetByEmail(ctx, "A@X.COM")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue(), "email matching is case-sensitive")
	})

	It("enforces email uniqueness among live users only", func() {
		first, err := users.Create(ctx, auth.NewUser{Name: "alice", Email: "a@x.com", PasswordHash: "h"})
		Expect(err).NotTo(HaveOccurred())

		_, err = users.Create(ctx, auth.NewUser{Name: "alice2", Email: "a@x.com", PasswordHash: "h"})
		Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())

		Expect(users.SoftDelete(ctx, first.ID)).To(Succeed())
		_, err = users.GetByID(ctx, first.ID)
		Expect(errors.Is(err, auth.ErrUserNotFound)).To(BeTrue())

		second, err := users.Create(ctx, auth.NewUser{Name: "alice3", Email: "a@x.com", PasswordHash: "h"})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.ID).NotTo(Equal(first.ID))

		list, err := users.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
	})

	It("admits exactly one of concurrent inserts with the same email", func() {
		const n = 10
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, errs[i] = users.Create(ctx, auth.NewUser{Name: "racer", Email: "race@x.com", PasswordHash: "h"})
			}()
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		}
		Expect(ok).To(Equal(1))
	})

	It("updates profile fields and avatar", func() {
		u, err := users.Create(ctx, auth.NewUser{Name: "alice", Email: "a@x.com", PasswordHash: "h"})
		Expect(err).NotTo(HaveOccurred())

		name := "alice smith"
		updated, err := users.Update(ctx, u.ID, auth.UserUpdate{Name: &name})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Name).To(Equal(name))
		Expect(updated.Email).To(Equal("a@x.com"))

		Expect(users.SetAvatar(ctx, u.ID, auth.AvatarKey(u.ID))).To(Succeed())
		got, err := users.GetByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Avatar).To(HaveValue(Equal(auth.AvatarKey(u.ID))))
	})

	It("hard deletes a user and cascades its sessions", func() {
		sessions := postgres.NewSessionRepository(testPool)
		u, err := users.Create(ctx, auth.NewUser{Name: "alice", Email: "a@x.com", PasswordHash: "h"})
		Expect(err).NotTo(HaveOccurred())
		s, err := sessions.Create(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())

		Expect(users.Delete(ctx, u.ID)).To(Succeed())
		exists, err := sessions.Exists(ctx, u.ID, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		Expect(errors.Is(users.Delete(ctx, u.ID), auth.ErrUserNotFound)).To(BeTrue())
	})
})

var _ = Describe("SessionRepository", func() {
	var (
		ctx      context.Context
		sessions *postgres.SessionRepository
		userID   int64
	)

	BeforeEach(func() {
		ctx = context.Background()
		sessions = postgres.NewSessionRepository(testPool)
		u, err := postgres.NewUserRepository(testPool).Create(ctx, auth.NewUser{Name: "alice", Email: "a@x.com", PasswordHash: "h"})
		Expect(err).NotTo(HaveOccurred())
		userID = u.ID
	})

	It("keeps concurrent sessions independent", func() {
		s1, err := sessions.Create(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		s2, err := sessions.Create(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		Expect(s1.ID).NotTo(Equal(s2.ID))

		Expect(sessions.Delete(ctx, userID, s1.ID)).To(Succeed())

		exists, err := sessions.Exists(ctx, userID, s1.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
		exists, err = sessions.Exists(ctx, userID, s2.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())

		err = sessions.Delete(ctx, userID, s1.ID)
		Expect(errors.Is(err, auth.ErrSessionNotFound)).To(BeTrue())
	})

	It("does not match a session id under another user", func() {
		s, err := sessions.Create(ctx, userID)
		Expect(err).NotTo(HaveOccurred())

		exists, err := sessions.Exists(ctx, userID+1, s.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		exists, err = sessions.Exists(ctx, userID, uuid.New())
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("deletes every session of a user", func() {
		for range 3 {
			_, err := sessions.Create(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
		}
		n, err := sessions.DeleteByUser(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(3)))
	})
})
