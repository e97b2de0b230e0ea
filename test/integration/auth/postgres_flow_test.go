// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/auth/postgres"
)

// outbox captures reset notifications in place of mail delivery.
type outbox struct {
	mu   sync.Mutex
	sent []auth.ResetNotification
}

func (o *outbox) NotifyReset(_ context.Context, n auth.ResetNotification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) lastSecret() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	Expect(o.sent).NotTo(BeEmpty())
	return o.sent[len(o.sent)-1].Secret
}

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateUsers(ctx, env.pool)
		repo = postgres.NewUserRepository(env.pool)
	})

	It("rejects a second account differing only in case", func() {
		first, err := auth.NewUser("Alice", "alice@example.com", "h1")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, first)).To(Succeed())

		second, err := auth.NewUser("Other", "ALICE@example.com", "h2")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, second)).To(MatchError(auth.ErrDuplicateEmail))

		got, err := repo.GetByEmail(ctx, "Alice@Example.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(first.ID))
		Expect(got.PasswordHash).To(Equal("h1"))
	})

	It("rejects a half-set reset pair at the schema level", func() {
		u, err := auth.NewUser("Alice", "alice@example.com", "h1")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, u)).To(Succeed())

		_, err = env.pool.Exec(ctx, `UPDATE users SET reset_token_hash = 'x' WHERE id = $1`, u.ID.String())
		Expect(err).To(HaveOccurred())
	})

	It("lets exactly one concurrent CompleteReset win", func() {
		u, err := auth.NewUser("Alice", "alice@example.com", "h1")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, u)).To(Succeed())

		now := time.Now().UTC()
		Expect(repo.SetResetToken(ctx, u.ID, "digest", now.Add(time.Minute))).To(Succeed())

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if err := repo.CompleteReset(ctx, u.ID, "digest", "new-hash", now); err == nil {
					wins.Add(1)
				} else {
					Expect(err).To(MatchError(auth.ErrResetNotPending))
				}
			}()
		}
		wg.Wait()
		Expect(wins.Load()).To(Equal(int32(1)))

		got, err := repo.GetByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("new-hash"))
		Expect(got.PendingReset).To(BeNil())
	})

	It("sweeps only expired resets", func() {
		now := time.Now().UTC()
		for i, offset := range []time.Duration{-time.Hour, time.Hour} {
			u, err := auth.NewUser("User", string(rune('a'+i))+"@example.com", "h")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, u)).To(Succeed())
			Expect(repo.SetResetToken(ctx, u.ID, string(rune('a'+i)), now.Add(offset))).To(Succeed())
		}

		sweeper, err := auth.NewResetSweeper(repo, auth.WithSweepClock(func() time.Time { return now }))
		Expect(err).NotTo(HaveOccurred())
		cleared, err := sweeper.SweepOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cleared).To(Equal(int64(1)))

		_, err = repo.GetByResetDigest(ctx, "a")
		Expect(err).To(MatchError(auth.ErrNotFound))
		_, err = repo.GetByResetDigest(ctx, "b")
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Auth flow against PostgreSQL", func() {
	var (
		ctx  context.Context
		svc  *auth.Service
		mail *outbox
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateUsers(ctx, env.pool)
		mail = &outbox{}

		minter, err := auth.NewTokenMinter([]byte("0123456789abcdef0123456789abcdef"))
		Expect(err).NotTo(HaveOccurred())
		hasher := auth.NewArgon2idHasherWithParams(auth.Argon2idParams{Memory: 8 * 1024})
		svc, err = auth.NewAuthService(postgres.NewUserRepository(env.pool), hasher, minter, mail)
		Expect(err).NotTo(HaveOccurred())
	})

	It("signs up, resets the password once, and rejects reuse", func() {
		session, err := svc.Signup(ctx, "Alice", "a@x.com", "Secr3t!")
		Expect(err).NotTo(HaveOccurred())

		me, err := svc.CurrentUser(ctx, session.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(me.Email).To(Equal("a@x.com"))

		resp, err := svc.RequestPasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message).To(Equal(auth.MessageResetRequested))

		secret := mail.lastSecret()
		Expect(svc.ConfirmPasswordReset(ctx, secret, "N3w!")).To(Succeed())

		_, err = svc.Login(ctx, "a@x.com", "Secr3t!")
		Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidCredentials))

		_, err = svc.Login(ctx, "a@x.com", "N3w!")
		Expect(err).NotTo(HaveOccurred())

		err = svc.ConfirmPasswordReset(ctx, secret, "Other!")
		Expect(auth.ErrorCode(err)).To(Equal(auth.CodeResetTokenInvalid))
		Expect(auth.PublicMessage(err)).To(Equal(auth.MessageResetTokenInvalid))
	})

	It("answers unknown reset requests exactly like known ones", func() {
		_, err := svc.Signup(ctx, "Alice", "a@x.com", "Secr3t!")
		Expect(err).NotTo(HaveOccurred())

		known, err := svc.RequestPasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		unknown, err := svc.RequestPasswordReset(ctx, "nobody@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(unknown).To(Equal(known))
	})

	It("accepts exactly one of many concurrent confirms", func() {
		_, err := svc.Signup(ctx, "Alice", "a@x.com", "Secr3t!")
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.RequestPasswordReset(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		secret := mail.lastSecret()

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if err := svc.ConfirmPasswordReset(ctx, secret, "N3w!"); err == nil {
					wins.Add(1)
				} else {
					Expect(auth.ErrorCode(err)).To(Equal(auth.CodeResetTokenInvalid))
				}
			}()
		}
		wg.Wait()
		Expect(wins.Load()).To(Equal(int32(1)))
	})
})
