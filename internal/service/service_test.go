package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"laikostar/internal/config"
	"laikostar/internal/model"
	"laikostar/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday10 = time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)

func testPolicy() Policy {
	return Policy{
		CreditMode:      config.CreditPending,
		CommissionHold:  24 * time.Hour,
		ReferralDepth:   2,
		DailyTaskLimit:  10,
		Location:        time.UTC,
		WithdrawEnabled: true,
		WithdrawFrom:    0,
		WithdrawTo:      24,
		TokenSecret:     "test-secret",
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newLedger(t *testing.T, p Policy) (*Ledger, *fakeStore, *fakeNotifier, *clock) {
	t.Helper()
	fs := newFakeStore()
	n := &fakeNotifier{}
	c := &clock{t: monday10}
	return New(fs, n, p).WithClock(c.now), fs, n, c
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("direct signup stores only a hash", func(t *testing.T) {
		l, fs, n, _ := newLedger(t, testPolicy())
		creds, err := l.Register(ctx, Registration{FullName: "Ann", Email: "ann@example.com", PhoneNumber: "123"})
		require.NoError(t, err)
		assert.Regexp(t, `^user\d{4}$`, creds.Username)
		assert.Len(t, creds.Password, passwordLength)
		assert.NoError(t, creds.NotificationErr)

		u := fs.snapshot(creds.Username)
		assert.NotEqual(t, creds.Password, u.PasswordHash)
		assert.Nil(t, u.ParentID)
		assert.Equal(t, 10, u.DailyTaskLimit)
		assert.Equal(t, creds.Username, u.ReferralCode)
		assert.True(t, l.VerifyCredential(ctx, "ann@example.com", creds.Password))
		assert.False(t, l.VerifyCredential(ctx, creds.Username, "wrong"))
		assert.Equal(t, []string{"ann@example.com:" + creds.Username}, n.sent)
	})

	t.Run("pin applies plan terms and is consumed", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		a := fs.addUser(model.User{Username: "alice", Email: "a@example.com"})
		fs.pending["PIN123"] = &model.UserPending{
			PlanTerms: model.PlanTerms{
				PlanName: "Gold", RefPer: dec("10"), RefParentPer: dec("5"), AdvancePoints: dec("20"),
			},
			ReferrerPin: "PIN123",
			ReferrerID:  a.ID,
		}

		creds, err := l.Register(ctx, Registration{FullName: "Bob", Email: "b@example.com", PhoneNumber: "1", ReferrerPin: "PIN123"})
		require.NoError(t, err)

		b := fs.snapshot(creds.Username)
		require.NotNil(t, b.ParentID)
		assert.Equal(t, a.ID, *b.ParentID)
		assert.Equal(t, "Gold", *b.Plan)
		assert.True(t, b.RefPer.Equal(dec("10")))
		assert.True(t, b.AdvancePoints.Equal(dec("20")))
		assert.NotContains(t, fs.pending, "PIN123")

		_, err = l.Register(ctx, Registration{FullName: "Eve", Email: "e@example.com", PhoneNumber: "1", ReferrerPin: "PIN123"})
		assert.ErrorIs(t, err, ErrInvalidReferralCode)
	})

	t.Run("existing username works as referral code", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		a := fs.addUser(model.User{Username: "alice", Email: "a@example.com"})
		creds, err := l.Register(ctx, Registration{FullName: "Bob", Email: "b@example.com", PhoneNumber: "1", ReferrerPin: "alice"})
		require.NoError(t, err)
		b := fs.snapshot(creds.Username)
		assert.Equal(t, a.ID, *b.ParentID)
		assert.Equal(t, "alice", *b.ReferrerCode)
		assert.Nil(t, b.Plan)
	})

	t.Run("unknown pin creates nothing", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		_, err := l.Register(ctx, Registration{FullName: "Bob", Email: "b@example.com", PhoneNumber: "1", ReferrerPin: "nope"})
		assert.ErrorIs(t, err, ErrInvalidReferralCode)
		assert.Empty(t, fs.users)
	})

	t.Run("duplicate email", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Email: "a@example.com"})
		_, err := l.Register(ctx, Registration{FullName: "A", Email: "a@example.com", PhoneNumber: "1"})
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	})

	t.Run("missing fields", func(t *testing.T) {
		l, _, _, _ := newLedger(t, testPolicy())
		_, err := l.Register(ctx, Registration{Email: "a@example.com"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("mail failure keeps the account", func(t *testing.T) {
		l, fs, n, _ := newLedger(t, testPolicy())
		n.err = errors.New("queue full")
		creds, err := l.Register(ctx, Registration{FullName: "Ann", Email: "ann@example.com", PhoneNumber: "1"})
		require.NoError(t, err)
		assert.ErrorIs(t, creds.NotificationErr, ErrDependencyFailure)
		_, ok := fs.byName(creds.Username)
		assert.True(t, ok)
	})
}

func TestCompleteTask(t *testing.T) {
	ctx := context.Background()

	t.Run("credits pending commission and records a transaction", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob", DailyTaskLimit: 10})
		link := "https://example.com/watch"
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("5"), RedirectLink: &link})

		res, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.TasksCompletedToday)
		assert.True(t, res.PendingBalance.Equal(dec("5")))
		assert.Equal(t, &link, res.RedirectLink)

		bob := fs.snapshot("bob")
		assert.True(t, bob.Balance.IsZero())
		assert.EqualValues(t, 1, fs.tasks[task.ID].CompletedCount)
		require.Len(t, fs.taskTxs, 1)
		assert.Equal(t, model.StatusPending, fs.taskTxs[0].Status)
		require.Len(t, fs.commissions, 1)
		assert.Equal(t, monday10.Add(24*time.Hour), fs.commissions[0].ReleaseDate)
	})

	t.Run("balance credit mode", func(t *testing.T) {
		p := testPolicy()
		p.CreditMode = config.CreditBalance
		l, fs, _, _ := newLedger(t, p)
		fs.addUser(model.User{Username: "bob"})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("5")})

		res, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		assert.True(t, res.Balance.Equal(dec("5")))
		assert.True(t, res.PendingBalance.IsZero())
		assert.Empty(t, fs.commissions)
	})

	t.Run("limit and daily reset", func(t *testing.T) {
		l, fs, _, c := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob", DailyTaskLimit: 2})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("1")})

		for i := 0; i < 2; i++ {
			_, err := l.CompleteTask(ctx, "bob", task.ID)
			require.NoError(t, err)
		}
		_, err := l.CompleteTask(ctx, "bob", task.ID)
		assert.ErrorIs(t, err, ErrLimitExceeded)
		assert.Equal(t, 2, fs.snapshot("bob").TasksCompletedToday)

		c.set(monday10.Add(24 * time.Hour))
		res, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.TasksCompletedToday)
	})

	t.Run("reset uses the policy location", func(t *testing.T) {
		p := testPolicy()
		p.Location = time.FixedZone("UTC+5", 5*3600)
		l, fs, _, c := newLedger(t, p)
		last := time.Date(2024, time.March, 4, 18, 0, 0, 0, time.UTC) // 23:00 local
		fs.addUser(model.User{Username: "bob", DailyTaskLimit: 1, TasksCompletedToday: 1, LastCompletedDate: &last})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("1")})

		c.set(time.Date(2024, time.March, 4, 19, 30, 0, 0, time.UTC)) // 00:30 next day local
		res, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.TasksCompletedToday)
	})

	t.Run("same task twice credits twice", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob"})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("2.5")})
		_, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		res, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		assert.True(t, res.PendingBalance.Equal(dec("5")))
	})

	t.Run("upline commission", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		g := fs.addUser(model.User{Username: "grand"})
		p := fs.addUser(model.User{Username: "parent", ParentID: &g.ID})
		fs.addUser(model.User{Username: "child", ParentID: &p.ID, RefPer: dec("10"), RefParentPer: dec("5")})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("20")})

		_, err := l.CompleteTask(ctx, "child", task.ID)
		require.NoError(t, err)
		assert.True(t, fs.snapshot("parent").PendingCommission.Equal(dec("2")))
		assert.True(t, fs.snapshot("grand").PendingCommission.Equal(dec("1")))
	})

	t.Run("unknown task or user", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob"})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("1")})
		_, err := l.CompleteTask(ctx, "bob", 999)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = l.CompleteTask(ctx, "ghost", task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("conflicts are retried", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob"})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("1")})
		fs.conflicts = maxCompletionAttempts - 1

		res, err := l.CompleteTask(ctx, "bob", task.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.TasksCompletedToday)
		assert.Equal(t, maxCompletionAttempts, fs.completeCalls)
	})

	t.Run("persistent conflict gives up", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob"})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("1")})
		fs.conflicts = 100

		_, err := l.CompleteTask(ctx, "bob", task.ID)
		assert.ErrorIs(t, err, ErrBusy)
		assert.Equal(t, 0, fs.snapshot("bob").TasksCompletedToday)
	})

	t.Run("concurrent completions never pass the limit", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "bob", DailyTaskLimit: 10})
		task := fs.addTask(model.Task{Name: "Watch", Reward: dec("1")})

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok, limited := 0, 0
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.CompleteTask(ctx, "bob", task.ID)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errors.Is(err, ErrLimitExceeded) {
					limited++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, ok)
		assert.Equal(t, 15, limited)
		bob := fs.snapshot("bob")
		assert.Equal(t, 10, bob.TasksCompletedToday)
		assert.True(t, bob.PendingCommission.Equal(dec("10")))
		assert.Zero(t, l.locks.size())
	})
}

func TestRequestWithdrawal(t *testing.T) {
	ctx := context.Background()
	valid := WithdrawalRequest{Amount: dec("50"), Gateway: "easypaisa", AccountNumber: "03001234567", AccountTitle: "Alice"}

	t.Run("holds without touching balance", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})

		w, err := l.RequestWithdrawal(ctx, "alice", valid)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, w.Status)
		a := fs.snapshot("alice")
		assert.True(t, a.Balance.Equal(dec("100")))
		assert.True(t, a.HeldBalance.Equal(dec("50")))
	})

	t.Run("insufficient balance creates nothing", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})
		req := valid
		req.Amount = dec("150")
		_, err := l.RequestWithdrawal(ctx, "alice", req)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Empty(t, fs.withdrawals)
	})

	t.Run("held amount is not available twice", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})
		req := valid
		req.Amount = dec("60")

		var wg sync.WaitGroup
		errs := make(chan error, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.RequestWithdrawal(ctx, "alice", req)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		}
		assert.Equal(t, 1, succeeded)
		assert.True(t, fs.snapshot("alice").HeldBalance.Equal(dec("60")))
	})

	t.Run("disabled flag", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})
		require.NoError(t, l.SetWithdrawalsEnabled(ctx, false))
		_, err := l.RequestWithdrawal(ctx, "alice", valid)
		assert.ErrorIs(t, err, ErrWithdrawalsDisabled)
	})

	t.Run("window closed", func(t *testing.T) {
		p := testPolicy()
		p.WithdrawDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday}
		p.WithdrawFrom, p.WithdrawTo = 10, 22
		l, fs, _, c := newLedger(t, p)
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})

		_, err := l.RequestWithdrawal(ctx, "alice", valid)
		require.NoError(t, err)

		c.set(monday10.Add(12 * time.Hour)) // 22:30
		_, err = l.RequestWithdrawal(ctx, "alice", valid)
		assert.ErrorIs(t, err, ErrWithdrawalWindowClosed)

		c.set(monday10.AddDate(0, 0, 4)) // Friday
		_, err = l.RequestWithdrawal(ctx, "alice", valid)
		assert.ErrorIs(t, err, ErrWithdrawalWindowClosed)
	})

	t.Run("validation", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})

		zero := valid
		zero.Amount = decimal.Zero
		_, err := l.RequestWithdrawal(ctx, "alice", zero)
		assert.ErrorIs(t, err, ErrValidation)

		noTitle := valid
		noTitle.AccountTitle = ""
		_, err = l.RequestWithdrawal(ctx, "alice", noTitle)
		assert.ErrorIs(t, err, ErrValidation)

		card := valid
		card.Gateway = GatewayCard
		card.AccountNumber = "4111111111111112"
		_, err = l.RequestWithdrawal(ctx, "alice", card)
		assert.ErrorIs(t, err, ErrValidation)

		card.AccountNumber = "4111111111111111"
		_, err = l.RequestWithdrawal(ctx, "alice", card)
		assert.NoError(t, err)
	})

	t.Run("approve and reject settle the hold", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Balance: dec("100")})
		w1, err := l.RequestWithdrawal(ctx, "alice", valid)
		require.NoError(t, err)
		w2, err := l.RequestWithdrawal(ctx, "alice", valid)
		require.NoError(t, err)

		_, err = l.ApproveWithdrawal(ctx, w1.ID, "")
		require.NoError(t, err)
		_, err = l.RejectWithdrawal(ctx, w2.ID, "wrong account")
		require.NoError(t, err)

		a := fs.snapshot("alice")
		assert.True(t, a.Balance.Equal(dec("50")))
		assert.True(t, a.HeldBalance.IsZero())
		assert.True(t, a.WithdrawalBalance.Equal(dec("50")))
		assert.Len(t, fs.notifications, 2)

		_, err = l.ApproveWithdrawal(ctx, w1.ID, "")
		assert.ErrorIs(t, err, ErrAlreadySettled)
	})
}

func TestCountReferrals(t *testing.T) {
	ctx := context.Background()
	l, fs, _, _ := newLedger(t, testPolicy())
	root := fs.addUser(model.User{Username: "root"})
	for _, name := range []string{"d1", "d2"} {
		d := fs.addUser(model.User{Username: name, ParentID: &root.ID})
		fs.addUser(model.User{Username: name + "-child", ParentID: &d.ID})
	}

	counts, err := l.CountReferrals(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.DirectCount)
	assert.Equal(t, 2, counts.IndirectCount)

	leaf, err := l.CountReferrals(ctx, "d1-child")
	require.NoError(t, err)
	assert.Zero(t, leaf.DirectCount)
	assert.Zero(t, leaf.IndirectCount)

	_, err = l.CountReferrals(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	l, fs, _, _ := newLedger(t, testPolicy())
	hash, err := HashPassword("old-secret")
	require.NoError(t, err)
	fs.addUser(model.User{Username: "alice", Email: "a@example.com", PasswordHash: hash})

	err = l.ChangePassword(ctx, "alice", PasswordChange{CurrentPassword: "bad", NewPassword: "new-secret"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	err = l.ChangePassword(ctx, "alice", PasswordChange{CurrentPassword: "old-secret", NewPassword: "new-secret"})
	require.NoError(t, err)
	assert.True(t, l.VerifyCredential(ctx, "alice", "new-secret"))
	assert.False(t, l.VerifyCredential(ctx, "alice", "old-secret"))

	token, err := l.Login(ctx, "a@example.com", "new-secret")
	require.NoError(t, err)
	username, err := l.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	_, err = l.Login(ctx, "alice", "old-secret")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestReleaseCommissions(t *testing.T) {
	ctx := context.Background()
	l, fs, _, c := newLedger(t, testPolicy())
	fs.addUser(model.User{Username: "bob"})
	task := fs.addTask(model.Task{Name: "Watch", Reward: dec("5")})
	_, err := l.CompleteTask(ctx, "bob", task.ID)
	require.NoError(t, err)

	n, err := l.ReleaseCommissions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.set(monday10.Add(25 * time.Hour))
	n, err = l.ReleaseCommissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bob := fs.snapshot("bob")
	assert.True(t, bob.PendingCommission.IsZero())
	assert.True(t, bob.Balance.Equal(dec("5")))

	n, err = l.ReleaseCommissions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReferralPlanFlow(t *testing.T) {
	ctx := context.Background()
	l, fs, _, _ := newLedger(t, testPolicy())
	fs.addUser(model.User{Username: "alice", Email: "a@example.com"})
	_, err := l.CreatePlan(ctx, NewPlan{Name: "Gold", Price: dec("1000"), AdvancePoints: dec("20"), ParentPer: dec("10"), GrandParentPer: dec("5")})
	require.NoError(t, err)

	p, err := l.SubmitPayment(ctx, "alice", PaymentUpload{
		Kind:              model.KindReferralPlan,
		TransactionID:     "TX1",
		TransactionAmount: dec("1000"),
		Gateway:           "jazzcash",
		ReceiptPath:       "receipts/tx1.png",
		PlanName:          "Gold",
	})
	require.NoError(t, err)
	require.NotNil(t, p.ReferrerPin)
	assert.Len(t, *p.ReferrerPin, pinLength)
	assert.True(t, p.RefPer.Equal(dec("10")))
	assert.True(t, p.RefParentPer.Equal(dec("5")))
	assert.True(t, p.PlanPrice.Equal(dec("1000")))

	_, err = l.ApprovePayment(ctx, 999, decimal.Zero)
	assert.ErrorIs(t, err, ErrNotFound)

	approval, err := l.ApprovePayment(ctx, p.ID, decimal.Zero)
	require.NoError(t, err)
	pending := approval.Pending
	require.NotNil(t, pending)
	assert.Equal(t, *p.ReferrerPin, pending.ReferrerPin)

	creds, err := l.Register(ctx, Registration{FullName: "Bob", Email: "b@example.com", PhoneNumber: "1", ReferrerPin: pending.ReferrerPin})
	require.NoError(t, err)
	bob := fs.snapshot(creds.Username)
	assert.Equal(t, "Gold", *bob.Plan)
	assert.True(t, bob.RefPer.Equal(dec("10")))

	_, err = l.ApproveReferralPlan(ctx, p.ID)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	_, err = l.SubmitPayment(ctx, "alice", PaymentUpload{Kind: "other", TransactionID: "x", Gateway: "g", ReceiptPath: "r", TransactionAmount: dec("1")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitPaymentPlanTerms(t *testing.T) {
	ctx := context.Background()
	upload := func(plan string) PaymentUpload {
		return PaymentUpload{
			Kind:              model.KindReferralPlan,
			TransactionID:     "TX1",
			TransactionAmount: dec("1000"),
			Gateway:           "bank",
			ReceiptPath:       "referral_plan/tx1.png",
			PlanName:          plan,
		}
	}

	t.Run("unknown plan", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.addUser(model.User{Username: "alice", Email: "a@example.com"})
		_, err := l.SubmitPayment(ctx, "alice", upload("NoSuchPlan"))
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, fs.payments)
	})

	t.Run("missing plan name", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		_, err := l.SubmitPayment(ctx, "alice", upload("  "))
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, fs.payments)
	})

	t.Run("stored plan with percentages out of range", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		fs.plans["Broken"] = &model.Plan{Name: "Broken", Price: dec("10"), ParentPer: dec("500"), GrandParentPer: dec("900")}
		_, err := l.SubmitPayment(ctx, "alice", upload("Broken"))
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, fs.payments)
	})

	t.Run("create plan rejects percentages out of range", func(t *testing.T) {
		l, fs, _, _ := newLedger(t, testPolicy())
		for _, req := range []NewPlan{
			{Name: "A", Price: dec("10"), ParentPer: dec("500")},
			{Name: "B", Price: dec("10"), GrandParentPer: dec("900")},
			{Name: "C", Price: dec("10"), ParentPer: dec("-1")},
			{Name: "D", Price: dec("10"), DirectPoint: dec("-1")},
		} {
			_, err := l.CreatePlan(ctx, req)
			assert.ErrorIs(t, err, ErrValidation, req.Name)
		}
		assert.Empty(t, fs.plans)

		_, err := l.CreatePlan(ctx, NewPlan{Name: "Max", Price: dec("10"), ParentPer: dec("100"), GrandParentPer: dec("0")})
		assert.NoError(t, err)
	})
}

func TestApproveReferralPlanWithoutPin(t *testing.T) {
	ctx := context.Background()
	l, fs, _, _ := newLedger(t, testPolicy())
	fs.addUser(model.User{Username: "alice", Email: "a@example.com"})
	fs.payments[50] = &model.PaymentVerification{ID: 50, Kind: model.KindReferralPlan, Username: "alice", Status: model.StatusPending}

	_, err := l.ApprovePayment(ctx, 50, decimal.Zero)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrMissingPin)
	assert.NotErrorIs(t, err, ErrInvalidReferralCode)
}

// A holds balance 100 and a pin; B joins through it, completes a task, then
// A withdraws.
func TestReferralScenario(t *testing.T) {
	ctx := context.Background()
	l, fs, _, _ := newLedger(t, testPolicy())
	a := fs.addUser(model.User{Username: "alice", Email: "a@example.com", Balance: dec("100")})
	fs.pending["PIN123"] = &model.UserPending{PlanTerms: model.PlanTerms{PlanName: "Basic"}, ReferrerPin: "PIN123", ReferrerID: a.ID}

	creds, err := l.Register(ctx, Registration{FullName: "Bob", Email: "b@example.com", PhoneNumber: "1", ReferrerPin: "PIN123"})
	require.NoError(t, err)
	b := fs.snapshot(creds.Username)
	assert.Equal(t, a.ID, *b.ParentID)

	counts, err := l.CountReferrals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.DirectCount)

	task := fs.addTask(model.Task{Name: "T", Reward: dec("5")})
	res, err := l.CompleteTask(ctx, creds.Username, task.ID)
	require.NoError(t, err)
	assert.True(t, res.PendingBalance.Equal(dec("5")))
	assert.Equal(t, 1, res.TasksCompletedToday)
	txs, err := l.TaskTransactions(ctx, creds.Username)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.StatusPending, txs[0].Status)

	req := WithdrawalRequest{Amount: dec("150"), Gateway: "bank", AccountNumber: "1", AccountTitle: "Alice"}
	_, err = l.RequestWithdrawal(ctx, "alice", req)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	req.Amount = dec("50")
	w, err := l.RequestWithdrawal(ctx, "alice", req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, w.Status)
	assert.True(t, fs.snapshot("alice").Balance.Equal(dec("100")))
}

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(store.ErrTaskNotFound), ErrNotFound)
	assert.ErrorIs(t, translate(store.ErrTaskNotFound), store.ErrTaskNotFound)
	assert.ErrorIs(t, translate(store.ErrDuplicate), ErrDuplicateIdentity)
	assert.ErrorIs(t, translate(store.ErrInsufficientFunds), ErrInsufficientBalance)
	assert.ErrorIs(t, translate(store.ErrPendingNotFound), ErrInvalidReferralCode)
	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
	assert.NoError(t, translate(nil))
}

func TestReportUndelivered(t *testing.T) {
	l, fs, _, _ := newLedger(t, testPolicy())
	fs.addUser(model.User{Username: "user1000", Email: "a@example.com"})

	l.ReportUndelivered(context.Background(), "a@example.com")
	l.ReportUndelivered(context.Background(), "nobody@example.com")

	require.Len(t, fs.notifications, 1)
	assert.Equal(t, "user1000", fs.notifications[0].Username)
	assert.Equal(t, model.NotifyAlert, fs.notifications[0].Type)
}

func TestAccounts(t *testing.T) {
	l, _, _, _ := newLedger(t, testPolicy())
	ctx := context.Background()
	in := AccountInput{Gateway: "bank", AccountNumber: "PK00123", AccountTitle: "Ann"}

	a, err := l.AddAccount(ctx, "user1000", in)
	require.NoError(t, err)

	_, err = l.AddAccount(ctx, "user1000", AccountInput{Gateway: "bank"})
	assert.ErrorIs(t, err, ErrValidation)

	in.AccountTitle = "Ann Lee"
	edited, err := l.EditAccount(ctx, "user1000", a.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", edited.AccountTitle)

	_, err = l.EditAccount(ctx, "user2000", a.ID, in)
	assert.ErrorIs(t, err, ErrNotFound, "accounts are owner scoped")

	assert.ErrorIs(t, l.RemoveAccount(ctx, "user2000", a.ID), ErrNotFound)
	require.NoError(t, l.RemoveAccount(ctx, "user1000", a.ID))

	accounts, err := l.Accounts(ctx, "user1000")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestNotifications(t *testing.T) {
	l, fs, _, _ := newLedger(t, testPolicy())
	ctx := context.Background()
	fs.addUser(model.User{Username: "user1000", Email: "a@example.com"})

	_, err := l.Notify(ctx, NotificationInput{Username: "ghost", Message: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := l.Notify(ctx, NotificationInput{Username: "user1000", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.NotifyMessage, n.Type)
	assert.Equal(t, model.Unread, n.Status)

	_, err = l.MarkNotification(ctx, "user1000", n.ID, "archived")
	assert.ErrorIs(t, err, ErrValidation)

	marked, err := l.MarkNotification(ctx, "user1000", n.ID, model.Read)
	require.NoError(t, err)
	assert.Equal(t, model.Read, marked.Status)

	_, err = l.MarkNotification(ctx, "user2000", n.ID, model.Read)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := l.Notifications(ctx, "user1000")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
