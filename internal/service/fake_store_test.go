package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"laikostar/internal/model"
	"laikostar/internal/store"

	"github.com/shopspring/decimal"
)

// fakeStore keeps ledger state in memory. Methods not overridden here panic
// through the embedded nil interface.
type fakeStore struct {
	Store

	mu            sync.Mutex
	nextID        int64
	users         map[int64]*model.User
	pending       map[string]*model.UserPending
	tasks         map[int64]*model.Task
	withdrawals   []*model.WithdrawalRequest
	taskTxs       []model.TaskTransaction
	commissions   []*model.PendingCommission
	flags         map[string]bool
	notifications []model.Notification
	payments      map[int64]*model.PaymentVerification
	usedPins      map[string]bool
	accounts      map[int64]*model.UserAccount
	plans         map[string]*model.Plan

	// conflicts makes the next n CompleteTask calls fail with ErrConflict.
	conflicts     int
	completeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[int64]*model.User{},
		pending:  map[string]*model.UserPending{},
		tasks:    map[int64]*model.Task{},
		flags:    map[string]bool{},
		payments: map[int64]*model.PaymentVerification{},
		usedPins: map[string]bool{},
		accounts: map[int64]*model.UserAccount{},
		plans:    map[string]*model.Plan{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addUser(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.id()
	if u.ReferralCode == "" {
		u.ReferralCode = u.Username
	}
	if u.DailyTaskLimit == 0 {
		u.DailyTaskLimit = 10
	}
	f.users[u.ID] = &u
	cp := u
	return &cp
}

func (f *fakeStore) addTask(t model.Task) *model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.id()
	f.tasks[t.ID] = &t
	cp := t
	return &cp
}

func (f *fakeStore) snapshot(username string) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, _ := f.byName(username)
	return *u
}

func (f *fakeStore) byName(username string) (*model.User, bool) {
	for _, u := range f.users {
		if u.Username == username {
			return u, true
		}
	}
	return nil, false
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName(username)
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == login || u.Email == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeStore) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UsernameExists(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byName(username)
	return ok, nil
}

func (f *fakeStore) GetPendingByPin(_ context.Context, pin string) (*model.UserPending, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[pin]
	if !ok {
		return nil, store.ErrPendingNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User, pin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pin != "" {
		if _, ok := f.pending[pin]; !ok {
			return store.ErrPendingNotFound
		}
	}
	for _, u := range f.users {
		if u.Email == user.Email || u.Username == user.Username {
			return store.ErrDuplicate
		}
	}
	if pin != "" {
		delete(f.pending, pin)
	}
	user.ID = f.id()
	user.CreatedAt = time.Now()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) ReferralLevels(_ context.Context, userID int64, depth int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	levels := make([]int, depth)
	frontier := map[int64]bool{userID: true}
	for level := 0; level < depth; level++ {
		next := map[int64]bool{}
		for _, u := range f.users {
			if u.ParentID != nil && frontier[*u.ParentID] {
				next[u.ID] = true
			}
		}
		levels[level] = len(next)
		frontier = next
	}
	return levels, nil
}

func (f *fakeStore) Upline(_ context.Context, userID int64, depth int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	cur := f.users[userID]
	for i := 0; i < depth && cur != nil && cur.ParentID != nil; i++ {
		parent := f.users[*cur.ParentID]
		out = append(out, *parent)
		cur = parent
	}
	return out, nil
}

func (f *fakeStore) GetTaskByID(_ context.Context, id int64) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (f *fakeStore) CompleteTask(_ context.Context, c store.Completion) (*store.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.conflicts > 0 {
		f.conflicts--
		return nil, store.ErrConflict
	}

	u := f.users[c.User.ID]
	if u.TasksCompletedToday != c.User.TasksCompletedToday ||
		!sameTime(u.LastCompletedDate, c.User.LastCompletedDate) ||
		c.NewCount > u.DailyTaskLimit {
		return nil, store.ErrConflict
	}

	at := c.CompletedAt
	u.TasksCompletedToday = c.NewCount
	u.LastCompletedDate = &at
	u.TotalPoints = u.TotalPoints.Add(c.Task.Reward)
	if c.ToBalance {
		u.Balance = u.Balance.Add(c.Task.Reward)
	} else {
		u.PendingCommission = u.PendingCommission.Add(c.Task.Reward)
		f.commissions = append(f.commissions, &model.PendingCommission{
			ID: f.id(), UserID: u.ID, TaskID: c.Task.ID, CommissionAmount: c.Task.Reward, ReleaseDate: c.ReleaseAt,
		})
	}
	for _, up := range c.Upline {
		a := f.users[up.UserID]
		if c.ToBalance {
			a.Balance = a.Balance.Add(up.Amount)
			continue
		}
		a.PendingCommission = a.PendingCommission.Add(up.Amount)
		f.commissions = append(f.commissions, &model.PendingCommission{
			ID: f.id(), UserID: a.ID, TaskID: c.Task.ID, CommissionAmount: up.Amount, ReleaseDate: c.ReleaseAt,
		})
	}
	f.tasks[c.Task.ID].CompletedCount++
	f.taskTxs = append(f.taskTxs, model.TaskTransaction{
		ID: f.id(), Username: u.Username, TaskID: c.Task.ID, TaskName: c.Task.Name, Amount: c.Task.Reward,
		Status: model.StatusPending, TransactionType: model.Credit, Description: "Completed task: " + c.Task.Name,
	})
	return &store.CompletionResult{
		TasksCompletedToday: u.TasksCompletedToday,
		PendingCommission:   u.PendingCommission,
		Balance:             u.Balance,
	}, nil
}

func (f *fakeStore) GetTaskTransactions(_ context.Context, username string) ([]model.TaskTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TaskTransaction
	for _, t := range f.taskTxs {
		if t.Username == username {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateWithdrawal(_ context.Context, w *model.WithdrawalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[w.UserID]
	if u.Balance.Sub(u.HeldBalance).LessThan(w.Amount) {
		return store.ErrInsufficientFunds
	}
	u.HeldBalance = u.HeldBalance.Add(w.Amount)
	w.ID = f.id()
	w.Status = model.StatusPending
	cp := *w
	f.withdrawals = append(f.withdrawals, &cp)
	return nil
}

func (f *fakeStore) GetWithdrawals(_ context.Context, userID int64) ([]model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.WithdrawalRequest{}
	for _, w := range f.withdrawals {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeStore) settle(id int64, status model.Status) (*model.WithdrawalRequest, error) {
	for _, w := range f.withdrawals {
		if w.ID != id {
			continue
		}
		if w.Status != model.StatusPending {
			return nil, store.ErrAlreadySettled
		}
		w.Status = status
		return w, nil
	}
	return nil, store.ErrAlreadySettled
}

func (f *fakeStore) ApproveWithdrawal(_ context.Context, id int64, remarks *string) (*model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.settle(id, model.StatusApproved)
	if err != nil {
		return nil, err
	}
	w.Remarks = remarks
	u := f.users[w.UserID]
	u.Balance = u.Balance.Sub(w.Amount)
	u.HeldBalance = u.HeldBalance.Sub(w.Amount)
	u.WithdrawalBalance = u.WithdrawalBalance.Add(w.Amount)
	cp := *w
	return &cp, nil
}

func (f *fakeStore) RejectWithdrawal(_ context.Context, id int64, remarks string) (*model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, err := f.settle(id, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	w.Remarks = &remarks
	u := f.users[w.UserID]
	u.HeldBalance = u.HeldBalance.Sub(w.Amount)
	cp := *w
	return &cp, nil
}

func (f *fakeStore) GetFlag(_ context.Context, key string, def bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.flags[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (f *fakeStore) SetFlag(_ context.Context, key string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[key] = on
	return nil
}

func (f *fakeStore) DueCommissions(_ context.Context, now time.Time, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*model.PendingCommission
	for _, c := range f.commissions {
		if c.ReleasedAt == nil && !c.ReleaseDate.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ReleaseDate.Before(due[j].ReleaseDate) })
	ids := []int64{}
	for i := 0; i < len(due) && i < limit; i++ {
		ids = append(ids, due[i].ID)
	}
	return ids, nil
}

func (f *fakeStore) ReleaseCommission(_ context.Context, id int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commissions {
		if c.ID != id || c.ReleasedAt != nil {
			continue
		}
		at := now
		c.ReleasedAt = &at
		u := f.users[c.UserID]
		u.PendingCommission = decimal.Max(u.PendingCommission.Sub(c.CommissionAmount), decimal.Zero)
		u.Balance = u.Balance.Add(c.CommissionAmount)
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p *model.PaymentVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id()
	p.Status = model.StatusPending
	if p.ReferrerPin != nil {
		f.usedPins[*p.ReferrerPin] = true
	}
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetPayment(_ context.Context, id int64) (*model.PaymentVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) PinInUse(_ context.Context, pin string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, pending := f.pending[pin]
	return f.usedPins[pin] || pending, nil
}

func (f *fakeStore) ApproveReferralPlan(_ context.Context, id int64) (*model.UserPending, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	if p.Status != model.StatusPending {
		return nil, store.ErrAlreadySettled
	}
	if p.ReferrerPin == nil {
		return nil, store.ErrMissingPin
	}
	p.Status = model.StatusApproved
	referrer, _ := f.byName(p.Username)
	pending := &model.UserPending{
		ID:          f.id(),
		PlanTerms:   p.Terms(),
		ReferrerPin: *p.ReferrerPin,
		ReferrerID:  referrer.ID,
	}
	f.pending[pending.ReferrerPin] = pending
	cp := *pending
	return &cp, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = f.id()
	n.Status = model.Unread
	if n.Type == "" {
		n.Type = model.NotifyMessage
	}
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeStore) GetNotifications(_ context.Context, username string) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Notification{}
	for _, n := range f.notifications {
		if n.Username == username {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) SetNotificationStatus(_ context.Context, username string, id int64, status model.NotificationStatus) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].Username == username {
			f.notifications[i].Status = status
			cp := f.notifications[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotificationNotFound
}

func (f *fakeStore) CreateAccount(_ context.Context, a *model.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAccounts(_ context.Context, username string) ([]model.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.UserAccount{}
	for _, a := range f.accounts {
		if a.Username == username {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAccount(_ context.Context, a *model.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.accounts[a.ID]
	if !ok || cur.Username != a.Username {
		return store.ErrAccountNotFound
	}
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, username string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.accounts[id]
	if !ok || cur.Username != username {
		return store.ErrAccountNotFound
	}
	delete(f.accounts, id)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) SendCredentials(to, _, username, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, to+":"+username)
	return nil
}

func (f *fakeStore) GetPlanByName(_ context.Context, name string) (*model.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[name]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreatePlan(_ context.Context, p *model.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plans[p.Name]; ok {
		return store.ErrDuplicate
	}
	p.ID = f.id()
	cp := *p
	f.plans[p.Name] = &cp
	return nil
}
