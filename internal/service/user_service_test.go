package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"referral-service/internal/domain"
	"referral-service/internal/repo"
)

func newTestService(t *testing.T) (*UserService, *repo.MemoryStore) {
	t.Helper()
	store := repo.NewMemoryStore()
	svc := NewUserService(store, repo.NewMemorySequence(), NewCodeGenerator(8, 20), nil)
	return svc, store
}

func mustSignup(t *testing.T, svc *UserService, email, code string) *domain.User {
	t.Helper()
	u, err := svc.Signup(SignupInput{
		Name:         "tester",
		Email:        email,
		Password:     "secret123",
		ReferralCode: code,
	})
	require.NoError(t, err)
	return u
}

func TestSignupAssignsNumberAndCode(t *testing.T) {
	svc, _ := newTestService(t)

	a := mustSignup(t, svc, "a@example.com", "")
	b := mustSignup(t, svc, "b@example.com", "")

	require.Equal(t, int64(1), a.UserNumber)
	require.Equal(t, int64(2), b.UserNumber)
	require.Len(t, a.ReferralCode, 8)
	require.NotEqual(t, a.ReferralCode, b.ReferralCode)
	require.False(t, a.ProfileCompleted)
	require.Nil(t, a.ReferredBy)
	require.Empty(t, a.Referrals)
	require.NotEmpty(t, a.ID)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, store := newTestService(t)

	mustSignup(t, svc, "dup@example.com", "")
	_, err := svc.Signup(SignupInput{Name: "x", Email: "dup@example.com", Password: "pw123456"})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)

	// 邮箱大小写归一后同样算重复
	_, err = svc.Signup(SignupInput{Name: "x", Email: "DUP@example.com", Password: "pw123456"})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)

	all, err := store.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSignupInvalidReferralCode(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.Signup(SignupInput{
		Name: "x", Email: "x@example.com", Password: "pw123456",
		ReferralCode: "NOPE0000",
	})
	require.ErrorIs(t, err, domain.ErrInvalidReferralCode)

	// 整个注册回绝，不能留下半个用户
	all, err := store.FindAll()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSignupLinksReferrerBothWays(t *testing.T) {
	svc, store := newTestService(t)

	a := mustSignup(t, svc, "a@example.com", "")
	b := mustSignup(t, svc, "b@example.com", a.ReferralCode)

	require.NotNil(t, b.ReferredBy)
	require.Equal(t, a.ID, *b.ReferredBy)

	got, err := store.FindByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.IDList{b.ID}, got.Referrals)
}

func TestConcurrentSignupsSameReferrer(t *testing.T) {
	svc, store := newTestService(t)
	a := mustSignup(t, svc, "ref@example.com", "")

	const n = 32
	var wg sync.WaitGroup
	numbers := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := mustSignup(t, svc, fmt.Sprintf("u%d@example.com", i), a.ReferralCode)
			numbers[i] = u.UserNumber
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, num := range numbers {
		require.Greater(t, num, int64(0))
		require.False(t, seen[num], "user number issued twice: %d", num)
		seen[num] = true
	}

	got, err := store.FindByID(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Referrals, n)
	uniq := map[string]bool{}
	for _, id := range got.Referrals {
		require.False(t, uniq[id], "referral id appended twice: %s", id)
		uniq[id] = true
	}
}

func TestCompleteProfile(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CompleteProfileByNumber(99, "123", "somewhere")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	u := mustSignup(t, svc, "a@example.com", "")
	got, err := svc.CompleteProfileByNumber(u.UserNumber, "123", "somewhere")
	require.NoError(t, err)
	require.True(t, got.ProfileCompleted)
	require.Equal(t, "123", got.PhoneNumber)
	require.Equal(t, "somewhere", got.Address)

	// 重复调用幂等
	again, err := svc.CompleteProfileByNumber(u.UserNumber, "123", "somewhere")
	require.NoError(t, err)
	require.True(t, again.ProfileCompleted)
}

func TestReferralReportLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	a := mustSignup(t, svc, "a@example.com", "")
	b := mustSignup(t, svc, "b@example.com", a.ReferralCode)

	_, err := svc.CompleteProfileByNumber(b.UserNumber, "123", "addr")
	require.NoError(t, err)

	rep, err := svc.GetReferralReport(a.UserNumber)
	require.NoError(t, err)
	require.Equal(t, &ReferralReport{TotalReferrals: 1, SuccessfulReferrals: 1, PendingReferrals: 0}, rep)

	c := mustSignup(t, svc, "c@example.com", a.ReferralCode)
	_ = c // c 不完善资料

	rep, err = svc.GetReferralReport(a.UserNumber)
	require.NoError(t, err)
	require.Equal(t, &ReferralReport{TotalReferrals: 2, SuccessfulReferrals: 1, PendingReferrals: 1}, rep)
	require.Equal(t, rep.TotalReferrals, rep.SuccessfulReferrals+rep.PendingReferrals)
}

func TestReportUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetReferralReport(42)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = svc.GetSuccessfulReferrals(42)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSuccessfulReferralsOrderAndDangling(t *testing.T) {
	svc, store := newTestService(t)

	a := mustSignup(t, svc, "a@example.com", "")
	b := mustSignup(t, svc, "b@example.com", a.ReferralCode)
	c := mustSignup(t, svc, "c@example.com", a.ReferralCode)
	for _, u := range []*domain.User{b, c} {
		_, err := svc.CompleteProfileByNumber(u.UserNumber, "1", "x")
		require.NoError(t, err)
	}

	// 人为塞一个解析不到的 id：列表遍历要跳过它，报表把它记为 pending
	ref, err := store.FindByID(a.ID)
	require.NoError(t, err)
	ref.Referrals = append(ref.Referrals, "ghost-id")
	_, err = store.Save(ref)
	require.NoError(t, err)

	got, err := svc.GetSuccessfulReferrals(a.UserNumber)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, b.ID, got[0].ID)
	require.Equal(t, c.ID, got[1].ID)

	rep, err := svc.GetReferralReport(a.UserNumber)
	require.NoError(t, err)
	require.Equal(t, &ReferralReport{TotalReferrals: 3, SuccessfulReferrals: 2, PendingReferrals: 1}, rep)
}

func TestSuccessfulReferralsByIDMatchesTraversal(t *testing.T) {
	svc, _ := newTestService(t)

	a := mustSignup(t, svc, "a@example.com", "")
	b := mustSignup(t, svc, "b@example.com", a.ReferralCode)
	mustSignup(t, svc, "c@example.com", a.ReferralCode)
	_, err := svc.CompleteProfileByNumber(b.UserNumber, "1", "x")
	require.NoError(t, err)

	byList, err := svc.GetSuccessfulReferrals(a.UserNumber)
	require.NoError(t, err)
	byIndex, err := svc.GetSuccessfulReferralsByID(a.ID)
	require.NoError(t, err)

	require.Len(t, byIndex, len(byList))
	require.Equal(t, byList[0].ID, byIndex[0].ID)

	_, err = svc.GetSuccessfulReferralsByID("missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetUserByNumber(t *testing.T) {
	svc, _ := newTestService(t)
	u := mustSignup(t, svc, "a@example.com", "")

	got, err := svc.GetUserByNumber(u.UserNumber)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = svc.GetUserByNumber(999)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
