package repo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"referral-service/internal/domain"
)

func TestMemoryStoreSaveAssignsID(t *testing.T) {
	m := NewMemoryStore()

	u, err := m.Save(&domain.User{UserNumber: 1, Email: "a@example.com", ReferralCode: "AAAA1111"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.NotNil(t, u.Referrals)

	got, err := m.FindByID(u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
}

func TestMemoryStoreUniqueEmail(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.Save(&domain.User{UserNumber: 1, Email: "a@example.com", ReferralCode: "AAAA1111"})
	require.NoError(t, err)

	_, err = m.Save(&domain.User{UserNumber: 2, Email: "a@example.com", ReferralCode: "BBBB2222"})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)

	// 同一 id 覆盖保存不算冲突
	u, err := m.FindByEmail("a@example.com")
	require.NoError(t, err)
	u.Name = "renamed"
	_, err = m.Save(u)
	require.NoError(t, err)
}

func TestMemoryStoreLookupsReturnNilOnMiss(t *testing.T) {
	m := NewMemoryStore()

	u, err := m.FindByEmail("missing@example.com")
	require.NoError(t, err)
	require.Nil(t, u)

	u, err = m.FindByReferralCode("NOPE0000")
	require.NoError(t, err)
	require.Nil(t, u)

	u, err = m.FindByUserNumber(7)
	require.NoError(t, err)
	require.Nil(t, u)

	ok, err := m.ExistsByReferralCode("NOPE0000")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	m := NewMemoryStore()

	saved, err := m.Save(&domain.User{UserNumber: 1, Email: "a@example.com", ReferralCode: "AAAA1111"})
	require.NoError(t, err)

	got, err := m.FindByID(saved.ID)
	require.NoError(t, err)
	got.Referrals = append(got.Referrals, "x") // 改返回值不能透写进存储

	again, err := m.FindByID(saved.ID)
	require.NoError(t, err)
	require.Empty(t, again.Referrals)
}

func TestMemoryStoreReferredWithCompletedProfile(t *testing.T) {
	m := NewMemoryStore()

	ref, err := m.Save(&domain.User{UserNumber: 1, Email: "ref@example.com", ReferralCode: "AAAA1111"})
	require.NoError(t, err)

	for i, done := range []bool{true, false, true} {
		_, err = m.Save(&domain.User{
			UserNumber:       int64(i + 2),
			Email:            string(rune('b'+i)) + "@example.com",
			ReferralCode:     "CODE000" + string(rune('0'+i)),
			ReferredBy:       &ref.ID,
			ProfileCompleted: done,
		})
		require.NoError(t, err)
	}

	got, err := m.FindReferredWithCompletedProfile(ref.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, u := range got {
		require.True(t, u.ProfileCompleted)
	}
}

func TestMemorySequenceConcurrent(t *testing.T) {
	seq := NewMemorySequence()

	const n = 200
	var wg sync.WaitGroup
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := seq.Next()
			require.NoError(t, err)
			out[i] = v
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, v := range out {
		require.Greater(t, v, int64(0))
		require.LessOrEqual(t, v, int64(n))
		require.False(t, seen[v], "duplicate sequence value %d", v)
		seen[v] = true
	}
}
