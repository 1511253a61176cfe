package service

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"referral-service/internal/domain"
	"referral-service/pkg/utils"
)

// ReferralReport 推荐统计；total == successful + pending 恒成立，
// 解析不到的 id 记入 pending 而不是丢掉
type ReferralReport struct {
	TotalReferrals      int `json:"totalReferrals"`
	SuccessfulReferrals int `json:"successfulReferrals"`
	PendingReferrals    int `json:"pendingReferrals"`
}

type SignupInput struct {
	Name         string
	Email        string
	Password     string
	ReferralCode string // 可选，填了必须有效
}

type UserService struct {
	store domain.UserStore
	seq   domain.SequenceAllocator
	codes *CodeGenerator
	log   *zap.Logger

	// 串行化同进程内的推荐人回写，read-modify-write 不丢追加；
	// 跨进程仍是尽力而为，靠幂等追加 + 对账兜底
	linkMu sync.Mutex
}

func NewUserService(store domain.UserStore, seq domain.SequenceAllocator, codes *CodeGenerator, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{store: store, seq: seq, codes: codes, log: log}
}

// Signup 注册新用户，带推荐码时把双向推荐关系建起来。
// 落库前任何失败都不会留下半个用户；推荐人回写失败不影响注册结果本身。
func (s *UserService) Signup(in SignupInput) (*domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))

	taken, err := s.store.ExistsByEmail(email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrDuplicateEmail
	}

	number, err := s.seq.Next()
	if err != nil {
		return nil, err
	}
	code, err := s.codes.Generate(s.store.ExistsByReferralCode)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		UserNumber:   number,
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: utils.HashPassword(in.Password),
		ReferralCode: code,
		Referrals:    domain.IDList{},
	}

	if rc := strings.TrimSpace(in.ReferralCode); rc != "" {
		referrer, err := s.store.FindByReferralCode(rc)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			return nil, domain.ErrInvalidReferralCode
		}
		u.ReferredBy = &referrer.ID
	}

	saved, err := s.store.Save(u)
	if err != nil {
		return nil, err
	}

	if saved.ReferredBy != nil {
		s.linkReferrer(*saved.ReferredBy, saved.ID)
	}
	return saved, nil
}

// linkReferrer 重新读一遍推荐人再幂等追加，避免并发注册时基于旧对象的
// read-modify-write 丢更新。回写失败只打日志，由对账任务兜底。
func (s *UserService) linkReferrer(referrerID, newUserID string) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	referrer, err := s.store.FindByID(referrerID)
	if err != nil || referrer == nil {
		s.log.Warn("referrer re-read failed, backlink missing",
			zap.String("referrer_id", referrerID),
			zap.String("user_id", newUserID),
			zap.Error(err))
		return
	}
	if referrer.Referrals.Contains(newUserID) {
		return
	}
	referrer.Referrals = append(referrer.Referrals, newUserID)
	if _, err := s.store.Save(referrer); err != nil {
		s.log.Warn("referrer save failed, backlink missing",
			zap.String("referrer_id", referrerID),
			zap.String("user_id", newUserID),
			zap.Error(err))
	}
}

// CompleteProfile 无条件置 profile_completed=true，重复调用幂等
func (s *UserService) CompleteProfile(id, phone, address string) (*domain.User, error) {
	u, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	return s.completeProfile(u, phone, address)
}

func (s *UserService) CompleteProfileByNumber(number int64, phone, address string) (*domain.User, error) {
	u, err := s.store.FindByUserNumber(number)
	if err != nil {
		return nil, err
	}
	return s.completeProfile(u, phone, address)
}

func (s *UserService) completeProfile(u *domain.User, phone, address string) (*domain.User, error) {
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	u.PhoneNumber = phone
	u.Address = address
	u.ProfileCompleted = true
	return s.store.Save(u)
}

// GetSuccessfulReferrals 按推荐顺序返回已完成资料的被推荐用户；
// 解析不到的 id 静默跳过，不让整个调用失败
func (s *UserService) GetSuccessfulReferrals(number int64) ([]domain.User, error) {
	u, err := s.store.FindByUserNumber(number)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	out := make([]domain.User, 0, len(u.Referrals))
	for _, id := range u.Referrals {
		ref, err := s.store.FindByID(id)
		if err != nil {
			return nil, err
		}
		if ref != nil && ref.ProfileCompleted {
			out = append(out, *ref)
		}
	}
	return out, nil
}

// GetSuccessfulReferralsByID 直接走 referred_by 索引的版本，结果与列表遍历一致
func (s *UserService) GetSuccessfulReferralsByID(id string) ([]domain.User, error) {
	u, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return s.store.FindReferredWithCompletedProfile(u.ID)
}

func (s *UserService) GetReferralReport(number int64) (*ReferralReport, error) {
	u, err := s.store.FindByUserNumber(number)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	total := len(u.Referrals)
	successful := 0
	for _, id := range u.Referrals {
		ref, err := s.store.FindByID(id)
		if err != nil {
			return nil, err
		}
		if ref != nil && ref.ProfileCompleted {
			successful++
		}
	}
	return &ReferralReport{
		TotalReferrals:      total,
		SuccessfulReferrals: successful,
		PendingReferrals:    total - successful,
	}, nil
}

func (s *UserService) GetUserByNumber(number int64) (*domain.User, error) {
	u, err := s.store.FindByUserNumber(number)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

// GetUserByID 查不到返回 (nil, nil)，给缓存失效这类尽力而为的调用用
func (s *UserService) GetUserByID(id string) (*domain.User, error) {
	return s.store.FindByID(id)
}

func (s *UserService) GetAllUsers() ([]domain.User, error) {
	return s.store.FindAll()
}
