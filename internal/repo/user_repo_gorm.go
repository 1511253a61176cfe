package repo

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"referral-service/internal/domain"
	"referral-service/pkg/utils"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

var _ domain.UserStore = (*UserRepo)(nil)

func (r *UserRepo) FindByID(id string) (*domain.User, error) {
	return r.first("id = ?", id)
}

func (r *UserRepo) FindByEmail(email string) (*domain.User, error) {
	return r.first("email = ?", email)
}

func (r *UserRepo) FindByReferralCode(code string) (*domain.User, error) {
	return r.first("referral_code = ?", code)
}

func (r *UserRepo) FindByUserNumber(n int64) (*domain.User, error) {
	return r.first("user_number = ?", n)
}

func (r *UserRepo) first(query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.First(&u, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &u, nil
}

// FindReferredWithCompletedProfile 直接按 referred_by 过滤，交给索引，不走推荐列表
func (r *UserRepo) FindReferredWithCompletedProfile(referrerID string) ([]domain.User, error) {
	var users []domain.User
	err := r.db.
		Where("referred_by = ? AND profile_completed = ?", referrerID, true).
		Order("created_at asc").
		Find(&users).Error
	if err != nil {
		return nil, storageErr(err)
	}
	return users, nil
}

func (r *UserRepo) ExistsByEmail(email string) (bool, error) {
	return r.exists("email = ?", email)
}

func (r *UserRepo) ExistsByReferralCode(code string) (bool, error) {
	return r.exists("referral_code = ?", code)
}

func (r *UserRepo) exists(query string, arg any) (bool, error) {
	var n int64
	if err := r.db.Model(&domain.User{}).Where(query, arg).Count(&n).Error; err != nil {
		return false, storageErr(err)
	}
	return n > 0, nil
}

func (r *UserRepo) Save(u *domain.User) (*domain.User, error) {
	if u.ID == "" {
		u.ID = utils.NewID()
	}
	if u.Referrals == nil {
		u.Referrals = domain.IDList{}
	}
	if err := r.db.Save(u).Error; err != nil {
		// 并发兜底：唯一索引冲突按业务错误上报，而不是当存储故障
		if isDupKey(err) {
			if strings.Contains(strings.ToLower(err.Error()), "email") {
				return nil, domain.ErrDuplicateEmail
			}
			return nil, fmt.Errorf("unique constraint violated: %w", err)
		}
		return nil, storageErr(err)
	}
	return u, nil
}

func isDupKey(err error) bool {
	// 不依赖 gorm.ErrDuplicatedKey，避免驱动差异
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		strings.Contains(msg, "duplicate key")
}

func (r *UserRepo) FindAll() ([]domain.User, error) {
	var users []domain.User
	if err := r.db.Order("user_number asc").Find(&users).Error; err != nil {
		return nil, storageErr(err)
	}
	return users, nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
