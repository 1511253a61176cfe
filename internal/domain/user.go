package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// IDList 推荐列表（被推荐用户 id，按加入顺序），以 JSON 存进 text 列
type IDList []string

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		l = IDList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *IDList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = IDList{}
		return nil
	case []byte:
		if len(v) == 0 {
			*l = IDList{}
			return nil
		}
		return json.Unmarshal(v, l)
	case string:
		if v == "" {
			*l = IDList{}
			return nil
		}
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("domain: unsupported referrals column type")
	}
}

// Contains 幂等追加前先查重
func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

type User struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	UserNumber   int64  `gorm:"uniqueIndex;not null" json:"userNumber"`
	Email        string `gorm:"uniqueIndex;size:191;not null" json:"email"`
	Name         string `gorm:"size:64" json:"name"`
	PasswordHash string `gorm:"size:100" json:"-"`

	ReferralCode string  `gorm:"uniqueIndex;size:16;not null" json:"referralCode"`
	ReferredBy   *string `gorm:"size:36;index" json:"referredBy,omitempty"` // 推荐人 id，注册后不再变
	Referrals    IDList  `gorm:"type:text" json:"referrals"`

	ProfileCompleted bool   `gorm:"not null;default:false" json:"profileCompleted"`
	PhoneNumber      string `gorm:"size:32" json:"phoneNumber,omitempty"`
	Address          string `gorm:"size:255" json:"address,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// Counter 进程级序号状态，单行，seq 只能原子自增
type Counter struct {
	ID  string `gorm:"primaryKey;size:32"`
	Seq int64  `gorm:"not null;default:0"`
}

func (Counter) TableName() string { return "counters" }

// CounterUserNumber users.user_number 对应的计数器行
const CounterUserNumber = "user_number"

// UserStore 核心依赖的最小存储契约；查不到返回 (nil, nil)
type UserStore interface {
	FindByID(id string) (*User, error)
	FindByEmail(email string) (*User, error)
	FindByReferralCode(code string) (*User, error)
	FindByUserNumber(n int64) (*User, error)
	FindReferredWithCompletedProfile(referrerID string) ([]User, error)
	ExistsByEmail(email string) (bool, error)
	ExistsByReferralCode(code string) (bool, error)
	Save(u *User) (*User, error) // 插入或整体覆盖；ID 为空时由存储层分配
	FindAll() ([]User, error)
}

// SequenceAllocator 发放严格递增的 user number；允许有空洞，绝不重复
type SequenceAllocator interface {
	Next() (int64, error)
}
