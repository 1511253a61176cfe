package repo

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-service/internal/domain"
)

// SequenceRepo 基于 counters 表发号。整个 upsert+自增放在一个事务里，
// 计数器行加行锁，任意并发下每次调用拿到不同的值。
type SequenceRepo struct {
	db  *gorm.DB
	key string
}

func NewSequenceRepo(db *gorm.DB) *SequenceRepo {
	return &SequenceRepo{db: db, key: domain.CounterUserNumber}
}

var _ domain.SequenceAllocator = (*SequenceRepo)(nil)

func (s *SequenceRepo) Next() (int64, error) {
	var next int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var c domain.Counter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, "id = ?", s.key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 首次使用：建行 seq=0 再自增，仍在同一事务内
			c = domain.Counter{ID: s.key, Seq: 0}
			if err = tx.Create(&c).Error; err != nil && !isDupKey(err) {
				return err
			}
			if err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&c, "id = ?", s.key).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		c.Seq++
		if err := tx.Model(&domain.Counter{}).
			Where("id = ?", s.key).
			Update("seq", c.Seq).Error; err != nil {
			return err
		}
		next = c.Seq
		return nil
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return next, nil
}
