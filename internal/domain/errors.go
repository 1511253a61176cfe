package domain

import "errors"

// 业务错误；上层用 errors.Is 判断后映射到响应码
var (
	ErrDuplicateEmail      = errors.New("email already exists")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrUserNotFound        = errors.New("user not found")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrCodeSpaceExhausted  = errors.New("referral code space exhausted")
)
