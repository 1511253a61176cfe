package utils

import "github.com/google/uuid"

// NewID 存储层主键，uuid v4
func NewID() string { return uuid.NewString() }
