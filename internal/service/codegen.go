package service

import (
	"crypto/rand"
	"fmt"

	"referral-service/internal/domain"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator 生成 8 位大写字母数字推荐码，撞码就重试。
// 36^8 的码空间下 20 次重试上限只是兜底，正常负载碰不到。
type CodeGenerator struct {
	Length      int
	MaxAttempts int
}

func NewCodeGenerator(length, maxAttempts int) *CodeGenerator {
	if length <= 0 {
		length = 8
	}
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &CodeGenerator{Length: length, MaxAttempts: maxAttempts}
}

func (g *CodeGenerator) Generate(exists func(code string) (bool, error)) (string, error) {
	for i := 0; i < g.MaxAttempts; i++ {
		code, err := g.randomCode()
		if err != nil {
			return "", err
		}
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: gave up after %d attempts", domain.ErrCodeSpaceExhausted, g.MaxAttempts)
}

func (g *CodeGenerator) randomCode() (string, error) {
	buf := make([]byte, g.Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
