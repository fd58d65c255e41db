package service

import (
	"fmt"

	"github.com/industrialcatalog/catalog-server/internal/util"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// CodeGenerator draws candidate sign-in codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator draws uniformly from the six digit range using
// crypto/rand.
type RandomCodeGenerator struct{}

func (RandomCodeGenerator) Generate() (string, error) {
	n, err := util.RandomIntInRange(codeMin, codeMax)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}
