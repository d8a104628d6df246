package bip39

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"

	"chainless-core/pkg/crypto_util"
)

var ErrInvalidMnemonic = errors.New("助记词无效")

// MnemonicService 设备助记词的生成与派生
type MnemonicService struct{}

func NewMnemonicService() *MnemonicService {
	return &MnemonicService{}
}

// GenerateMnemonic 生成一个新的随机助记词 (BIP-39)。
// bitSize: 熵的位数，128 (12个单词) 或 256 (24个单词)。
func (s *MnemonicService) GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic 验证助记词是否有效。
func (s *MnemonicService) ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// DeviceKey 由助记词确定性地派生设备的 ed25519 密钥
// passphrase 为空时与不带密码的种子一致
func (s *MnemonicService) DeviceKey(mnemonic, passphrase string) (ed25519.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return crypto_util.DeviceKeyFromSeed(seed)
}
