package cmd

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"chainless-core/pkg/bip39"
	"chainless-core/pkg/crypto_util"
	"chainless-core/pkg/keystore"
)

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}
	return string(b), nil
}

// readConfirmed 要求输入两次并且一致
func readConfirmed(name string, minLen int) (string, error) {
	first, err := readSecret("输入" + name + ": ")
	if err != nil {
		return "", err
	}
	second, err := readSecret("确认" + name + ": ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("两次输入的%s不一致", name)
	}
	if len(first) < minLen {
		return "", fmt.Errorf("%s长度至少需要 %d 位", name, minLen)
	}
	return first, nil
}

// loadKey 从 keystore 文件或服务端托管的密文恢复设备私钥
func loadKey(keystoreFile, blob string) (ed25519.PrivateKey, error) {
	if blob != "" {
		pass, err := readSecret("输入密码或安全问题答案: ")
		if err != nil {
			return nil, err
		}
		plain, err := crypto_util.DecryptWithPassphrase(pass, blob)
		if err != nil {
			return nil, fmt.Errorf("解密托管密文失败: %w", err)
		}
		return crypto_util.ImportPrivateKey(string(plain))
	}

	ks, err := keystore.LoadFromFile(keystoreFile)
	if err != nil {
		return nil, fmt.Errorf("读取 keystore 失败: %w", err)
	}
	password, err := readSecret("输入密码: ")
	if err != nil {
		return nil, err
	}
	mnemonic, err := keystore.DecryptSecret(ks, password)
	if err != nil {
		return nil, err
	}
	priv, err := bip39.NewMnemonicService().DeviceKey(mnemonic, "")
	if err != nil {
		return nil, err
	}
	if crypto_util.PubkeyHex(priv) != ks.Pubkey {
		fmt.Fprintln(os.Stderr, "警告: keystore 记录的公钥与派生结果不一致")
	}
	return priv, nil
}
