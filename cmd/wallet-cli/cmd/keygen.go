package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chainless-core/pkg/bip39"
	"chainless-core/pkg/crypto_util"
	"chainless-core/pkg/keystore"
)

// keyMaterial 与服务端创建账户、添加设备接口的字段一致
type keyMaterial struct {
	Pubkey              string `json:"pubkey"`
	EncryptedByPassword string `json:"encrypted_prikey_by_password"`
	EncryptedByAnswer   string `json:"encrypted_prikey_by_answer"`
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "生成设备密钥",
	Long: `生成 BIP-39 助记词并派生 ed25519 设备密钥。
助记词用密码加密保存为 keystore 文件，同时输出两份交给服务端托管的私钥密文。`,
	Run: func(cmd *cobra.Command, args []string) {
		outputFile, _ := cmd.Flags().GetString("output")
		words, _ := cmd.Flags().GetInt("words")
		showMnemonic, _ := cmd.Flags().GetBool("show-mnemonic")

		if _, err := os.Stat(outputFile); err == nil {
			fmt.Printf("错误: 文件 %s 已存在。请先删除或指定其他文件名。\n", outputFile)
			os.Exit(1)
		}

		password, err := readConfirmed("密码", 8)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		answer, err := readConfirmed("安全问题答案", 1)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		service := bip39.NewMnemonicService()
		mnemonic, err := service.GenerateMnemonic(words / 3 * 32)
		if err != nil {
			fmt.Printf("生成助记词失败: %v\n", err)
			os.Exit(1)
		}
		priv, err := service.DeviceKey(mnemonic, "")
		if err != nil {
			fmt.Printf("派生设备密钥失败: %v\n", err)
			os.Exit(1)
		}
		pubkey := crypto_util.PubkeyHex(priv)

		ks, err := keystore.EncryptSecret(pubkey, mnemonic, password)
		if err != nil {
			fmt.Printf("加密失败: %v\n", err)
			os.Exit(1)
		}
		if err := ks.SaveToFile(outputFile); err != nil {
			fmt.Printf("保存文件失败: %v\n", err)
			os.Exit(1)
		}

		exported := []byte(crypto_util.ExportPrivateKey(priv))
		byPassword, err := crypto_util.EncryptWithPassphrase(password, exported)
		if err != nil {
			fmt.Printf("加密失败: %v\n", err)
			os.Exit(1)
		}
		byAnswer, err := crypto_util.EncryptWithPassphrase(answer, exported)
		if err != nil {
			fmt.Printf("加密失败: %v\n", err)
			os.Exit(1)
		}

		out, _ := json.MarshalIndent(keyMaterial{
			Pubkey:              pubkey,
			EncryptedByPassword: byPassword,
			EncryptedByAnswer:   byAnswer,
		}, "", "  ")

		fmt.Printf("\n✅ 设备密钥已生成！\n")
		fmt.Printf("Keystore: %s (ID: %s)\n", outputFile, ks.Id)
		fmt.Println(string(out))

		if showMnemonic {
			fmt.Println("\n---------------------------------------------------")
			fmt.Println("助记词 (请抄写在纸上并安全保管):")
			fmt.Println(mnemonic)
			fmt.Println("---------------------------------------------------")
		}
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringP("output", "o", "device.json", "输出的 Keystore 文件名")
	keygenCmd.Flags().Int("words", 12, "助记词词数 (12 或 24)")
	keygenCmd.Flags().Bool("show-mnemonic", false, "生成后显示助记词")
}
