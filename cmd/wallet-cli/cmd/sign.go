package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chainless-core/pkg/crypto_util"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "为转账签名",
	Long: `用设备私钥对转账的 coin_tx_raw 签名，输出 pubkey||signature 格式的 hex，
可直接作为从设备签名或主设备最终签名上传。`,
	Run: func(cmd *cobra.Command, args []string) {
		keystoreFile, _ := cmd.Flags().GetString("keystore")
		blob, _ := cmd.Flags().GetString("blob")
		raw, _ := cmd.Flags().GetString("raw")
		rawFile, _ := cmd.Flags().GetString("raw-file")

		if rawFile != "" {
			data, err := os.ReadFile(rawFile)
			if err != nil {
				fmt.Printf("读取文件失败: %v\n", err)
				os.Exit(1)
			}
			raw = strings.TrimSpace(string(data))
		}
		if raw == "" {
			fmt.Println("错误: 需要 --raw 或 --raw-file")
			os.Exit(1)
		}

		priv, err := loadKey(keystoreFile, blob)
		if err != nil {
			fmt.Printf("加载设备密钥失败: %v\n", err)
			os.Exit(1)
		}

		sig := crypto_util.SignHex(priv, []byte(raw))
		if _, ok := crypto_util.VerifyHex(sig, []byte(raw)); !ok {
			fmt.Println("❌ 签名自检失败")
			os.Exit(1)
		}
		fmt.Println(sig)
	},
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "显示设备公钥",
	Run: func(cmd *cobra.Command, args []string) {
		keystoreFile, _ := cmd.Flags().GetString("keystore")
		blob, _ := cmd.Flags().GetString("blob")

		priv, err := loadKey(keystoreFile, blob)
		if err != nil {
			fmt.Printf("加载设备密钥失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(crypto_util.PubkeyHex(priv))
	},
}

func init() {
	for _, c := range []*cobra.Command{signCmd, pubkeyCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringP("keystore", "k", "device.json", "Keystore 文件")
		c.Flags().String("blob", "", "服务端托管的私钥密文，指定后忽略 keystore")
	}
	signCmd.Flags().String("raw", "", "待签名的 coin_tx_raw")
	signCmd.Flags().String("raw-file", "", "从文件读取 coin_tx_raw")
}
