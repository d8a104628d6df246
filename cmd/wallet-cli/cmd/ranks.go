package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"chainless-core/internal/model"
	"chainless-core/internal/service/threshold"
)

var ranksCmd = &cobra.Command{
	Use:   "ranks",
	Short: "校验多签档位表",
	Long: `读取 JSON 格式的档位表 ([{"min":"0","max_eq":"100","sig_num":0}, ...])，
检查是否覆盖全部金额，并可计算某笔金额需要的从设备签名数。`,
	Run: func(cmd *cobra.Command, args []string) {
		inputFile, _ := cmd.Flags().GetString("input")
		amount, _ := cmd.Flags().GetString("amount")

		data, err := os.ReadFile(inputFile)
		if err != nil {
			fmt.Printf("读取文件失败: %v\n", err)
			os.Exit(1)
		}
		var ranks []model.MultiSigRank
		if err := json.Unmarshal(data, &ranks); err != nil {
			fmt.Printf("解析文件失败: %v\n", err)
			os.Exit(1)
		}
		if err := threshold.ValidateRanks(ranks); err != nil {
			fmt.Printf("❌ 档位表无效: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ 档位表有效，共 %d 档\n", len(ranks))

		if amount == "" {
			return
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			fmt.Printf("金额格式错误: %v\n", err)
			os.Exit(1)
		}
		st := &model.Strategy{MultiSigRanks: ranks}
		fmt.Printf("金额 %s 需要 %d 个从设备签名\n", value.String(), threshold.RequiredSignatures(st, "", value))
	},
}

func init() {
	rootCmd.AddCommand(ranksCmd)
	ranksCmd.Flags().StringP("input", "i", "ranks.json", "档位表文件")
	ranksCmd.Flags().String("amount", "", "计算该金额需要的签名数")
	ranksCmd.MarkFlagRequired("input")
}
