package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"chainless-core/internal/handler/middleware"
	"chainless-core/internal/handler/request"
	"chainless-core/internal/handler/response"
	"chainless-core/internal/model"
	"chainless-core/internal/service/message"
	"chainless-core/internal/service/secret"
	"chainless-core/internal/service/strategy"
	"chainless-core/internal/service/user"
	"chainless-core/pkg/errno"
)

type WalletHandler struct {
	strategies *strategy.Service
	secrets    *secret.Service
	users      *user.Service
	messages   *message.Service
}

func NewWalletHandler(strategies *strategy.Service, secrets *secret.Service, users *user.Service, messages *message.Service) *WalletHandler {
	return &WalletHandler{strategies: strategies, secrets: secrets, users: users, messages: messages}
}

func keyMaterial(k request.KeyMaterial) secret.KeyMaterial {
	return secret.KeyMaterial{
		Pubkey:              k.Pubkey,
		EncryptedByPassword: k.EncryptedByPassword,
		EncryptedByAnswer:   k.EncryptedByAnswer,
	}
}

// verifyCaptcha 敏感操作先消耗对应用途的验证码
func (h *WalletHandler) verifyCaptcha(c *gin.Context, usage model.Usage, code string) bool {
	if err := h.users.VerifyUserCode(c.Request.Context(), middleware.Actor(c).UserID, usage, code); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}

func (h *WalletHandler) mainAccount(c *gin.Context) (string, bool) {
	u, err := h.users.GetUser(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	if u.MainAccount == nil {
		response.Error(c, errno.ErrMainAccountNotCreated)
		return "", false
	}
	return *u.MainAccount, true
}

// CreateAccount 创建主账户
// @Summary 创建主账户
// @Description 当前设备成为主设备，同时创建第一个子账户
// @Tags Wallet
// @Security Bearer
// @Param request body request.CreateAccountRequest true "主设备和子账户密钥"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/account [post]
func (h *WalletHandler) CreateAccount(c *gin.Context) {
	var req request.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	rec, err := h.strategies.CreateMainAccount(c.Request.Context(), middleware.Actor(c), strategy.CreateAccountRequest{
		Master:        keyMaterial(req.Master),
		Subaccount:    keyMaterial(req.Subaccount),
		AnswerIndexes: req.AnswerIndexes,
	})
	respondRecord(c, rec, err)
}

// GetStrategy 查询当前主账户策略
// @Summary 查询策略
// @Tags Wallet
// @Security Bearer
// @Success 200 {object} response.Response{data=model.Strategy}
// @Router /api/v1/wallet/strategy [get]
func (h *WalletHandler) GetStrategy(c *gin.Context) {
	account, ok := h.mainAccount(c)
	if !ok {
		return
	}
	st, err := h.strategies.GetStrategy(c.Request.Context(), account)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, st)
}

// NeedSigNum 转账金额需要的从设备签名数
// @Summary 查询所需签名数
// @Tags Wallet
// @Security Bearer
// @Param coin query string true "币种"
// @Param amount query string true "最小单位金额"
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/need-sig-num [get]
func (h *WalletHandler) NeedSigNum(c *gin.Context) {
	var q request.NeedSigNumQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	account, ok := h.mainAccount(c)
	if !ok {
		return
	}
	coin, err := model.ParseCoinType(q.Coin)
	if err != nil {
		response.Error(c, err)
		return
	}
	amount, err := model.ParseAmount(q.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := h.strategies.GetNeedSigNum(c.Request.Context(), account, coin, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"need_sig_num": n})
}

// AddServant 添加从设备
// @Summary 添加从设备
// @Tags Wallet
// @Security Bearer
// @Param request body request.AddServantRequest true "从设备公钥和密文"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/servants [post]
func (h *WalletHandler) AddServant(c *gin.Context) {
	var req request.AddServantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !h.verifyCaptcha(c, model.UsageAddServant, req.Captcha) {
		return
	}
	rec, err := h.strategies.AddServant(c.Request.Context(), middleware.Actor(c), strategy.AddServantRequest{
		Pubkey:              req.Pubkey,
		HolderDeviceID:      req.HolderDeviceID,
		EncryptedByPassword: req.EncryptedByPassword,
		EncryptedByAnswer:   req.EncryptedByAnswer,
	})
	respondRecord(c, rec, err)
}

// RemoveServant 删除从设备
// @Summary 删除从设备
// @Tags Wallet
// @Security Bearer
// @Param pubkey path string true "从设备公钥"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/servants/{pubkey} [delete]
func (h *WalletHandler) RemoveServant(c *gin.Context) {
	rec, err := h.strategies.RemoveServant(c.Request.Context(), middleware.Actor(c), c.Param("pubkey"))
	respondRecord(c, rec, err)
}

// ReplaceServant 替换从设备
// @Summary 替换从设备
// @Description 旧从设备的密钥作废，新设备带着新密钥占用其位置
// @Tags Wallet
// @Security Bearer
// @Param pubkey path string true "旧从设备公钥"
// @Param request body request.ReplaceServantRequest true "新从设备"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/servants/{pubkey} [put]
func (h *WalletHandler) ReplaceServant(c *gin.Context) {
	var req request.ReplaceServantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !h.verifyCaptcha(c, model.UsageAddServant, req.Captcha) {
		return
	}
	rec, err := h.strategies.ReplaceServant(c.Request.Context(), middleware.Actor(c), strategy.ReplaceServantRequest{
		OldPubkey:      c.Param("pubkey"),
		NewKey:         keyMaterial(req.NewKey),
		HolderDeviceID: req.HolderDeviceID,
	})
	respondRecord(c, rec, err)
}

// PutPendingPubkey 新设备上报待添加的公钥
// @Summary 上传待添加公钥
// @Tags Wallet
// @Security Bearer
// @Param request body request.PendingPubkeyRequest true "公钥和密文"
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/pending-pubkey [put]
func (h *WalletHandler) PutPendingPubkey(c *gin.Context) {
	var req request.PendingPubkeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	err := h.strategies.PutPendingKey(c.Request.Context(), middleware.Actor(c), strategy.PendingKey{
		Pubkey:              req.Pubkey,
		EncryptedByPassword: req.EncryptedByPassword,
		EncryptedByAnswer:   req.EncryptedByAnswer,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// PendingPubkeys 等待添加的公钥
// @Summary 查询待添加公钥
// @Tags Wallet
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/pending-pubkey [get]
func (h *WalletHandler) PendingPubkeys(c *gin.Context) {
	keys, err := h.strategies.PendingPubkeys(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, keys)
}

// AddSubaccount 添加子账户
// @Summary 添加子账户
// @Tags Wallet
// @Security Bearer
// @Param request body request.AddSubaccountRequest true "子账户密钥和限额"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/subaccounts [post]
func (h *WalletHandler) AddSubaccount(c *gin.Context) {
	var req request.AddSubaccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	var limit *decimal.Decimal
	if req.HoldValueLimit != nil {
		l, err := model.ParseAmount(*req.HoldValueLimit)
		if err != nil {
			response.Error(c, err)
			return
		}
		limit = &l
	}
	rec, err := h.strategies.AddSubaccount(c.Request.Context(), middleware.Actor(c), keyMaterial(req.KeyMaterial), limit)
	respondRecord(c, rec, err)
}

// RemoveSubaccount 删除子账户
// @Summary 删除子账户
// @Tags Wallet
// @Security Bearer
// @Param pubkey path string true "子账户公钥"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/subaccounts/{pubkey} [delete]
func (h *WalletHandler) RemoveSubaccount(c *gin.Context) {
	rec, err := h.strategies.RemoveSubaccount(c.Request.Context(), middleware.Actor(c), c.Param("pubkey"))
	respondRecord(c, rec, err)
}

// UpdateSubaccountLimit 修改子账户限额
// @Summary 修改子账户限额
// @Tags Wallet
// @Security Bearer
// @Param pubkey path string true "子账户公钥"
// @Param request body request.SubaccountLimitRequest true "限额"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/subaccounts/{pubkey}/limit [put]
func (h *WalletHandler) UpdateSubaccountLimit(c *gin.Context) {
	var req request.SubaccountLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	limit, err := model.ParseAmount(req.HoldValueLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	rec, err := h.strategies.UpdateSubaccountLimit(c.Request.Context(), middleware.Actor(c), c.Param("pubkey"), limit)
	respondRecord(c, rec, err)
}

// UpdateRanks 更新多签档位
// @Summary 更新多签档位
// @Tags Wallet
// @Security Bearer
// @Param request body request.UpdateRanksRequest true "档位表"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/ranks [put]
func (h *WalletHandler) UpdateRanks(c *gin.Context) {
	var req request.UpdateRanksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ranks := make([]model.MultiSigRank, 0, len(req.Ranks))
	for _, r := range req.Ranks {
		min, err := model.ParseAmount(r.Min)
		if err != nil {
			response.Error(c, err)
			return
		}
		maxEq, err := model.ParseAmount(r.MaxEq)
		if err != nil {
			response.Error(c, err)
			return
		}
		ranks = append(ranks, model.MultiSigRank{Min: min, MaxEq: maxEq, SigNum: r.SigNum})
	}
	var coin model.CoinType
	if req.Coin != "" {
		var err error
		if coin, err = model.ParseCoinType(req.Coin); err != nil {
			response.Error(c, err)
			return
		}
	}
	rec, err := h.strategies.UpdateRanks(c.Request.Context(), middleware.Actor(c), coin, ranks)
	respondRecord(c, rec, err)
}

// SwitchMaster 更换主设备
// @Summary 更换主设备
// @Description 从设备升为主设备，或没有密钥的新设备带着新密钥成为主设备
// @Tags Wallet
// @Security Bearer
// @Param request body request.SwitchMasterRequest true "新主设备"
// @Success 200 {object} response.Response{data=model.WalletManageRecord}
// @Router /api/v1/wallet/master/switch [post]
func (h *WalletHandler) SwitchMaster(c *gin.Context) {
	var req request.SwitchMasterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	usage := model.UsageServantReplaceMaster
	var newcomer *secret.KeyMaterial
	if req.Newcomer != nil {
		usage = model.UsageNewcomerBecomeMaster
		k := keyMaterial(*req.Newcomer)
		newcomer = &k
	}
	if !h.verifyCaptcha(c, usage, req.Captcha) {
		return
	}
	rec, err := h.strategies.SwitchMaster(c.Request.Context(), middleware.Actor(c), strategy.SwitchMasterRequest{Newcomer: newcomer})
	respondRecord(c, rec, err)
}

// Secrets 查询托管密文
// @Summary 查询托管密文
// @Tags Wallet
// @Security Bearer
// @Param kind query string true "currentDevice | master | all"
// @Success 200 {object} response.Response{data=[]model.SecretRecord}
// @Router /api/v1/wallet/secrets [get]
func (h *WalletHandler) Secrets(c *gin.Context) {
	var q request.SecretsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	kind, err := model.ParseSecretKind(q.Kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	recs, err := h.secrets.GetSecrets(c.Request.Context(), middleware.Actor(c), kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, recs)
}

// UpdateSecurity 修改安全问题并替换全部密文
// @Summary 修改安全问题
// @Tags Wallet
// @Security Bearer
// @Param request body request.UpdateSecurityRequest true "新的安全问题和密文"
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/security [put]
func (h *WalletHandler) UpdateSecurity(c *gin.Context) {
	var req request.UpdateSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !h.verifyCaptcha(c, model.UsageSetSecurity, req.Captcha) {
		return
	}
	keys := make([]secret.KeyMaterial, 0, len(req.Secrets))
	for _, k := range req.Secrets {
		keys = append(keys, keyMaterial(k))
	}
	if err := h.secrets.RotateSecurity(c.Request.Context(), middleware.Actor(c), req.AnswerIndexes, keys); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SecretSaved 当前设备确认已保存密钥
// @Summary 确认已保存密钥
// @Tags Wallet
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/v1/wallet/secret/saved [post]
func (h *WalletHandler) SecretSaved(c *gin.Context) {
	if err := h.secrets.MarkHolderSaved(c.Request.Context(), middleware.Actor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Devices 当前用户的设备及角色
// @Summary 设备列表
// @Tags Wallet
// @Security Bearer
// @Success 200 {object} response.Response{data=[]strategy.DeviceView}
// @Router /api/v1/wallet/devices [get]
func (h *WalletHandler) Devices(c *gin.Context) {
	list, err := h.strategies.DeviceList(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Messages 当前设备的待处理事项
// @Summary 查询待处理事项
// @Description 未确认备份的新密钥，以及账户下未结束的转账
// @Tags Wallet
// @Security Bearer
// @Success 200 {object} response.Response{data=message.Messages}
// @Router /api/v1/wallet/messages [get]
func (h *WalletHandler) Messages(c *gin.Context) {
	msgs, err := h.messages.Search(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}
