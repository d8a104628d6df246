package handler

import (
	"github.com/gin-gonic/gin"

	"chainless-core/internal/handler/middleware"
	"chainless-core/internal/handler/request"
	"chainless-core/internal/handler/response"
	"chainless-core/internal/model"
	"chainless-core/internal/service/transfer"
)

type TransferHandler struct {
	transfers *transfer.Service
}

func NewTransferHandler(transfers *transfer.Service) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

func respondTransfer(c *gin.Context, ct *model.CoinTransaction, err error) {
	if err != nil {
		if ct != nil {
			response.ErrorWithData(c, err, ct)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, ct)
}

// Create 发起转账
// @Summary 发起转账
// @Description to 可以是联系方式或账户 id，金额使用最小单位
// @Tags Transfer
// @Security Bearer
// @Param request body request.CreateTransferRequest true "转账参数"
// @Success 200 {object} response.Response{data=model.CoinTransaction}
// @Router /api/v1/transfers [post]
func (h *TransferHandler) Create(c *gin.Context) {
	var req request.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	coin, err := model.ParseCoinType(req.Coin)
	if err != nil {
		response.Error(c, err)
		return
	}
	var txType model.TxType
	if req.TxType != "" {
		if txType, err = model.ParseTxType(req.TxType); err != nil {
			response.Error(c, err)
			return
		}
	}

	ct, err := h.transfers.CreateTransfer(c.Request.Context(), middleware.Actor(c), transfer.CreateRequest{
		Receiver: req.To,
		Sender:   req.From,
		CoinType: coin,
		Amount:   amount,
		Memo:     req.Memo,
		TxType:   txType,
	})
	respondTransfer(c, ct, err)
}

// List 转账列表
// @Summary 转账列表
// @Tags Transfer
// @Security Bearer
// @Param role query string false "sender | receiver"
// @Param stage query []string false "阶段过滤"
// @Param limit query int false "条数"
// @Param offset query int false "偏移"
// @Success 200 {object} response.Response{data=[]model.CoinTransaction}
// @Router /api/v1/transfers [get]
func (h *TransferHandler) List(c *gin.Context) {
	var q request.ListTransfersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	f := transfer.ListFilter{AsReceiver: q.Role == "receiver", Limit: q.Limit, Offset: q.Offset}
	for _, s := range q.Stages {
		stage, err := model.ParseTxStage(s)
		if err != nil {
			response.Error(c, err)
			return
		}
		f.Stages = append(f.Stages, stage)
	}
	list, err := h.transfers.ListTransfers(c.Request.Context(), middleware.Actor(c), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Get 转账详情
// @Summary 转账详情
// @Tags Transfer
// @Security Bearer
// @Param order_id path string true "订单号"
// @Success 200 {object} response.Response{data=model.CoinTransaction}
// @Router /api/v1/transfers/{order_id} [get]
func (h *TransferHandler) Get(c *gin.Context) {
	ct, err := h.transfers.GetTransfer(c.Request.Context(), middleware.Actor(c), c.Param("order_id"))
	respondTransfer(c, ct, err)
}

// UploadSignature 从设备上传签名
// @Summary 上传从设备签名
// @Tags Transfer
// @Security Bearer
// @Param order_id path string true "订单号"
// @Param request body request.SignatureRequest true "pubkey||sig"
// @Success 200 {object} response.Response{data=model.CoinTransaction}
// @Router /api/v1/transfers/{order_id}/signatures [post]
func (h *TransferHandler) UploadSignature(c *gin.Context) {
	var req request.SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ct, err := h.transfers.UploadServantSignature(c.Request.Context(), middleware.Actor(c), c.Param("order_id"), req.Signature)
	respondTransfer(c, ct, err)
}

// React 收款方确认或拒绝
// @Summary 收款方确认
// @Tags Transfer
// @Security Bearer
// @Param order_id path string true "订单号"
// @Param request body request.ReactRequest true "是否同意"
// @Success 200 {object} response.Response{data=model.CoinTransaction}
// @Router /api/v1/transfers/{order_id}/react [post]
func (h *TransferHandler) React(c *gin.Context) {
	var req request.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ct, err := h.transfers.ReceiverReact(c.Request.Context(), middleware.Actor(c), c.Param("order_id"), *req.IsAgreed)
	respondTransfer(c, ct, err)
}

// Cancel 发送方取消
// @Summary 取消转账
// @Tags Transfer
// @Security Bearer
// @Param order_id path string true "订单号"
// @Success 200 {object} response.Response{data=model.CoinTransaction}
// @Router /api/v1/transfers/{order_id}/cancel [post]
func (h *TransferHandler) Cancel(c *gin.Context) {
	ct, err := h.transfers.SenderCancel(c.Request.Context(), middleware.Actor(c), c.Param("order_id"))
	respondTransfer(c, ct, err)
}

// Reconfirm 发送方最终确认并广播
// @Summary 最终确认
// @Tags Transfer
// @Security Bearer
// @Param order_id path string true "订单号"
// @Param request body request.ReconfirmRequest true "最终签名"
// @Success 200 {object} response.Response{data=model.CoinTransaction}
// @Router /api/v1/transfers/{order_id}/reconfirm [post]
func (h *TransferHandler) Reconfirm(c *gin.Context) {
	var req request.ReconfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	var final *string
	if *req.Confirmed {
		final = &req.FinalSignature
	}
	ct, err := h.transfers.SenderReconfirm(c.Request.Context(), middleware.Actor(c), c.Param("order_id"), final)
	respondTransfer(c, ct, err)
}
