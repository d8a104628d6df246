package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/handler"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/service/guard"
	"chainless-core/internal/service/message"
	"chainless-core/internal/service/saga"
	"chainless-core/internal/service/secret"
	"chainless-core/internal/service/strategy"
	"chainless-core/internal/service/transfer"
	"chainless-core/internal/service/user"
	"chainless-core/internal/testutil"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/errno"
)

const fixedCode = "123456"

type nopQueue struct{}

func (nopQueue) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: task.Type()}, nil
}

type body struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	c := cache.NewMemoryCache(time.Hour, time.Hour)
	authCfg := config.AuthConfig{
		CodeLifetime:    10 * time.Minute,
		FixedCode:       fixedCode,
		LoginRetryLimit: 5,
		LockoutWindow:   time.Minute,
		TokenTTL:        time.Hour,
	}
	sessions := guard.NewSessionStore(c, authCfg.TokenTTL)
	users := user.NewService(db,
		guard.NewCodeStore(c, authCfg),
		guard.NewLoginGuard(c, authCfg),
		sessions,
		nopQueue{},
	)

	mc := chain.NewMemoryChain()
	exec := saga.NewExecutor(db, mc, 3)
	strategies := strategy.NewService(db, exec, strategy.NewPendingKeyStore(c, time.Minute), decimal.NewFromInt(1000))
	transfers := transfer.NewService(db, mc, time.Hour, "", 3)

	return NewHTTPRouter(Handlers{
		Health:   handler.NewHealthHandler(db),
		Account:  handler.NewAccountHandler(users),
		Wallet:   handler.NewWalletHandler(strategies, secret.NewService(db), users, message.NewService(db)),
		Transfer: handler.NewTransferHandler(transfers),
	}, sessions)
}

func call(t *testing.T, r *gin.Engine, method, path, token, deviceID string, payload any) (int, body) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if deviceID != "" {
		req.Header.Set("Device-Id", deviceID)
		req.Header.Set("Device-Brand", "test")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var b body
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	}
	return w.Code, b
}

// signUp 注册并返回 token
func signUp(t *testing.T, r *gin.Engine, contact, deviceID string) string {
	t.Helper()
	status, b := call(t, r, http.MethodPost, "/api/v1/account/code", "", "",
		gin.H{"contact": contact, "kind": "register"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)

	status, b = call(t, r, http.MethodPost, "/api/v1/account/register", "", deviceID,
		gin.H{"contact": contact, "captcha": fixedCode, "password": "password123"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)

	var res user.LoginResult
	require.NoError(t, json.Unmarshal(b.Data, &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func keyMaterial(n int) gin.H {
	return gin.H{
		"pubkey":                       testutil.Pubkey(n),
		"encrypted_prikey_by_password": "pwd",
		"encrypted_prikey_by_answer":   "ans",
	}
}

func createAccount(t *testing.T, r *gin.Engine, token string, master, sub int) {
	t.Helper()
	status, b := call(t, r, http.MethodPost, "/api/v1/wallet/account", token, "",
		gin.H{"master": keyMaterial(master), "subaccount": keyMaterial(sub), "anwser_indexes": "1,2"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	status, b := call(t, r, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, errno.OK.Code, b.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"无 token 查询用户", http.MethodGet, "/api/v1/account/info", ""},
		{"无效 token 查询策略", http.MethodGet, "/api/v1/wallet/strategy", "bogus"},
		{"无 token 发起转账", http.MethodPost, "/api/v1/transfers", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, b := call(t, r, tt.method, tt.path, tt.token, "", nil)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, errno.ErrTokenInvalid.Code, b.Code)
		})
	}
}

func TestBindError(t *testing.T) {
	r := newTestRouter(t)

	// 缺少验证码
	status, b := call(t, r, http.MethodPost, "/api/v1/account/register", "", "dev-1",
		gin.H{"contact": "a@example.com", "password": "password123"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, errno.ErrBind.Code, b.Code)

	// 缺少设备头
	status, b = call(t, r, http.MethodPost, "/api/v1/account/login", "", "",
		gin.H{"contact": "a@example.com", "password": "password123"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, errno.ErrBind.Code, b.Code)
}

func TestAccountWalletTransferFlow(t *testing.T) {
	r := newTestRouter(t)

	alice := signUp(t, r, "alice@example.com", "alice-phone")
	bob := signUp(t, r, "bob@example.com", "bob-phone")

	// 未创建主账户
	_, b := call(t, r, http.MethodGet, "/api/v1/wallet/strategy", alice, "", nil)
	assert.Equal(t, errno.ErrMainAccountNotCreated.Code, b.Code)

	createAccount(t, r, alice, 1, 2)
	createAccount(t, r, bob, 3, 4)

	_, b = call(t, r, http.MethodGet, "/api/v1/wallet/strategy", alice, "", nil)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
	var st struct {
		MasterPubkey string `json:"master_pubkey"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &st))
	assert.Equal(t, testutil.Pubkey(1), st.MasterPubkey)

	// 密码登录换一个 token
	_, b = call(t, r, http.MethodPost, "/api/v1/account/login", "", "alice-phone",
		gin.H{"contact": "alice@example.com", "password": "password123"})
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
	var login user.LoginResult
	require.NoError(t, json.Unmarshal(b.Data, &login))

	// 默认档位不需要从设备签名
	_, b = call(t, r, http.MethodPost, "/api/v1/transfers", login.Token, "",
		gin.H{"to": "bob@example.com", "coin": "dw20", "amount": "100"})
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
	var ct struct {
		OrderID  string `json:"order_id"`
		Stage    string `json:"stage"`
		Receiver string `json:"receiver"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &ct))
	assert.Equal(t, "SenderSigCompleted", ct.Stage)
	assert.Equal(t, testutil.Pubkey(3), ct.Receiver)

	// 收款方同意
	_, b = call(t, r, http.MethodPost, "/api/v1/transfers/"+ct.OrderID+"/react", bob, "",
		gin.H{"is_agreed": true})
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)

	_, b = call(t, r, http.MethodGet, "/api/v1/transfers/"+ct.OrderID, login.Token, "", nil)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
	require.NoError(t, json.Unmarshal(b.Data, &ct))
	assert.Equal(t, "ReceiverApproved", ct.Stage)

	// 注销后 token 失效
	_, b = call(t, r, http.MethodPost, "/api/v1/account/logout", login.Token, "", nil)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
	status, _ := call(t, r, http.MethodGet, "/api/v1/account/info", login.Token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestEnumParamRejected(t *testing.T) {
	r := newTestRouter(t)
	alice := signUp(t, r, "alice@example.com", "alice-phone")
	createAccount(t, r, alice, 1, 2)

	tests := []struct {
		name    string
		method  string
		path    string
		payload any
	}{
		{"未知币种查询签名数", http.MethodGet, "/api/v1/wallet/need-sig-num?coin=doge&amount=10", nil},
		{"未知币种更新档位", http.MethodPut, "/api/v1/wallet/ranks",
			gin.H{"coin": "doge", "strategy": []gin.H{{"min": "0", "max_eq": "10", "sig_num": 0}}}},
		{"未知密文类型", http.MethodGet, "/api/v1/wallet/secrets?kind=everything", nil},
		{"未知转账类型", http.MethodPost, "/api/v1/transfers",
			gin.H{"to": "bob@example.com", "coin": "dw20", "amount": "1", "tx_type": "Magic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, b := call(t, r, tt.method, tt.path, alice, "", tt.payload)
			assert.Equal(t, http.StatusOK, status)
			assert.Contains(t, []int{errno.ErrBind.Code, errno.ErrRequestParamInvalid.Code}, b.Code)
			assert.JSONEq(t, "{}", string(b.Data))
		})
	}
}

func TestMessages(t *testing.T) {
	r := newTestRouter(t)
	alice := signUp(t, r, "alice@example.com", "alice-phone")
	bob := signUp(t, r, "bob@example.com", "bob-phone")
	createAccount(t, r, alice, 1, 2)
	createAccount(t, r, bob, 3, 4)

	_, b := call(t, r, http.MethodPost, "/api/v1/transfers", alice, "",
		gin.H{"to": "bob@example.com", "coin": "dw20", "amount": "100"})
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)

	// 收款方看到待处理的转账
	_, b = call(t, r, http.MethodGet, "/api/v1/wallet/messages", bob, "", nil)
	require.Equal(t, errno.OK.Code, b.Code, b.Msg)
	var msgs struct {
		Newcomer *json.RawMessage `json:"newcomer_became_servant"`
		Pending  []struct {
			Stage string `json:"stage"`
		} `json:"pending_transfers"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &msgs))
	assert.Nil(t, msgs.Newcomer)
	require.Len(t, msgs.Pending, 1)
	assert.Equal(t, "SenderSigCompleted", msgs.Pending[0].Stage)
}
