package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"chainless-core/internal/model"
	"chainless-core/pkg/crypto_util"
)

// Call 一次已提交的调用
type Call struct {
	TxID    string
	Account string
	Step    model.ChainStep
}

// MemoryChain 进程内的模拟链，开发环境和测试使用
// 提交后状态为 Pending，第一次查询时按配置变为 Confirmed 或 Failed
type MemoryChain struct {
	mu      sync.Mutex
	status  map[string]model.ChainStatus
	method  map[string]string
	calls   []Call
	failing map[string]bool
	stalled map[string]bool
	pending map[string]bool
}

func NewMemoryChain() *MemoryChain {
	return &MemoryChain{
		status:  make(map[string]model.ChainStatus),
		method:  make(map[string]string),
		failing: make(map[string]bool),
		stalled: make(map[string]bool),
		pending: make(map[string]bool),
	}
}

// Fail 之后该方法的交易都会执行失败
func (m *MemoryChain) Fail(method string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[method] = on
}

// Stall 之后提交该方法会一直阻塞到 ctx 结束
func (m *MemoryChain) Stall(method string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalled[method] = on
}

// HoldPending 之后该方法的交易一直停留在 Pending
func (m *MemoryChain) HoldPending(method string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[method] = on
}

// Calls 已受理的调用，按提交顺序
func (m *MemoryChain) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Methods 已受理调用的方法名
func (m *MemoryChain) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Step.Method)
	}
	return out
}

func (m *MemoryChain) Submit(ctx context.Context, account string, step model.ChainStep) (string, error) {
	m.mu.Lock()
	stalled := m.stalled[step.Method]
	m.mu.Unlock()
	if stalled {
		<-ctx.Done()
		return "", ctx.Err()
	}

	txID := "0x" + crypto_util.CalculateBlake3([]byte(canonical(account, step)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.status[txID]; ok {
		return txID, nil
	}
	m.status[txID] = model.ChainPending
	m.method[txID] = step.Method
	m.calls = append(m.calls, Call{TxID: txID, Account: account, Step: step})
	return txID, nil
}

func (m *MemoryChain) PollStatus(ctx context.Context, txID string) (model.ChainStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.status[txID]
	if !ok {
		return "", fmt.Errorf("unknown tx %s", txID)
	}
	if status != model.ChainPending {
		return status, nil
	}
	method := m.method[txID]
	switch {
	case m.pending[method]:
		return model.ChainPending, nil
	case m.failing[method]:
		status = model.ChainFailed
	default:
		status = model.ChainConfirmed
	}
	m.status[txID] = status
	return status, nil
}

// canonical 参数按 key 排序，保证同一调用得到同一 tx id
func canonical(account string, step model.ChainStep) string {
	keys := make([]string, 0, len(step.Args))
	for k := range step.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(account)
	b.WriteString("|")
	b.WriteString(step.Method)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(step.Args[k])
	}
	return b.String()
}
